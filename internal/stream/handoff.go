package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/paysim/paysim/internal/sim"
)

// ErrInvalidCapacity is returned by Start when the buffer capacity is < 1.
var ErrInvalidCapacity = errors.New("stream: handoff capacity must be >= 1")

// errCancelled is returned by send when the run has been aborted. It travels
// back through the engine and is recognized by the worker as cancellation,
// not failure.
var errCancelled = errors.New("stream: run cancelled")

// handoff is the bounded single-producer/single-consumer buffer between the
// worker and the consumer.
//
// INVARIANTS:
//   - at most cap(items) records are pending
//   - records are received in send order
//   - seal (the sentinel) happens once, after the last send
type handoff struct {
	items    chan sim.Record
	sealOnce sync.Once
}

func newHandoff(capacity int) (*handoff, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &handoff{items: make(chan sim.Record, capacity)}, nil
}

// send blocks until r is buffered, quit is closed or ctx is done.
// A closed quit wins over free space so an aborted run stops producing.
func (h *handoff) send(ctx context.Context, quit <-chan struct{}, r sim.Record) error {
	select {
	case <-quit:
		return errCancelled
	case <-ctx.Done():
		return errCancelled
	default:
	}

	select {
	case h.items <- r:
		return nil
	case <-quit:
		return errCancelled
	case <-ctx.Done():
		return errCancelled
	}
}

// seal closes the channel. Only the producer calls it.
func (h *handoff) seal() {
	h.sealOnce.Do(func() {
		close(h.items)
	})
}

// receive blocks until a record or the sentinel is available. After the
// sentinel it returns false immediately, forever.
func (h *handoff) receive() (sim.Record, bool) {
	r, ok := <-h.items
	return r, ok
}

// Len returns the number of pending records.
func (h *handoff) Len() int {
	return len(h.items)
}

// Cap returns the buffer capacity.
func (h *handoff) Cap() int {
	return cap(h.items)
}
