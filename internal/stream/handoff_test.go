package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paysim/paysim/internal/testutil"
)

func TestNewHandoff_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		_, err := newHandoff(c)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	}
}

func TestHandoff_OrderAndSentinel(t *testing.T) {
	h, err := newHandoff(3)
	require.NoError(t, err)
	quit := make(chan struct{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.send(ctx, quit, testutil.Record(1, i)))
	}
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 3, h.Cap())
	h.seal()
	h.seal() // second seal is a no-op

	for i := 0; i < 3; i++ {
		r, ok := h.receive()
		require.True(t, ok)
		assert.Equal(t, "C"+string(rune('0'+i)), r.NameOrig)
	}
	for i := 0; i < 2; i++ {
		_, ok := h.receive()
		assert.False(t, ok)
	}
}

func TestHandoff_FullBufferBlocksUntilQuit(t *testing.T) {
	h, err := newHandoff(1)
	require.NoError(t, err)
	quit := make(chan struct{})
	ctx := context.Background()

	require.NoError(t, h.send(ctx, quit, testutil.Record(1, 0)))

	result := make(chan error, 1)
	go func() {
		result <- h.send(ctx, quit, testutil.Record(1, 1))
	}()

	select {
	case err := <-result:
		t.Fatalf("send on a full buffer returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(quit)
	select {
	case err := <-result:
		assert.ErrorIs(t, err, errCancelled)
	case <-time.After(gracePeriod):
		t.Fatal("send not released by quit")
	}
	assert.Equal(t, 1, h.Len())
}

func TestHandoff_FullBufferUnblocksOnReceive(t *testing.T) {
	h, err := newHandoff(1)
	require.NoError(t, err)
	quit := make(chan struct{})
	ctx := context.Background()

	require.NoError(t, h.send(ctx, quit, testutil.Record(1, 0)))

	result := make(chan error, 1)
	go func() {
		result <- h.send(ctx, quit, testutil.Record(1, 1))
	}()

	r, ok := h.receive()
	require.True(t, ok)
	assert.Equal(t, "C0", r.NameOrig)

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(gracePeriod):
		t.Fatal("send not released by receive")
	}
	r, ok = h.receive()
	require.True(t, ok)
	assert.Equal(t, "C1", r.NameOrig)
}

func TestHandoff_ContextCancelReleasesSend(t *testing.T) {
	h, err := newHandoff(1)
	require.NoError(t, err)
	quit := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, h.send(ctx, quit, testutil.Record(1, 0)))
	cancel()
	assert.ErrorIs(t, h.send(ctx, quit, testutil.Record(1, 1)), errCancelled)
}

func TestHandoff_QuitWinsOverFreeSpace(t *testing.T) {
	h, err := newHandoff(10)
	require.NoError(t, err)
	quit := make(chan struct{})
	close(quit)

	for i := 0; i < 100; i++ {
		assert.ErrorIs(t, h.send(context.Background(), quit, testutil.Record(1, i)), errCancelled)
	}
	assert.Equal(t, 0, h.Len())
}
