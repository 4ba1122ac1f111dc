// Package rawlog reads and writes the raw transaction log: a header line
// followed by one Record.String() per line, optionally gzip-compressed.
//
// The raw log is the external textual form of a run. A captured raw log is
// the known-good reference that regression checks compare streams against.
package rawlog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/paysim/paysim/internal/sim"
)

// gzipMagic is the two-byte gzip member header.
var gzipMagic = []byte{0x1f, 0x8b}

// Writer writes records as raw log lines. The header is written before the
// first record, or by Close when no record was written.
//
// Thread-safety: Writer is not safe for concurrent use.
type Writer struct {
	buf     *bufio.Writer
	closers []io.Closer
	header  bool
	count   int
}

// NewWriter writes a plain raw log to w. Close flushes but does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{buf: bufio.NewWriter(w)}
}

// Create creates (or truncates) the raw log at path. Paths ending in ".gz"
// are gzip-compressed.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create raw log: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		w := NewWriter(f)
		w.closers = []io.Closer{f}
		return w, nil
	}

	zw := gzip.NewWriter(f)
	w := NewWriter(zw)
	// gzip first so its trailer is written before the file closes
	w.closers = []io.Closer{zw, f}
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(r sim.Record) error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	if _, err := w.buf.WriteString(r.String() + "\n"); err != nil {
		return fmt.Errorf("write record %d: %w", w.count+1, err)
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes buffered lines and closes any file or compressor opened by
// Create. Every close is attempted; the errors are combined.
func (w *Writer) Close() error {
	err := w.writeHeader()
	err = multierr.Append(err, w.buf.Flush())
	for _, c := range w.closers {
		err = multierr.Append(err, c.Close())
	}
	w.closers = nil
	return err
}

func (w *Writer) writeHeader() error {
	if w.header {
		return nil
	}
	w.header = true
	if _, err := w.buf.WriteString(sim.Header + "\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Reader reads raw log lines, skipping the header.
//
// Thread-safety: Reader is not safe for concurrent use.
type Reader struct {
	scanner *bufio.Scanner
	closers []io.Closer
	line    int
	err     error
}

// NewReader reads a raw log from r, plain or gzip-compressed. Compression is
// detected from the content, not from a file name.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read raw log: %w", err)
	}

	var src io.Reader = br
	var closers []io.Closer
	if bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip raw log: %w", err)
		}
		src = zr
		closers = append(closers, zr)
	}

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: sc, closers: closers}, nil
}

// Open opens the raw log at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw log: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	r.closers = append(r.closers, f)
	return r, nil
}

// Next returns the next record line. It returns false at the end of the log
// or on a read error; check Err afterwards.
func (r *Reader) Next() (string, bool) {
	for r.err == nil && r.scanner.Scan() {
		r.line++
		text := strings.TrimRight(r.scanner.Text(), "\r")
		if r.line == 1 && text == sim.Header {
			continue
		}
		return text, true
	}
	if r.err == nil {
		r.err = r.scanner.Err()
	}
	return "", false
}

// Err returns the first read error, if any.
func (r *Reader) Err() error {
	if r.err != nil {
		return fmt.Errorf("read raw log line %d: %w", r.line+1, r.err)
	}
	return nil
}

// Close releases the file and decompressor opened by Open.
func (r *Reader) Close() error {
	var err error
	for _, c := range r.closers {
		err = multierr.Append(err, c.Close())
	}
	r.closers = nil
	return err
}

// ReadLines returns every record line of the raw log at path.
func ReadLines(path string) (lines []string, err error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, r.Close())
	}()

	for {
		line, ok := r.Next()
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// WriteFile writes records to a new raw log at path.
func WriteFile(path string, records []sim.Record) (err error) {
	w, err := Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, w.Close())
	}()

	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
