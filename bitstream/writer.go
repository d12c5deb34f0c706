package bitstream

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/icza/bitio"
)

var errWriterClosed = errors.New("bitstream: writer closed")

// Writer accumulates bits MSB first into an in-memory buffer.
type Writer struct {
	buf    bytes.Buffer
	out    *bitio.Writer
	pos    uint64
	closed bool
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	w := &Writer{}
	w.out = bitio.NewWriter(&w.buf)
	return w
}

// Position returns the number of bits written so far.
func (w *Writer) Position() uint64 {
	return w.pos
}

// WriteBits writes the n (at most 64) lowest bits of v.
func (w *Writer) WriteBits(v uint64, n uint8) error {
	if w.closed {
		return errWriterClosed
	}
	if n > 64 {
		return fmt.Errorf("bitstream: cannot write %d bits at once", n)
	}
	if n < 64 && v>>n != 0 {
		return fmt.Errorf("%w: %d does not fit in %d bits", ErrOutOfRange, v, n)
	}
	if err := w.out.WriteBits(v, n); err != nil {
		return err
	}
	w.pos += uint64(n)
	return nil
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(b bool) error {
	var v uint64
	if b {
		v = 1
	}
	return w.WriteBits(v, 1)
}

// WriteMask writes a field presence bit.
func (w *Writer) WriteMask(present bool) error {
	return w.WriteBool(present)
}

// Bytes pads the stream to a byte boundary and returns the encoded bytes.
// No further writes are accepted afterwards.
func (w *Writer) Bytes() ([]byte, error) {
	if !w.closed {
		if err := w.out.Close(); err != nil {
			return nil, err
		}
		w.closed = true
	}
	return w.buf.Bytes(), nil
}
