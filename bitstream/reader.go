// Package bitstream reads and writes MSB-first bit streams and the typed
// field encodings used by the replication protocol.
package bitstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/icza/bitio"
)

// ErrOutOfRange is returned when an encoded value falls outside the range its
// encoding allows, or a value handed to a Writer cannot be encoded.
var ErrOutOfRange = errors.New("bitstream: value out of range")

// Reader is a forward-only bit reader over a byte slice. It never rewinds.
type Reader struct {
	in   *bitio.Reader
	pos  uint64
	size uint64
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{
		in:   bitio.NewReader(bytes.NewReader(data)),
		size: uint64(len(data)) * 8,
	}
}

// Position returns the number of bits consumed so far.
func (r *Reader) Position() uint64 {
	return r.pos
}

// Remaining returns the number of unread bits, including byte padding.
func (r *Reader) Remaining() uint64 {
	return r.size - r.pos
}

// ReadBits reads n (at most 64) bits as an unsigned integer.
// Reading past the end returns io.ErrUnexpectedEOF and consumes nothing.
func (r *Reader) ReadBits(n uint8) (uint64, error) {
	if n > 64 {
		return 0, fmt.Errorf("bitstream: cannot read %d bits at once", n)
	}
	if uint64(n) > r.Remaining() {
		return 0, io.ErrUnexpectedEOF
	}
	v, err := r.in.ReadBits(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	r.pos += uint64(n)
	return v, nil
}

// ReadBool reads a single bit.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// ReadMask reads a field presence bit.
func (r *Reader) ReadMask() (bool, error) {
	return r.ReadBool()
}

// SkipBits consumes n bits without interpreting them.
func (r *Reader) SkipBits(n uint64) error {
	if n > r.Remaining() {
		return io.ErrUnexpectedEOF
	}
	for n > 0 {
		chunk := min(n, 64)
		if _, err := r.ReadBits(uint8(chunk)); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
