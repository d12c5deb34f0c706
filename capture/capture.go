// Package capture records snapshot streams to disk and replays them.
//
// A capture file is the magic "DSCAP", a 4-byte big-endian header length,
// the CBOR encoded Header, and then a sequence of CBOR encoded Records,
// compressed as a whole with the codec the header names.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Version is the capture format version written by this package.
const Version = 1

var magic = [5]byte{'D', 'S', 'C', 'A', 'P'}

// maxHeaderSize bounds the header a reader accepts.
const maxHeaderSize = 1 << 16

var ErrBadMagic = errors.New("capture: not a capture file")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("capture: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("capture: CBOR decoder initialization failed: " + err.Error())
	}
}

// Header describes a capture.
type Header struct {
	Version int `cbor:"version"`
	// Session identifies the recording.
	Session uuid.UUID `cbor:"session"`
	// Schema is the fingerprint of the schema the snapshots were encoded with.
	Schema      [32]byte    `cbor:"schema"`
	Compression Compression `cbor:"compression"`
	// Created is the recording start in Unix nanoseconds.
	Created int64 `cbor:"created"`
}

// NewHeader returns a header for a new recording session.
func NewHeader(schemaFingerprint [32]byte, compression Compression) Header {
	return Header{
		Version:     Version,
		Session:     uuid.New(),
		Schema:      schemaFingerprint,
		Compression: compression,
		Created:     time.Now().UnixNano(),
	}
}

// Record is one snapshot and the simulation frame it was received at.
type Record struct {
	Frame   uint64 `cbor:"frame"`
	Payload []byte `cbor:"payload"`
}

// Writer appends records to a capture.
type Writer struct {
	header Header
	codec  io.WriteCloser
	enc    *cbor.Encoder
	count  int
	closed bool
}

// NewWriter writes header to w and returns a writer for the records.
// Close must be called to flush the codec; it does not close w.
func NewWriter(w io.Writer, header Header) (*Writer, error) {
	if header.Version == 0 {
		header.Version = Version
	}
	encoded, err := encMode.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encoding capture header: %w", err)
	}

	var prefix [len(magic) + 4]byte
	copy(prefix[:], magic[:])
	binary.BigEndian.PutUint32(prefix[len(magic):], uint32(len(encoded)))
	if _, err := w.Write(prefix[:]); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}

	codec, err := compressor(w, header.Compression)
	if err != nil {
		return nil, err
	}
	return &Writer{header: header, codec: codec, enc: encMode.NewEncoder(codec)}, nil
}

func (w *Writer) Header() Header { return w.header }

// Len returns the number of records written.
func (w *Writer) Len() int { return w.count }

func (w *Writer) Write(rec Record) error {
	if w.closed {
		return errors.New("capture: write to closed writer")
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding record %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Close flushes buffered records.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.codec.Close()
}

// Reader iterates the records of a capture.
type Reader struct {
	header  Header
	dec     *cbor.Decoder
	release func()
}

// NewReader reads the header from r. Close releases codec resources; it
// does not close r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	var prefix [len(magic) + 4]byte
	if _, err := io.ReadFull(br, prefix[:]); err != nil {
		return nil, fmt.Errorf("reading capture header: %w", err)
	}
	if [len(magic)]byte(prefix[:len(magic)]) != magic {
		return nil, ErrBadMagic
	}
	size := binary.BigEndian.Uint32(prefix[len(magic):])
	if size > maxHeaderSize {
		return nil, fmt.Errorf("capture: header of %d bytes exceeds %d", size, maxHeaderSize)
	}

	encoded := make([]byte, size)
	if _, err := io.ReadFull(br, encoded); err != nil {
		return nil, fmt.Errorf("reading capture header: %w", err)
	}
	var header Header
	if err := decMode.Unmarshal(encoded, &header); err != nil {
		return nil, fmt.Errorf("decoding capture header: %w", err)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("capture: unsupported version %d", header.Version)
	}

	body, release, err := decompressor(br, header.Compression)
	if err != nil {
		return nil, err
	}
	return &Reader{header: header, dec: decMode.NewDecoder(body), release: release}, nil
}

func (r *Reader) Header() Header { return r.header }

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

func (r *Reader) Close() {
	r.release()
}
