package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// Limits applied while decoding, so a forged length cannot force a large
// allocation.
const (
	MaxAllocation      = 4 << 20 // bytes in one string
	MaxCollectionCount = 100_000 // items in one list
	MaxTreeDepth       = 256     // nesting of node descriptors
)

var (
	ErrVarintOverflow     = errors.New("protocol: varint overflow")
	ErrInvalidBool        = errors.New("protocol: invalid boolean value")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("protocol: collection count exceeds limit")
	ErrMaxDepthExceeded   = errors.New("protocol: maximum nesting depth exceeded")
)

// Decoder consumes a payload front to back. Every read fails with
// io.ErrUnexpectedEOF when the payload is too short.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder reads from buf without copying it.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining is the number of bytes not yet consumed.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// EOF reports whether the payload is fully consumed.
func (d *Decoder) EOF() bool { return d.Remaining() <= 0 }

func (d *Decoder) ReadByte() (byte, error) {
	if d.EOF() {
		return 0, io.ErrUnexpectedEOF
	}
	d.pos++
	return d.buf[d.pos-1], nil
}

func (d *Decoder) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0:
		return 0, ErrVarintOverflow
	}
	d.pos += n
	return v, nil
}

// ReadString reads a varint length and that many bytes.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadUvarint()
	switch {
	case err != nil:
		return "", err
	case n > MaxAllocation:
		return "", ErrAllocationTooLarge
	case n > uint64(d.Remaining()):
		return "", io.ErrUnexpectedEOF
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

// ReadBool accepts only 0 and 1.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	if b > 1 {
		return false, ErrInvalidBool
	}
	return b == 1, nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	if d.Remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

// ReadCollectionCount reads a list length. Every item takes at least one
// byte, so a count above Remaining is rejected before anything is allocated.
func (d *Decoder) ReadCollectionCount() (int, error) {
	n, err := d.ReadUvarint()
	switch {
	case err != nil:
		return 0, err
	case n > MaxCollectionCount:
		return 0, ErrCollectionTooLarge
	case n > uint64(d.Remaining()):
		return 0, io.ErrUnexpectedEOF
	}
	return int(n), nil
}
