package protocol

import "encoding/binary"

// Encoder builds a payload. Writes cannot fail; the buffer grows as needed.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

// Reset discards the contents and keeps the capacity.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

// Bytes returns the payload so far. It aliases the encoder's buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len is len(e.Bytes()).
func (e *Encoder) Len() int { return len(e.buf) }

// WriteByte appends b.
func (e *Encoder) WriteByte(b byte) { e.buf = append(e.buf, b) }

// WriteBytes appends b unframed.
func (e *Encoder) WriteBytes(b []byte) { e.buf = append(e.buf, b...) }

// WriteUvarint appends v as a LEB128 varint.
func (e *Encoder) WriteUvarint(v uint64) { e.buf = binary.AppendUvarint(e.buf, v) }

// WriteString appends len(s) as a varint, then s.
func (e *Encoder) WriteString(s string) {
	e.WriteUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteBool appends 1 for true and 0 for false.
func (e *Encoder) WriteBool(b bool) {
	var v byte
	if b {
		v = 1
	}
	e.buf = append(e.buf, v)
}

// WriteUint32 appends v big-endian.
func (e *Encoder) WriteUint32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }

// UvarintLen is the encoded size of v.
func UvarintLen(v uint64) int {
	var scratch [binary.MaxVarintLen64]byte
	return binary.PutUvarint(scratch[:], v)
}
