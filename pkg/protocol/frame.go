package protocol

import (
	"errors"
	"fmt"
	"io"
)

// FrameHeaderSize is the size of the frame header in bytes.
const FrameHeaderSize = 5

// FrameType identifies the type of frame.
type FrameType uint8

const (
	FrameSnapshot  FrameType = 0x01 // Full tree of the mirrored root
	FrameMutations FrameType = 0x02 // Ordered batch of tree mutations
	FrameControl   FrameType = 0x03 // Ping, pong, close
	FrameError     FrameType = 0x04 // Error message
)

// String returns the string representation of the frame type.
func (ft FrameType) String() string {
	switch ft {
	case FrameSnapshot:
		return "Snapshot"
	case FrameMutations:
		return "Mutations"
	case FrameControl:
		return "Control"
	case FrameError:
		return "Error"
	default:
		return "Unknown"
	}
}

func (ft FrameType) valid() bool {
	return ft >= FrameSnapshot && ft <= FrameError
}

// Frame errors.
var (
	ErrFrameTooLarge    = errors.New("protocol: frame payload too large")
	ErrInvalidFrameType = errors.New("protocol: invalid frame type")
	ErrTrailingBytes    = errors.New("protocol: trailing bytes after payload")
)

// Frame is one protocol message.
//
// Wire format (5 bytes header + payload):
//
//	┌─────────────┬───────────────────────────────┐
//	│ Frame Type  │ Payload Length                │
//	│ (1 byte)    │ (4 bytes, big-endian)         │
//	└─────────────┴───────────────────────────────┘
//	│  Payload (variable length)                  │
//	└─────────────────────────────────────────────┘
type Frame struct {
	Type    FrameType
	Payload []byte
}

// NewFrame creates a frame of type ft.
func NewFrame(ft FrameType, payload []byte) *Frame {
	return &Frame{Type: ft, Payload: payload}
}

// Encode returns the frame bytes including the header.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxAllocation {
		return nil, ErrFrameTooLarge
	}
	e := &Encoder{buf: make([]byte, 0, FrameHeaderSize+len(f.Payload))}
	e.WriteByte(byte(f.Type))
	e.WriteUint32(uint32(len(f.Payload)))
	e.WriteBytes(f.Payload)
	return e.Bytes(), nil
}

// DecodeFrame decodes exactly one frame from data.
func DecodeFrame(data []byte) (*Frame, error) {
	d := NewDecoder(data)
	b, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	ft := FrameType(b)
	if !ft.valid() {
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidFrameType, b)
	}
	length, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if length > MaxAllocation {
		return nil, ErrFrameTooLarge
	}
	switch {
	case int(length) > d.Remaining():
		return nil, io.ErrUnexpectedEOF
	case int(length) < d.Remaining():
		return nil, ErrTrailingBytes
	}

	payload := make([]byte, length)
	copy(payload, data[FrameHeaderSize:])
	return &Frame{Type: ft, Payload: payload}, nil
}
