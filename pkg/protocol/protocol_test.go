package protocol

import (
	"errors"
	"io"
	"testing"

	"github.com/vango-dev/reactor/pkg/dom"
)

func TestFrameEncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"empty_payload", Frame{Type: FrameMutations, Payload: []byte{}}},
		{"snapshot", Frame{Type: FrameSnapshot, Payload: []byte{0x01, 0x02, 0x03}}},
		{"control", Frame{Type: FrameControl, Payload: EncodeControl(Control{Type: ControlPing, Timestamp: 42})}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := tc.frame.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if len(encoded) != FrameHeaderSize+len(tc.frame.Payload) {
				t.Errorf("Encode() length = %d", len(encoded))
			}
			decoded, err := DecodeFrame(encoded)
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if decoded.Type != tc.frame.Type || string(decoded.Payload) != string(tc.frame.Payload) {
				t.Errorf("DecodeFrame() = %+v, want %+v", decoded, tc.frame)
			}
		})
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, io.ErrUnexpectedEOF},
		{"short_header", []byte{0x02, 0x00}, io.ErrUnexpectedEOF},
		{"unknown_type", []byte{0x09, 0, 0, 0, 0}, ErrInvalidFrameType},
		{"short_payload", []byte{0x02, 0, 0, 0, 3, 0x01}, io.ErrUnexpectedEOF},
		{"trailing", []byte{0x02, 0, 0, 0, 1, 0x01, 0x02}, ErrTrailingBytes},
		{"too_large", []byte{0x02, 0xFF, 0xFF, 0xFF, 0xFF}, ErrFrameTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeFrame(tc.data); !errors.Is(err, tc.wantErr) {
				t.Errorf("DecodeFrame() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestDecoderLimits(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(MaxAllocation + 1)
	if _, err := NewDecoder(e.Bytes()).ReadString(); err != ErrAllocationTooLarge {
		t.Errorf("ReadString() error = %v, want %v", err, ErrAllocationTooLarge)
	}

	e.Reset()
	e.WriteUvarint(MaxCollectionCount + 1)
	if _, err := NewDecoder(e.Bytes()).ReadCollectionCount(); err != ErrCollectionTooLarge {
		t.Errorf("ReadCollectionCount() error = %v, want %v", err, ErrCollectionTooLarge)
	}

	overflow := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}
	if _, err := NewDecoder(overflow).ReadUvarint(); err != ErrVarintOverflow {
		t.Errorf("ReadUvarint() error = %v, want %v", err, ErrVarintOverflow)
	}

	if _, err := NewDecoder([]byte{0x02}).ReadBool(); err != ErrInvalidBool {
		t.Errorf("ReadBool() error = %v, want %v", err, ErrInvalidBool)
	}
}

func TestUvarintLen(t *testing.T) {
	for _, v := range []uint64{0, 127, 128, 16383, 16384, 1<<63 + 5} {
		e := NewEncoder()
		e.WriteUvarint(v)
		if got := UvarintLen(v); got != e.Len() {
			t.Errorf("UvarintLen(%d) = %d, encoded %d bytes", v, got, e.Len())
		}
	}
}

func TestTreeDepthLimit(t *testing.T) {
	e := NewEncoder()
	for i := 0; i < MaxTreeDepth+1; i++ {
		e.WriteByte(byte(dom.KindFragment))
		e.WriteUvarint(uint64(i + 1))
		e.WriteUvarint(1)
	}
	e.WriteByte(byte(dom.KindText))
	e.WriteUvarint(9999)
	e.WriteString("deep")

	if _, err := DecodeTree(NewDecoder(e.Bytes())); !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("DecodeTree() error = %v, want %v", err, ErrMaxDepthExceeded)
	}
}

func TestControlAndErrorPayloads(t *testing.T) {
	c, err := DecodeControl(EncodeControl(Control{Type: ControlClose, Reason: CloseSlowViewer}))
	if err != nil {
		t.Fatalf("DecodeControl() error = %v", err)
	}
	if c.Type != ControlClose || c.Reason != CloseSlowViewer {
		t.Errorf("DecodeControl() = %+v", c)
	}
	if _, err := DecodeControl([]byte{0x7F}); err == nil {
		t.Error("expected error for unknown control type")
	}

	em := NewErrorMessage(ErrSequenceGap, "R060", true)
	decoded, err := DecodeErrorMessage(EncodeErrorMessage(em))
	if err != nil {
		t.Fatalf("DecodeErrorMessage() error = %v", err)
	}
	if decoded.Code != "R060" || !decoded.Fatal || decoded.Message != em.Message {
		t.Errorf("DecodeErrorMessage() = %+v, want %+v", decoded, em)
	}
}
