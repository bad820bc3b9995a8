package protocol

import "fmt"

// ControlType is the subtype of a FrameControl payload.
type ControlType uint8

const (
	ControlPing  ControlType = 0x01 // Liveness probe
	ControlPong  ControlType = 0x02 // Answer to a ping, echoes its timestamp
	ControlClose ControlType = 0x03 // Orderly shutdown
)

// String returns the string representation of the control type.
func (ct ControlType) String() string {
	switch ct {
	case ControlPing:
		return "Ping"
	case ControlPong:
		return "Pong"
	case ControlClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// CloseReason explains a ControlClose.
type CloseReason uint8

const (
	CloseNormal        CloseReason = 0x00
	CloseServerStopped CloseReason = 0x01
	CloseSlowViewer    CloseReason = 0x02 // Viewer fell too far behind
)

// String returns the string representation of the close reason.
func (cr CloseReason) String() string {
	switch cr {
	case CloseNormal:
		return "Normal"
	case CloseServerStopped:
		return "ServerStopped"
	case CloseSlowViewer:
		return "SlowViewer"
	default:
		return "Unknown"
	}
}

// Control is the payload of a FrameControl.
type Control struct {
	Type      ControlType
	Timestamp uint64      // Ping, Pong: unix milliseconds
	Reason    CloseReason // Close
}

// EncodeControl encodes c as a frame payload.
func EncodeControl(c Control) []byte {
	e := NewEncoder()
	e.WriteByte(byte(c.Type))
	switch c.Type {
	case ControlPing, ControlPong:
		e.WriteUvarint(c.Timestamp)
	case ControlClose:
		e.WriteByte(byte(c.Reason))
	}
	return e.Bytes()
}

// DecodeControl decodes a FrameControl payload.
func DecodeControl(data []byte) (Control, error) {
	d := NewDecoder(data)
	b, err := d.ReadByte()
	if err != nil {
		return Control{}, err
	}
	c := Control{Type: ControlType(b)}
	switch c.Type {
	case ControlPing, ControlPong:
		c.Timestamp, err = d.ReadUvarint()
	case ControlClose:
		var r byte
		r, err = d.ReadByte()
		c.Reason = CloseReason(r)
	default:
		return Control{}, fmt.Errorf("protocol: unknown control type 0x%02x", b)
	}
	if err != nil {
		return Control{}, err
	}
	return c, nil
}
