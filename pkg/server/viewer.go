package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/reactor/pkg/protocol"
)

// maxViewerMessage bounds what a viewer may send; viewers only send control
// frames.
const maxViewerMessage = 4096

// viewer is one WebSocket connection following a mirror.
type viewer struct {
	id     string
	conn   *websocket.Conn
	mirror *Mirror
	config *Config
	logger *slog.Logger

	// initial is written before anything from send.
	initial [][]byte
	send    chan []byte

	done      chan struct{}
	closeOnce sync.Once
	reason    protocol.CloseReason
}

func newViewer(id string, conn *websocket.Conn, m *Mirror, config *Config) *viewer {
	return &viewer{
		id:     id,
		conn:   conn,
		mirror: m,
		config: config,
		logger: config.Logger.With("viewer", id),
		send:   make(chan []byte, config.QueueSize),
		done:   make(chan struct{}),
	}
}

// enqueue hands a frame to the writer without blocking. It reports false
// when the queue is full.
func (v *viewer) enqueue(frame []byte) bool {
	select {
	case v.send <- frame:
		return true
	default:
		return false
	}
}

// close asks the writer to say goodbye and shut the connection.
func (v *viewer) close(reason protocol.CloseReason) {
	v.closeOnce.Do(func() {
		v.reason = reason
		close(v.done)
	})
}

// writeLoop owns all writes to the connection.
func (v *viewer) writeLoop() {
	defer v.conn.Close()

	ticker := time.NewTicker(v.config.PingInterval)
	defer ticker.Stop()

	for _, frame := range v.initial {
		if !v.write(frame) {
			return
		}
	}
	v.initial = nil

	for {
		select {
		case frame := <-v.send:
			if !v.write(frame) {
				return
			}

		case <-ticker.C:
			ping := protocol.Control{Type: protocol.ControlPing, Timestamp: uint64(time.Now().UnixMilli())}
			frame, _ := protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(ping)).Encode()
			if !v.write(frame) {
				return
			}

		case <-v.done:
			bye := protocol.Control{Type: protocol.ControlClose, Reason: v.reason}
			frame, _ := protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(bye)).Encode()
			v.conn.SetWriteDeadline(time.Now().Add(v.config.WriteTimeout))
			if err := v.conn.WriteMessage(websocket.BinaryMessage, frame); err == nil {
				v.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, v.reason.String()),
					time.Now().Add(time.Second),
				)
			}
			return
		}
	}
}

func (v *viewer) write(frame []byte) bool {
	v.conn.SetWriteDeadline(time.Now().Add(v.config.WriteTimeout))
	if err := v.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		v.logger.Debug("write failed", "error", err)
		if v.config.Metrics != nil {
			v.config.Metrics.WebSocketError("write")
		}
		v.mirror.detach(v, protocol.CloseNormal)
		return false
	}
	return true
}

// readLoop handles control frames from the viewer. It blocks until the
// connection fails or the viewer leaves.
func (v *viewer) readLoop() {
	defer v.mirror.detach(v, protocol.CloseNormal)

	v.conn.SetReadLimit(maxViewerMessage)
	for {
		v.conn.SetReadDeadline(time.Now().Add(v.config.ReadTimeout))
		_, msg, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				v.logger.Warn("read error", "error", err)
				if v.config.Metrics != nil {
					v.config.Metrics.WebSocketError("read")
				}
			}
			return
		}

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			v.logger.Warn("frame decode error", "error", err)
			if v.config.Metrics != nil {
				v.config.Metrics.WebSocketError("decode")
			}
			continue
		}

		switch frame.Type {
		case protocol.FrameControl:
			c, err := protocol.DecodeControl(frame.Payload)
			if err != nil {
				v.logger.Warn("control decode error", "error", err)
				continue
			}
			switch c.Type {
			case protocol.ControlPing:
				pong := protocol.Control{Type: protocol.ControlPong, Timestamp: c.Timestamp}
				frame, _ := protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(pong)).Encode()
				if !v.enqueue(frame) {
					return
				}
			case protocol.ControlPong:
				// The read deadline has already moved.
			case protocol.ControlClose:
				return
			}

		case protocol.FrameError:
			if em, err := protocol.DecodeErrorMessage(frame.Payload); err == nil {
				v.logger.Warn("viewer reported error", "code", em.Code, "message", em.Message, "fatal", em.Fatal)
				if em.Fatal {
					return
				}
			}

		default:
			v.logger.Warn("unexpected frame type", "type", frame.Type)
		}
	}
}
