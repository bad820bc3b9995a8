// Package viewer is the Go side of a mirror connection: it follows a served
// tree over WebSocket and keeps a protocol.Replica in step with it.
//
//	c, err := viewer.Dial(ctx, "http://localhost:3000")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	for {
//	    if _, err := c.Next(ctx); err != nil {
//	        return err
//	    }
//	    fmt.Println(c.Replica().Markup())
//	}
package viewer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/reactor/pkg/protocol"
)

// CloseError is returned by Next when the server ends the session.
type CloseError struct {
	Reason protocol.CloseReason
}

func (e *CloseError) Error() string {
	return "viewer: closed by server: " + e.Reason.String()
}

// IsClosed reports whether err is a CloseError.
func IsClosed(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce)
}

// Stats counts what a client received.
type Stats struct {
	Frames    uint64
	Bytes     uint64
	Batches   uint64
	Mutations uint64
	Snapshots uint64
}

// Client follows one mirror.
type Client struct {
	conn    *websocket.Conn
	replica *protocol.Replica

	writeMu sync.Mutex

	// seq mirrors replica.Seq for readers on other goroutines.
	seq atomic.Uint64

	frames    atomic.Uint64
	bytes     atomic.Uint64
	batches   atomic.Uint64
	mutations atomic.Uint64
	snapshots atomic.Uint64
}

// Dial connects to the mirror served at base, an http or https URL. The first
// frame Next reads is the snapshot.
func Dial(ctx context.Context, base string) (*Client, error) {
	return dial(ctx, base, protocol.NewReplica(), false)
}

// Resume reconnects with replica, asking only for the batches after its
// sequence number. The server falls back to a snapshot when it no longer
// has them.
func Resume(ctx context.Context, base string, replica *protocol.Replica) (*Client, error) {
	return dial(ctx, base, replica, true)
}

func dial(ctx context.Context, base string, replica *protocol.Replica, resume bool) (*Client, error) {
	u, err := wsURL(base)
	if err != nil {
		return nil, err
	}
	if resume {
		q := u.Query()
		q.Set("since", strconv.FormatUint(replica.Seq(), 10))
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("viewer: dial %s: %w", u, err)
	}
	c := &Client{conn: conn, replica: replica}
	c.seq.Store(replica.Seq())
	return c, nil
}

func wsURL(base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("viewer: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("viewer: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u, nil
}

// Replica returns the tree as last received. It is only safe to read from
// the goroutine calling Next.
func (c *Client) Replica() *protocol.Replica {
	return c.replica
}

// Seq returns the sequence number of the last snapshot or batch applied.
// Unlike Replica it may be called from any goroutine.
func (c *Client) Seq() uint64 {
	return c.seq.Load()
}

// Stats returns the receive counters.
func (c *Client) Stats() Stats {
	return Stats{
		Frames:    c.frames.Load(),
		Bytes:     c.bytes.Load(),
		Batches:   c.batches.Load(),
		Mutations: c.mutations.Load(),
		Snapshots: c.snapshots.Load(),
	}
}

// Next reads and applies one frame and returns its type. Pings are answered
// before Next returns. A ControlClose from the server yields a *CloseError; a
// fatal error frame yields the *protocol.ErrorMessage.
func (c *Client) Next(ctx context.Context) (protocol.FrameType, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}

	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	c.frames.Add(1)
	c.bytes.Add(uint64(len(msg)))

	frame, err := protocol.DecodeFrame(msg)
	if err != nil {
		return 0, err
	}

	switch frame.Type {
	case protocol.FrameSnapshot:
		snap, err := protocol.DecodeSnapshot(frame.Payload)
		if err != nil {
			return frame.Type, err
		}
		c.replica.Load(snap)
		c.seq.Store(snap.Seq)
		c.snapshots.Add(1)

	case protocol.FrameMutations:
		batch, err := protocol.DecodeBatch(frame.Payload)
		if err != nil {
			return frame.Type, err
		}
		if err := c.replica.Apply(batch); err != nil {
			return frame.Type, err
		}
		c.seq.Store(batch.Seq)
		c.batches.Add(1)
		c.mutations.Add(uint64(len(batch.Mutations)))

	case protocol.FrameControl:
		ctl, err := protocol.DecodeControl(frame.Payload)
		if err != nil {
			return frame.Type, err
		}
		switch ctl.Type {
		case protocol.ControlPing:
			return frame.Type, c.send(protocol.Control{Type: protocol.ControlPong, Timestamp: ctl.Timestamp})
		case protocol.ControlClose:
			return frame.Type, &CloseError{Reason: ctl.Reason}
		}

	case protocol.FrameError:
		em, err := protocol.DecodeErrorMessage(frame.Payload)
		if err != nil {
			return frame.Type, err
		}
		if em.Fatal {
			return frame.Type, em
		}
	}
	return frame.Type, nil
}

// WaitSeq calls Next until the replica has reached seq.
func (c *Client) WaitSeq(ctx context.Context, seq uint64) error {
	for c.replica.Root() == nil || c.replica.Seq() < seq {
		if _, err := c.Next(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Ping sends a liveness probe. The pong arrives through Next.
func (c *Client) Ping() error {
	return c.send(protocol.Control{Type: protocol.ControlPing, Timestamp: uint64(time.Now().UnixMilli())})
}

func (c *Client) send(ctl protocol.Control) error {
	frame, err := protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(ctl)).Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Close says goodbye and closes the connection.
func (c *Client) Close() error {
	_ = c.send(protocol.Control{Type: protocol.ControlClose, Reason: protocol.CloseNormal})
	return c.conn.Close()
}
