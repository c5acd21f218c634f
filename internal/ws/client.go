package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBufferSize = 256
	frameBuffer    = 16
)

// Close codes beyond RFC 6455 used by the sessions.
const (
	CloseRoomRequired = 4001
	CloseForbidden    = 4003
)

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

// client owns one websocket connection. writePump is the only writer; every
// other goroutine queues frames through send.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string

	// readErr is written by readLoop before it closes its frame channel.
	readErr error
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// sendJSON queues v without blocking.
func (c *client) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendBufferFull
	}
}

// closeWith asks writePump to flush queued frames and then send a close frame.
func (c *client) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, err.Error())
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, err.Error())
				return
			}
		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeReason))
			return
		}
	}
}

func (c *client) flush() {
	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *client) write(messageType int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

// readLoop delivers inbound text frames in order. When the peer goes away it
// records the reason, cancels the session context and closes the channel.
func (c *client) readLoop(ctx context.Context, cancel context.CancelFunc) <-chan []byte {
	frames := make(chan []byte, frameBuffer)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer close(frames)
		defer cancel()
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				c.readErr = err
				return
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				c.readErr = ctx.Err()
				return
			}
		}
	}()
	return frames
}

// disconnectReason describes why readLoop stopped and whether the peer went
// away abnormally. Server-initiated closes are never abnormal.
func (c *client) disconnectReason() (string, bool) {
	if c.readErr == nil {
		return "", false
	}
	select {
	case <-c.done:
		return c.readErr.Error(), false
	default:
	}
	abnormal := !websocket.IsCloseError(c.readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
		!errors.Is(c.readErr, context.Canceled)
	return c.readErr.Error(), abnormal
}
