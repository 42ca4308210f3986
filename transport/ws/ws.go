// Package ws adapts a websocket connection into a frame transport: one
// binary message per frame. It is the browser-facing analog of the raw USB
// bulk link, where the socket already preserves message boundaries.
package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/danmuck/framelink/transport"
)

// Transport carries frames over a *websocket.Conn.
type Transport struct {
	conn *websocket.Conn

	wmu sync.Mutex

	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

// New wraps an established websocket connection and starts the inbound
// reader. The caller hands over ownership of conn.
func New(conn *websocket.Conn, depth int) *Transport {
	if depth <= 0 {
		depth = 8
	}
	t := &Transport{
		conn:   conn,
		frames: make(chan []byte, depth),
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *Transport) SendFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()
	select {
	case <-t.done:
		return transport.ErrClosed
	default:
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("ws: write: %w (%w)", err, transport.ErrClosed)
	}
	return nil
}

func (t *Transport) RecvFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-t.frames:
		if !ok {
			return nil, transport.ErrClosed
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) Close() error {
	t.once.Do(func() { close(t.done) })
	return t.conn.Close()
}

func (t *Transport) readLoop() {
	defer close(t.frames)
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		select {
		case t.frames <- data:
		case <-t.done:
			return
		}
	}
}
