package transport

import (
	"context"
	"sync"
)

// Pair returns two connected in-memory transports. Frames sent on one side
// arrive on the other in order, buffered up to depth frames per direction.
// Closing either side closes both.
func Pair(depth int) (Transport, Transport) {
	if depth <= 0 {
		depth = 8
	}
	ab := make(chan []byte, depth)
	ba := make(chan []byte, depth)
	shared := &pairShared{closed: make(chan struct{})}
	a := &pairEnd{tx: ab, rx: ba, shared: shared}
	b := &pairEnd{tx: ba, rx: ab, shared: shared}
	return a, b
}

type pairShared struct {
	once   sync.Once
	closed chan struct{}
}

type pairEnd struct {
	tx     chan []byte
	rx     chan []byte
	shared *pairShared
}

func (p *pairEnd) SendFrame(ctx context.Context, frame []byte) error {
	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case <-p.shared.closed:
		return ErrClosed
	default:
	}
	select {
	case p.tx <- buf:
		return nil
	case <-p.shared.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pairEnd) RecvFrame(ctx context.Context) ([]byte, error) {
	// Drain buffered frames even after close, then report the closed link.
	select {
	case frame := <-p.rx:
		return frame, nil
	default:
	}
	select {
	case frame := <-p.rx:
		return frame, nil
	case <-p.shared.closed:
		select {
		case frame := <-p.rx:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pairEnd) Close() error {
	p.shared.once.Do(func() { close(p.shared.closed) })
	return nil
}
