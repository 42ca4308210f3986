package cobs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/danmuck/framelink/transport"
)

const (
	defaultMaxFrame = 64 * 1024
	defaultDepth    = 8
)

// StreamOption adjusts a Stream.
type StreamOption func(*Stream)

// WithMaxFrame bounds the decoded size of one inbound frame. Oversize
// frames are discarded and counted, not fatal.
func WithMaxFrame(n int) StreamOption {
	return func(s *Stream) { s.maxFrame = n }
}

// WithDepth sets the inbound frame buffer depth.
func WithDepth(n int) StreamOption {
	return func(s *Stream) { s.depth = n }
}

// Stream adapts a raw byte stream (serial port, TCP connection) into a
// frame transport by COBS-encoding each frame and terminating it with 0x00.
type Stream struct {
	rwc      io.ReadWriteCloser
	maxFrame int
	depth    int

	wmu  sync.Mutex
	wbuf []byte

	frames chan []byte
	done   chan struct{}
	once   sync.Once

	badFrames atomic.Uint64
}

// NewStream wraps rwc and starts the inbound reader.
func NewStream(rwc io.ReadWriteCloser, opts ...StreamOption) *Stream {
	s := &Stream{
		rwc:      rwc,
		maxFrame: defaultMaxFrame,
		depth:    defaultDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.frames = make(chan []byte, s.depth)
	s.done = make(chan struct{})
	go s.readLoop()
	return s
}

func (s *Stream) SendFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	select {
	case <-s.done:
		return transport.ErrClosed
	default:
	}
	s.wbuf = Encode(s.wbuf[:0], frame)
	s.wbuf = append(s.wbuf, 0)
	if _, err := s.rwc.Write(s.wbuf); err != nil {
		return fmt.Errorf("cobs: write: %w (%w)", err, transport.ErrClosed)
	}
	return nil
}

func (s *Stream) RecvFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-s.frames:
		if !ok {
			return nil, transport.ErrClosed
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Stream) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.rwc.Close()
}

// BadFrames reports how many inbound blocks were dropped for being empty,
// malformed, or oversize.
func (s *Stream) BadFrames() uint64 {
	return s.badFrames.Load()
}

// readLoop splits the inbound byte stream on 0x00 terminators, decodes each
// block, and hands whole frames to RecvFrame. Malformed blocks are counted
// and skipped; a read error ends the stream.
func (s *Stream) readLoop() {
	defer close(s.frames)
	br := bufio.NewReader(s.rwc)
	for {
		block, err := br.ReadBytes(0)
		if len(block) > 0 && block[len(block)-1] == 0 {
			block = block[:len(block)-1]
			if frame, derr := s.decodeBlock(block); derr == nil {
				select {
				case s.frames <- frame:
				case <-s.done:
					return
				}
			} else {
				s.badFrames.Add(1)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Stream) decodeBlock(block []byte) ([]byte, error) {
	if len(block) > s.maxFrame+s.maxFrame/254+1 {
		return nil, ErrBadFrame
	}
	frame, err := Decode(nil, block)
	if err != nil {
		return nil, err
	}
	if len(frame) > s.maxFrame {
		return nil, ErrBadFrame
	}
	return frame, nil
}
