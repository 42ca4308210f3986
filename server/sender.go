package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/framelink/codec"
	"github.com/danmuck/framelink/transport"
	"github.com/danmuck/framelink/wire"
)

// ErrReplyTooLarge reports an outbound message that does not fit the shared
// frame buffer. Nothing partial reaches the wire.
var ErrReplyTooLarge = errors.New("server: reply exceeds outbound buffer")

// OverflowError carries the sizes behind ErrReplyTooLarge.
type OverflowError struct {
	Len int
	Max int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("server: reply of %d bytes exceeds outbound buffer of %d", e.Len, e.Max)
}

func (e *OverflowError) Is(target error) bool {
	return target == ErrReplyTooLarge
}

// Sender is the single outbound path shared by the dispatch loop and every
// spawned handler task. One fixed-capacity buffer holds the frame being
// serialised; the lock spans serialise-and-send so frames never interleave
// and the buffer is free for the next holder on return.
type Sender struct {
	tr transport.Transport

	mu     sync.Mutex
	buf    []byte
	pubSeq uint32
}

func newSender(tr transport.Transport, bufSize int) *Sender {
	return &Sender{tr: tr, buf: make([]byte, 0, bufSize)}
}

// send serialises (key, seq, payload) into the shared buffer and ships it.
func (sn *Sender) send(ctx context.Context, key wire.Key, seq uint32, payload any) error {
	sn.mu.Lock()
	defer sn.mu.Unlock()

	frame := wire.AppendHeader(sn.buf[:0], wire.Header{Key: key, Seq: seq})
	frame, err := codec.AppendTo(frame, payload)
	if err != nil {
		return err
	}
	if len(frame) > cap(sn.buf) {
		return &OverflowError{Len: len(frame), Max: cap(sn.buf)}
	}
	return sn.tr.SendFrame(ctx, frame)
}

// Reply sends ep's response for the exchange identified by seq. Spawned
// handler tasks use this to answer after the dispatch loop has moved on.
func Reply[Req, Resp any](ctx context.Context, sn *Sender, ep wire.Endpoint[Req, Resp], seq uint32, resp Resp) error {
	return sn.send(ctx, ep.RespKey, seq, resp)
}

// Publish emits one topic message. Topic sequence numbers come from a
// per-sender wrapping counter and are informational.
func Publish[M any](ctx context.Context, sn *Sender, t wire.Topic[M], msg M) error {
	sn.mu.Lock()
	seq := sn.pubSeq
	sn.pubSeq++
	sn.mu.Unlock()
	return sn.send(ctx, t.Key, seq, msg)
}

// SendKeyed sends an arbitrary payload on an explicit key, for replies that
// belong to no endpoint, such as custom error paths.
func (sn *Sender) SendKeyed(ctx context.Context, key wire.Key, seq uint32, payload any) error {
	return sn.send(ctx, key, seq, payload)
}
