package server

import (
	"context"
	"errors"

	"github.com/danmuck/framelink/codec"
	"github.com/danmuck/framelink/icd"
	"github.com/danmuck/framelink/transport"
	"github.com/danmuck/framelink/wire"
)

// Kind classifies how a handler occupies the dispatch loop.
type Kind uint8

const (
	// Blocking handlers run inline and must not wait on anything.
	Blocking Kind = iota
	// Async handlers run inline and may wait; frames queue up behind them.
	Async
	// Spawn handlers run in a task from a bounded pool and reply on their
	// own; the dispatch loop moves straight to the next frame.
	Spawn
	// TopicIn handlers consume host-published topic frames; no reply.
	TopicIn
)

func (k Kind) String() string {
	switch k {
	case Async:
		return "async"
	case Spawn:
		return "spawn"
	case TopicIn:
		return "topic"
	default:
		return "blocking"
	}
}

// Entry is one row of the dispatch table.
type Entry struct {
	Key  wire.Key
	Name string
	Kind Kind
	run  func(ctx context.Context, s *Server, hdr wire.Header, body []byte)
}

// HandlerFunc is the typed endpoint handler shape. The server carries the
// user context; handlers reach it with s.Context().
type HandlerFunc[Req, Resp any] func(ctx context.Context, s *Server, req Req) (Resp, error)

// Handle builds a Blocking entry for ep.
func Handle[Req, Resp any](ep wire.Endpoint[Req, Resp], fn HandlerFunc[Req, Resp]) Entry {
	return Entry{Key: ep.ReqKey, Name: ep.Name, Kind: Blocking, run: runInline(ep, fn)}
}

// HandleAsync builds an Async entry for ep. The handler may wait; frames
// received meanwhile are deferred, not dropped.
func HandleAsync[Req, Resp any](ep wire.Endpoint[Req, Resp], fn HandlerFunc[Req, Resp]) Entry {
	return Entry{Key: ep.ReqKey, Name: ep.Name, Kind: Async, run: runInline(ep, fn)}
}

// HandleSpawn builds a Spawn entry for ep with a task pool of the given
// size. When the pool is exhausted the request is answered immediately with
// a FailedToSpawn error reply.
func HandleSpawn[Req, Resp any](ep wire.Endpoint[Req, Resp], pool int, fn HandlerFunc[Req, Resp]) Entry {
	if pool <= 0 {
		pool = 1
	}
	sem := make(chan struct{}, pool)
	run := func(ctx context.Context, s *Server, hdr wire.Header, body []byte) {
		select {
		case sem <- struct{}{}:
		default:
			s.replyError(ctx, hdr.Seq, ep.Name, &icd.WireError{Kind: icd.KindFailedToSpawn})
			return
		}
		var req Req
		if err := codec.Unmarshal(body, &req); err != nil {
			<-sem
			s.replyError(ctx, hdr.Seq, ep.Name, &icd.WireError{Kind: icd.KindDeserFailed})
			return
		}
		s.tasks.Add(1)
		go func() {
			defer s.tasks.Done()
			defer func() { <-sem }()
			resp, err := fn(ctx, s, req)
			if err != nil {
				s.replyError(ctx, hdr.Seq, ep.Name, s.encodeError(err))
				return
			}
			s.replyOrOverflow(ctx, ep.RespKey, hdr.Seq, ep.Name, resp)
		}()
	}
	return Entry{Key: ep.ReqKey, Name: ep.Name, Kind: Spawn, run: run}
}

// TopicFunc consumes one decoded host-published message.
type TopicFunc[M any] func(ctx context.Context, s *Server, msg M)

// HandleTopic builds an entry consuming host-to-device topic frames.
func HandleTopic[M any](t wire.Topic[M], fn TopicFunc[M]) Entry {
	run := func(ctx context.Context, s *Server, hdr wire.Header, body []byte) {
		var msg M
		if err := codec.Unmarshal(body, &msg); err != nil {
			s.replyError(ctx, hdr.Seq, t.Name, &icd.WireError{Kind: icd.KindDeserFailed})
			return
		}
		fn(ctx, s, msg)
	}
	return Entry{Key: t.Key, Name: t.Name, Kind: TopicIn, run: run}
}

func runInline[Req, Resp any](ep wire.Endpoint[Req, Resp], fn HandlerFunc[Req, Resp]) func(context.Context, *Server, wire.Header, []byte) {
	return func(ctx context.Context, s *Server, hdr wire.Header, body []byte) {
		var req Req
		if err := codec.Unmarshal(body, &req); err != nil {
			s.replyError(ctx, hdr.Seq, ep.Name, &icd.WireError{Kind: icd.KindDeserFailed})
			return
		}
		resp, err := fn(ctx, s, req)
		if err != nil {
			s.replyError(ctx, hdr.Seq, ep.Name, s.encodeError(err))
			return
		}
		s.replyOrOverflow(ctx, ep.RespKey, hdr.Seq, ep.Name, resp)
	}
}

// replyOrOverflow sends a response, converting a buffer overflow into a
// FrameTooLong error reply and a serialisation failure into SerFailed.
func (s *Server) replyOrOverflow(ctx context.Context, key wire.Key, seq uint32, name string, resp any) {
	err := s.sender.send(ctx, key, seq, resp)
	if err == nil {
		return
	}
	var of *OverflowError
	switch {
	case errors.As(err, &of):
		s.replyError(ctx, seq, name, &icd.WireError{
			Kind:    icd.KindFrameTooLong,
			TooLong: icd.FrameTooLong{Len: uint32(of.Len), Max: uint32(of.Max)},
		})
	case errors.Is(err, transport.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Link or dispatch context is gone; there is no one to tell.
	default:
		s.replyError(ctx, seq, name, &icd.WireError{Kind: icd.KindSerFailed})
	}
}
