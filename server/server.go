package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/danmuck/framelink/icd"
	"github.com/danmuck/framelink/internal/observability"
	"github.com/danmuck/framelink/transport"
	"github.com/danmuck/framelink/wire"
)

var ErrDuplicateKey = errors.New("server: duplicate handler key")

const defaultTxBuf = 4096

// Options configure a Server. The zero value is usable.
type Options struct {
	// ErrorPath derives the wire error key. Must match the host. Defaults
	// to icd.ErrorPath.
	ErrorPath string

	// EncodeError maps a handler-returned error to the wire error payload.
	// The default passes *icd.WireError through and wraps anything else as
	// a HandlerFailed. One wire error type serves the whole link.
	EncodeError func(err error) any

	// TxBufSize is the shared outbound frame buffer capacity. A reply that
	// does not fit is answered with a FrameTooLong error instead. Default
	// 4096.
	TxBufSize int

	// Context is arbitrary shared state handed to every handler via
	// Server.Context. Guarding it is the handlers' concern.
	Context any

	// Logger receives dispatch diagnostics. Defaults to a no-op logger.
	Logger *zerolog.Logger

	// Metrics publishes prometheus counters when true.
	Metrics bool
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.ErrorPath == "" {
		out.ErrorPath = icd.ErrorPath
	}
	if out.EncodeError == nil {
		out.EncodeError = func(err error) any {
			var we *icd.WireError
			if errors.As(err, &we) {
				return we
			}
			return &icd.WireError{Kind: icd.KindHandlerFailed, Message: err.Error()}
		}
	}
	if out.TxBufSize <= 0 {
		out.TxBufSize = defaultTxBuf
	}
	if out.Logger == nil {
		nop := zerolog.Nop()
		out.Logger = &nop
	}
	return out
}

// Server routes inbound frames to a static handler table and owns the
// outbound sender. The table is closed at construction; there is no runtime
// registration.
type Server struct {
	entries []Entry
	tr      transport.Transport
	opts    Options
	errKey  wire.Key
	sender  *Sender
	log     zerolog.Logger

	tasks     sync.WaitGroup
	malformed atomic.Uint64
}

// New builds a server over tr from a static entry list. Duplicate keys are
// a construction error.
func New(tr transport.Transport, entries []Entry, opts *Options) (*Server, error) {
	o := opts.withDefaults()
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key[:], sorted[j].Key[:]) < 0
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Key == sorted[i-1].Key {
			return nil, fmt.Errorf("%w: %s and %s at %s",
				ErrDuplicateKey, sorted[i-1].Name, sorted[i].Name, sorted[i].Key)
		}
	}
	return &Server{
		entries: sorted,
		tr:      tr,
		opts:    o,
		errKey:  icd.ErrorKey(o.ErrorPath),
		sender:  newSender(tr, o.TxBufSize),
		log:     *o.Logger,
	}, nil
}

// Context returns the shared state configured at construction.
func (s *Server) Context() any { return s.opts.Context }

// Sender returns the shared outbound path, for handlers that publish or for
// background publishers owned by the application.
func (s *Server) Sender() *Sender { return s.sender }

// ErrorKey reports the wire error key this server replies on.
func (s *Server) ErrorKey() wire.Key { return s.errKey }

// Run reads frames until the transport closes or ctx is done, dispatching
// each in arrival order. Blocking and Async handlers hold up the loop;
// Spawn handlers return immediately.
func (s *Server) Run(ctx context.Context) error {
	defer s.tasks.Wait()
	for {
		raw, err := s.tr.RecvFrame(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if s.opts.Metrics {
			observability.RecordFrame("server", "in")
		}
		s.Dispatch(ctx, raw)
	}
}

// Dispatch routes one raw frame. A malformed header cannot be answered (the
// sequence number is unreadable) and is counted and dropped; every other
// outcome produces at most one reply frame carrying the inbound seq.
func (s *Server) Dispatch(ctx context.Context, raw []byte) {
	hdr, body, err := wire.DecodeHeader(raw)
	if err != nil {
		s.malformed.Add(1)
		if s.opts.Metrics {
			observability.RecordDiscard("server", "malformed")
		}
		s.log.Warn().Err(err).Int("len", len(raw)).Msg("malformed frame")
		return
	}
	entry, ok := s.lookup(hdr.Key)
	if !ok {
		s.log.Debug().Stringer("key", hdr.Key).Uint32("seq", hdr.Seq).Msg("unknown key")
		s.replyError(ctx, hdr.Seq, "", &icd.WireError{Kind: icd.KindUnknownKey})
		return
	}
	entry.run(ctx, s, hdr, body)
}

// Malformed reports how many inbound frames had undecodable headers.
func (s *Server) Malformed() uint64 {
	return s.malformed.Load()
}

func (s *Server) lookup(key wire.Key) (*Entry, bool) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return bytes.Compare(s.entries[i].Key[:], key[:]) >= 0
	})
	if i < len(s.entries) && s.entries[i].Key == key {
		return &s.entries[i], true
	}
	return nil, false
}

// replyError emits the standard error frame for seq. Failures here are
// terminal for the exchange: they are logged, never escalated.
func (s *Server) replyError(ctx context.Context, seq uint32, name string, payload any) {
	if we, ok := payload.(*icd.WireError); ok {
		s.log.Debug().Uint32("seq", seq).Str("endpoint", name).Str("err", we.Error()).Msg("error reply")
		if s.opts.Metrics {
			observability.RecordHandlerError(we.Kind.String())
		}
	}
	if err := s.sender.send(ctx, s.errKey, seq, payload); err != nil {
		s.log.Warn().Err(err).Uint32("seq", seq).Msg("error reply failed")
	}
}

func (s *Server) encodeError(err error) any {
	return s.opts.EncodeError(err)
}
