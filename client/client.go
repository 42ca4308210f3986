package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/framelink/codec"
	"github.com/danmuck/framelink/icd"
	"github.com/danmuck/framelink/internal/observability"
	"github.com/danmuck/framelink/transport"
	"github.com/danmuck/framelink/wire"
)

// Options configure a Client. The zero value is usable.
type Options struct {
	// ErrorPath derives the wire error key. Must match the device.
	// Defaults to icd.ErrorPath.
	ErrorPath string

	// DecodeRemoteError turns an error-frame payload into a Go error.
	// Defaults to decoding icd.WireError. Must match the device's error
	// type; the pairing is fixed for the life of the link.
	DecodeRemoteError func(body []byte) error

	// MaxInFlight bounds simultaneous pending requests. Exceeding it fails
	// Call immediately with ErrTooManyInFlight. Default 32.
	MaxInFlight int

	// OutgoingDepth is the outbound frame queue depth. Default 8.
	OutgoingDepth int

	// Logger receives pump diagnostics. Defaults to a no-op logger.
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
	if out.DecodeRemoteError == nil {
		out.DecodeRemoteError = func(body []byte) error {
			var we icd.WireError
			if err := codec.Unmarshal(body, &we); err != nil {
				return ErrSchemaMismatch
			}
			return &we
		}
	}
	if out.MaxInFlight <= 0 {
		out.MaxInFlight = 32
	}
	if out.OutgoingDepth <= 0 {
		out.OutgoingDepth = 8
	}
	if out.Logger == nil {
		nop := zerolog.Nop()
		out.Logger = &nop
	}
	return out
}

// Stats is a point-in-time diagnostic snapshot.
type Stats struct {
	// Discarded counts inbound frames that matched nothing and were
	// dropped: unknown seq, key mismatch, late replies after cancel.
	Discarded uint64
	// Malformed counts inbound frames whose header failed to decode.
	Malformed uint64
	// InFlight is the number of requests currently awaiting completion.
	InFlight int
}

// Client multiplexes endpoint calls and topic subscriptions over one
// transport. It is safe for concurrent use; all mutable dispatch state is
// owned by the receiver pump goroutine.
type Client struct {
	tr     transport.Transport
	opts   Options
	errKey wire.Key
	log    zerolog.Logger

	ops      chan any
	outgoing chan []byte
	closed   chan struct{}

	closeOnce sync.Once
	group     *errgroup.Group

	discarded atomic.Uint64
	malformed atomic.Uint64
	inflight  atomic.Int64
}

// New starts a client on tr. The client owns the transport and closes it
// when the client closes.
func New(tr transport.Transport, opts *Options) *Client {
	o := opts.withDefaults()
	c := &Client{
		tr:       tr,
		opts:     o,
		errKey:   icd.ErrorKey(o.ErrorPath),
		log:      *o.Logger,
		ops:      make(chan any),
		outgoing: make(chan []byte, o.OutgoingDepth),
		closed:   make(chan struct{}),
	}
	c.group = &errgroup.Group{}
	frames := make(chan wire.Frame, o.OutgoingDepth)
	c.group.Go(func() error { return c.recvLoop(frames) })
	c.group.Go(func() error { return c.pump(frames) })
	c.group.Go(func() error { return c.sendLoop() })
	return c
}

// ErrorKey reports the wire error key this client listens for.
func (c *Client) ErrorKey() wire.Key { return c.errKey }

// Close stops the engine. Every pending call completes with
// ErrTransportClosed, every subscription inbox closes, and later operations
// fail immediately. Close is idempotent and does not wait for callers.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.tr.Close()
	})
}

// Wait blocks until the engine has fully shut down.
func (c *Client) Wait() {
	_ = c.group.Wait()
}

// Stats snapshots the diagnostic counters.
func (c *Client) Stats() Stats {
	return Stats{
		Discarded: c.discarded.Load(),
		Malformed: c.malformed.Load(),
		InFlight:  int(c.inflight.Load()),
	}
}

// recvLoop feeds transport frames to the pump. Header decode happens here
// so the pump only sees well-formed frames; malformed ones are counted and
// dropped without dispatch.
func (c *Client) recvLoop(frames chan<- wire.Frame) error {
	defer close(frames)
	ctx := context.Background()
	for {
		raw, err := c.tr.RecvFrame(ctx)
		if err != nil {
			c.log.Debug().Err(err).Msg("recv loop ending")
			return nil
		}
		if c.opts.Metrics {
			observability.RecordFrame("client", "in")
		}
		hdr, body, err := wire.DecodeHeader(raw)
		if err != nil {
			c.malformed.Add(1)
			if c.opts.Metrics {
				observability.RecordDiscard("client", "malformed")
			}
			c.log.Warn().Err(err).Int("len", len(raw)).Msg("malformed frame")
			continue
		}
		frames <- wire.Frame{Header: hdr, Body: body}
	}
}

// sendLoop is the sole writer of the transport. A write failure tears the
// whole client down.
func (c *Client) sendLoop() error {
	ctx := context.Background()
	for {
		select {
		case frame := <-c.outgoing:
			if err := c.tr.SendFrame(ctx, frame); err != nil {
				c.log.Warn().Err(err).Msg("send failed, closing")
				c.Close()
				return nil
			}
			if c.opts.Metrics {
				observability.RecordFrame("client", "out")
			}
		case <-c.closed:
			return nil
		}
	}
}
