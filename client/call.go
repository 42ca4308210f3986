package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/framelink/codec"
	"github.com/danmuck/framelink/wire"
)

// Call sends one request on ep and waits for the matching response. The
// deadline and cancellation of ctx are purely local: a late reply is
// silently discarded by the pump and the device is never told.
func Call[Req, Resp any](ctx context.Context, c *Client, ep wire.Endpoint[Req, Resp], req Req) (Resp, error) {
	var zero Resp
	body, err := codec.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrSerializeFailed, err)
	}
	respBody, err := c.roundTrip(ctx, ep.ReqKey, ep.RespKey, body)
	if err != nil {
		return zero, err
	}
	var resp Resp
	if err := codec.Unmarshal(respBody, &resp); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}
	return resp, nil
}

// roundTrip registers a pending entry, ships the request frame, and waits
// for the pump to retire the entry.
func (c *Client) roundTrip(ctx context.Context, reqKey, respKey wire.Key, body []byte) ([]byte, error) {
	reply := make(chan registerReply, 1)
	select {
	case c.ops <- registerOp{respKey: respKey, reply: reply}:
	case <-c.closed:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, localErr(ctx)
	}

	var reg registerReply
	select {
	case reg = <-reply:
	case <-c.closed:
		select {
		case reg = <-reply:
		default:
			return nil, ErrTransportClosed
		}
	}
	if reg.err != nil {
		return nil, reg.err
	}

	frame := wire.AppendHeader(make([]byte, 0, wire.MaxHeaderLen+len(body)), wire.Header{Key: reqKey, Seq: reg.seq})
	frame = append(frame, body...)
	select {
	case c.outgoing <- frame:
	case <-c.closed:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		c.cancelPending(reg.seq)
		return nil, localErr(ctx)
	}

	select {
	case res := <-reg.done:
		return res.body, res.err
	case <-ctx.Done():
		c.cancelPending(reg.seq)
		// The pump may have completed the entry before seeing the cancel.
		select {
		case res := <-reg.done:
			return res.body, res.err
		default:
			return nil, localErr(ctx)
		}
	}
}

// cancelPending asks the pump to drop a registration. Best effort: if the
// client is shutting down the entry dies with it.
func (c *Client) cancelPending(seq uint32) {
	select {
	case c.ops <- cancelOp{seq: seq}:
	case <-c.closed:
	}
}

func localErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrCanceled
}

// Publish sends one topic message device-ward. Topic frames get a sequence
// number from the same allocator as requests; it is informational only.
func Publish[M any](ctx context.Context, c *Client, t wire.Topic[M], msg M) error {
	body, err := codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerializeFailed, err)
	}
	return c.PublishRaw(ctx, t.Key, body)
}

// PublishRaw sends one pre-encoded payload on key.
func (c *Client) PublishRaw(ctx context.Context, key wire.Key, body []byte) error {
	reply := make(chan uint32, 1)
	select {
	case c.ops <- allocSeqOp{reply: reply}:
	case <-c.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return localErr(ctx)
	}
	var seq uint32
	select {
	case s, ok := <-reply:
		if !ok {
			return ErrTransportClosed
		}
		seq = s
	case <-c.closed:
		select {
		case s, ok := <-reply:
			if !ok {
				return ErrTransportClosed
			}
			seq = s
		default:
			return ErrTransportClosed
		}
	}

	frame := wire.AppendHeader(make([]byte, 0, wire.MaxHeaderLen+len(body)), wire.Header{Key: key, Seq: seq})
	frame = append(frame, body...)
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return localErr(ctx)
	}
}
