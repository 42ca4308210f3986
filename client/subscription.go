package client

import (
	"context"
	"slices"

	"github.com/danmuck/framelink/codec"
	"github.com/danmuck/framelink/internal/observability"
	"github.com/danmuck/framelink/wire"
)

// OverflowPolicy decides what happens when a subscription inbox is full at
// delivery time.
type OverflowPolicy uint8

const (
	// DropOldest evicts the oldest buffered message to make room.
	DropOldest OverflowPolicy = iota
	// DropNewest drops the arriving message.
	DropNewest
	// Disconnect closes the inbox and removes the subscription.
	Disconnect
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop_newest"
	case Disconnect:
		return "disconnect"
	default:
		return "drop_oldest"
	}
}

// RawSubscription yields undecoded frames for one topic key. Frame bodies
// are shared between subscribers of the same key and must be treated as
// read-only.
type RawSubscription struct {
	c      *Client
	key    wire.Key
	id     uint64
	policy OverflowPolicy
	inbox  chan wire.Frame
}

// Recv yields the next frame. It fails with ErrSubClosed once the
// subscription is closed or the transport is gone.
func (s *RawSubscription) Recv(ctx context.Context) (wire.Frame, error) {
	select {
	case f, ok := <-s.inbox:
		if !ok {
			return wire.Frame{}, ErrSubClosed
		}
		return f, nil
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	}
}

// Close deregisters the subscription. It returns once the pump has removed
// the entry: no message is delivered after Close returns.
func (s *RawSubscription) Close() {
	ack := make(chan struct{})
	select {
	case s.c.ops <- unsubscribeOp{key: s.key, id: s.id, ack: ack}:
		<-ack
	case <-s.c.closed:
	}
}

// SubscribeRaw registers an inbox for every inbound frame carrying key.
// Multiple subscriptions on one key are independent; each gets its own
// bounded inbox and policy.
func (c *Client) SubscribeRaw(key wire.Key, capacity int, policy OverflowPolicy) (*RawSubscription, error) {
	if capacity <= 0 {
		capacity = 8
	}
	reply := make(chan *RawSubscription, 1)
	select {
	case c.ops <- subscribeOp{key: key, capacity: capacity, policy: policy, reply: reply}:
	case <-c.closed:
		return nil, ErrTransportClosed
	}
	select {
	case sub := <-reply:
		if sub == nil {
			return nil, ErrTransportClosed
		}
		return sub, nil
	case <-c.closed:
		select {
		case sub := <-reply:
			if sub != nil {
				return sub, nil
			}
		default:
		}
		return nil, ErrTransportClosed
	}
}

// Pump-side registry operations.

func (c *Client) subscribe(st *pumpState, op subscribeOp) *RawSubscription {
	st.nextSub++
	sub := &RawSubscription{
		c:      c,
		key:    op.key,
		id:     st.nextSub,
		policy: op.policy,
		inbox:  make(chan wire.Frame, op.capacity),
	}
	st.subs[op.key] = append(st.subs[op.key], sub)
	return sub
}

func (c *Client) unsubscribe(st *pumpState, key wire.Key, id uint64) {
	subs := st.subs[key]
	for i, sub := range subs {
		if sub.id == id {
			close(sub.inbox)
			st.subs[key] = slices.Delete(subs, i, i+1)
			if len(st.subs[key]) == 0 {
				delete(st.subs, key)
			}
			return
		}
	}
}

// fanOut delivers one topic frame to every subscriber of its key under each
// subscriber's overflow policy.
func (c *Client) fanOut(st *pumpState, subs []*RawSubscription, f wire.Frame) {
	var disconnected []uint64
	for _, sub := range subs {
		select {
		case sub.inbox <- f:
			continue
		default:
		}
		switch sub.policy {
		case DropOldest:
			select {
			case <-sub.inbox:
			default:
			}
			select {
			case sub.inbox <- f:
			default:
			}
		case DropNewest:
		case Disconnect:
			disconnected = append(disconnected, sub.id)
		}
		if c.opts.Metrics {
			observability.RecordSubscriptionDrop(sub.policy.String())
		}
	}
	for _, id := range disconnected {
		c.unsubscribe(st, f.Header.Key, id)
	}
}

// Subscription yields decoded messages for one topic.
type Subscription[M any] struct {
	raw *RawSubscription
}

// Subscribe registers a typed subscription on t with a bounded inbox.
func Subscribe[M any](c *Client, t wire.Topic[M], capacity int, policy OverflowPolicy) (*Subscription[M], error) {
	raw, err := c.SubscribeRaw(t.Key, capacity, policy)
	if err != nil {
		return nil, err
	}
	return &Subscription[M]{raw: raw}, nil
}

// Recv yields the next message, skipping frames whose payload does not
// decode; a bad publisher cannot wedge the stream.
func (s *Subscription[M]) Recv(ctx context.Context) (M, error) {
	var zero M
	for {
		f, err := s.raw.Recv(ctx)
		if err != nil {
			return zero, err
		}
		var msg M
		if err := codec.Unmarshal(f.Body, &msg); err != nil {
			s.raw.c.discard("sub_decode")
			continue
		}
		return msg, nil
	}
}

// Close deregisters the subscription synchronously.
func (s *Subscription[M]) Close() {
	s.raw.Close()
}
