package client

import (
	"github.com/danmuck/framelink/internal/observability"
	"github.com/danmuck/framelink/wire"
)

// callResult completes one pending request.
type callResult struct {
	body []byte
	err  error
}

// pendingEntry is one in-flight request. Owned exclusively by the pump.
type pendingEntry struct {
	seq     uint32
	respKey wire.Key
	errKey  wire.Key
	done    chan callResult
}

// Ops sent to the pump over the registration channel.
type (
	registerOp struct {
		respKey wire.Key
		reply   chan registerReply
	}
	registerReply struct {
		seq  uint32
		done chan callResult
		err  error
	}
	cancelOp struct {
		seq uint32
	}
	allocSeqOp struct {
		reply chan uint32
	}
	subscribeOp struct {
		key      wire.Key
		capacity int
		policy   OverflowPolicy
		reply    chan *RawSubscription
	}
	unsubscribeOp struct {
		key wire.Key
		id  uint64
		ack chan struct{}
	}
)

type pumpState struct {
	pending map[uint32]*pendingEntry
	subs    map[wire.Key][]*RawSubscription
	nextSeq uint32
	nextSub uint64
}

// pump is the single long-running owner of the in-flight table and the
// subscription registry. It exits when the inbound frame stream ends.
func (c *Client) pump(frames <-chan wire.Frame) error {
	st := &pumpState{
		pending: make(map[uint32]*pendingEntry),
		subs:    make(map[wire.Key][]*RawSubscription),
	}
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				c.shutdown(st)
				return nil
			}
			c.handleFrame(st, f)
		case o := <-c.ops:
			c.handleOp(st, o)
		}
	}
}

func (c *Client) handleFrame(st *pumpState, f wire.Frame) {
	// Subscriptions win over the in-flight table: a topic key and a
	// response key never collide unless the schemas already collide.
	if subs, ok := st.subs[f.Header.Key]; ok && len(subs) > 0 {
		c.fanOut(st, subs, f)
		return
	}

	entry, ok := st.pending[f.Header.Seq]
	if !ok {
		c.discard("unexpected")
		return
	}
	switch f.Header.Key {
	case entry.respKey:
		c.retire(st, entry, callResult{body: f.Body})
	case entry.errKey:
		c.retire(st, entry, callResult{err: &RemoteError{Inner: c.opts.DecodeRemoteError(f.Body)}})
	default:
		// Known seq, unknown key: leave the entry pending and drop the
		// frame, as with any other unexpected arrival.
		c.discard("key_mismatch")
	}
}

func (c *Client) retire(st *pumpState, entry *pendingEntry, res callResult) {
	delete(st.pending, entry.seq)
	c.inflight.Store(int64(len(st.pending)))
	if c.opts.Metrics {
		observability.SetInflight(len(st.pending))
	}
	entry.done <- res
}

func (c *Client) discard(reason string) {
	c.discarded.Add(1)
	if c.opts.Metrics {
		observability.RecordDiscard("client", reason)
	}
	c.log.Debug().Str("reason", reason).Msg("frame discarded")
}

func (c *Client) handleOp(st *pumpState, o any) {
	switch op := o.(type) {
	case registerOp:
		op.reply <- c.register(st, op)
	case cancelOp:
		if _, ok := st.pending[op.seq]; ok {
			delete(st.pending, op.seq)
			c.inflight.Store(int64(len(st.pending)))
			if c.opts.Metrics {
				observability.SetInflight(len(st.pending))
			}
		}
	case allocSeqOp:
		op.reply <- c.allocSeq(st)
	case subscribeOp:
		op.reply <- c.subscribe(st, op)
	case unsubscribeOp:
		c.unsubscribe(st, op.key, op.id)
		close(op.ack)
	}
}

func (c *Client) register(st *pumpState, op registerOp) registerReply {
	if len(st.pending) >= c.opts.MaxInFlight {
		return registerReply{err: ErrTooManyInFlight}
	}
	seq := c.allocSeq(st)
	if _, dup := st.pending[seq]; dup {
		return registerReply{err: ErrDuplicateSeq}
	}
	entry := &pendingEntry{
		seq:     seq,
		respKey: op.respKey,
		errKey:  c.errKey,
		done:    make(chan callResult, 1),
	}
	st.pending[seq] = entry
	c.inflight.Store(int64(len(st.pending)))
	if c.opts.Metrics {
		observability.SetInflight(len(st.pending))
	}
	return registerReply{seq: seq, done: entry.done}
}

// allocSeq hands out the next free sequence number, skipping any still in
// flight. The table bound guarantees termination.
func (c *Client) allocSeq(st *pumpState) uint32 {
	for {
		seq := st.nextSeq
		st.nextSeq++
		if _, inUse := st.pending[seq]; !inUse {
			return seq
		}
	}
}

// shutdown runs exactly once, when the transport is gone. Every pending
// entry completes with ErrTransportClosed, every inbox closes, and queued
// ops are refused.
func (c *Client) shutdown(st *pumpState) {
	for _, entry := range st.pending {
		entry.done <- callResult{err: ErrTransportClosed}
	}
	st.pending = map[uint32]*pendingEntry{}
	c.inflight.Store(0)
	if c.opts.Metrics {
		observability.SetInflight(0)
	}
	for _, subs := range st.subs {
		for _, sub := range subs {
			close(sub.inbox)
		}
	}
	st.subs = map[wire.Key][]*RawSubscription{}

	close(c.closed)
	for {
		select {
		case o := <-c.ops:
			c.refuseOp(o)
		default:
			return
		}
	}
}

func (c *Client) refuseOp(o any) {
	switch op := o.(type) {
	case registerOp:
		op.reply <- registerReply{err: ErrTransportClosed}
	case subscribeOp:
		op.reply <- nil
	case unsubscribeOp:
		close(op.ack)
	case allocSeqOp:
		close(op.reply)
	}
}
