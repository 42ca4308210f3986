package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/framelink/icd"
	"github.com/danmuck/framelink/server"
	"github.com/danmuck/framelink/transport/cobs"
	"github.com/danmuck/framelink/wire"
)

// End-to-end exercises over a real byte stream: both engines, the COBS
// framing, and the codec together.

var motorRunT = wire.NewTopic[uint8]("motor-run", "demo/motor-run", wire.ToServer)

type deviceState struct {
	mu     sync.Mutex
	motor  []uint8
	pinged int
}

func startStack(t *testing.T) (*Client, *server.Server, *deviceState) {
	t.Helper()
	hostConn, deviceConn := net.Pipe()

	state := &deviceState{}
	entries := []server.Entry{
		server.Handle(icd.PingEndpoint, func(_ context.Context, s *server.Server, req uint32) (uint32, error) {
			st := s.Context().(*deviceState)
			st.mu.Lock()
			st.pinged++
			st.mu.Unlock()
			return req, nil
		}),
		server.HandleSpawn(icd.SleepEndpoint, 8, func(ctx context.Context, _ *server.Server, req icd.SleepRequest) (icd.SleepDone, error) {
			select {
			case <-time.After(time.Duration(req.Millis) * time.Millisecond):
			case <-ctx.Done():
			}
			return icd.SleepDone{Millis: req.Millis}, nil
		}),
		server.HandleTopic(motorRunT, func(_ context.Context, s *server.Server, msg uint8) {
			st := s.Context().(*deviceState)
			st.mu.Lock()
			st.motor = append(st.motor, msg)
			st.mu.Unlock()
		}),
	}
	srv, err := server.New(cobs.NewStream(deviceConn), entries, &server.Options{Context: state})
	if err != nil {
		t.Fatalf("server new: %v", err)
	}
	srvCtx, srvCancel := context.WithCancel(context.Background())
	srvDone := make(chan struct{})
	go func() {
		defer close(srvDone)
		_ = srv.Run(srvCtx)
	}()

	c := New(cobs.NewStream(hostConn), nil)
	t.Cleanup(func() {
		c.Close()
		c.Wait()
		srvCancel()
		<-srvDone
	})
	return c, srv, state
}

func TestEndToEndPing(t *testing.T) {
	c, _, state := startStack(t)

	resp, err := Call(context.Background(), c, icd.PingEndpoint, 42)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if resp != 42 {
		t.Fatalf("ping echoed %d", resp)
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.pinged != 1 {
		t.Fatalf("device saw %d pings", state.pinged)
	}
}

func TestEndToEndConcurrentSleeps(t *testing.T) {
	c, _, _ := startStack(t)

	// Issue 300, 100, 200 ms sleeps at once; completion order is 100, 200,
	// 300 and every caller gets its own answer.
	durations := []uint32{300, 100, 200}
	type outcome struct {
		want uint32
		got  icd.SleepDone
		err  error
		when time.Time
	}
	results := make(chan outcome, len(durations))
	for _, ms := range durations {
		go func() {
			done, err := Call(context.Background(), c, icd.SleepEndpoint, icd.SleepRequest{Millis: ms})
			results <- outcome{want: ms, got: done, err: err, when: time.Now()}
		}()
	}

	byDur := map[uint32]outcome{}
	for range durations {
		o := <-results
		if o.err != nil {
			t.Fatalf("sleep %d: %v", o.want, o.err)
		}
		if o.got.Millis != o.want {
			t.Fatalf("sleep %d answered %d", o.want, o.got.Millis)
		}
		byDur[o.want] = o
	}
	if !byDur[100].when.Before(byDur[300].when) {
		t.Fatal("short sleep did not complete before long sleep")
	}
	if got := c.Stats().InFlight; got != 0 {
		t.Fatalf("in-flight at end: %d", got)
	}
}

func TestEndToEndRemoteUnknownKey(t *testing.T) {
	c, _, _ := startStack(t)

	ep := wire.NewEndpoint[uint32, uint32]("missing", "not/registered")
	_, err := Call(context.Background(), c, ep, 1)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	var we *icd.WireError
	if !errors.As(remote.Inner, &we) || we.Kind != icd.KindUnknownKey {
		t.Fatalf("inner: %v", remote.Inner)
	}
}

func TestEndToEndTopicBothDirections(t *testing.T) {
	c, srv, state := startStack(t)

	sub, err := Subscribe(c, icd.AccelTopic, 8, DropOldest)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Device to host.
	want := icd.Accel{X: 1, Y: -2, Z: 981}
	if err := server.Publish(ctx, srv.Sender(), icd.AccelTopic, want); err != nil {
		t.Fatalf("device publish: %v", err)
	}
	got, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("sub recv: %v", err)
	}
	if got != want {
		t.Fatalf("sample mismatch: %+v", got)
	}

	// Host to device.
	if err := Publish(ctx, c, motorRunT, 3); err != nil {
		t.Fatalf("host publish: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		state.mu.Lock()
		n := len(state.motor)
		state.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("device never saw the motor command")
		}
		time.Sleep(time.Millisecond)
	}
}
