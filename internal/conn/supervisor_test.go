package conn

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSocket feeds frames from a channel and fails reads when closed.
type fakeSocket struct {
	frames chan []byte
	once   sync.Once
	done   chan struct{}
	sent   [][]byte
	mu     sync.Mutex
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{frames: make(chan []byte, 16), done: make(chan struct{})}
}

func (f *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case data := <-f.frames:
		return data, nil
	case <-f.done:
		return nil, io.ErrUnexpectedEOF
	}
}

func (f *fakeSocket) WriteMessage(data []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

// dropConn simulates the server closing the connection.
func (f *fakeSocket) dropConn() { _ = f.Close() }

// fakeDialer returns sockets from a script; when the script runs out it
// returns dial errors.
type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	dials   int32
	fail    bool
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Socket, error) {
	atomic.AddInt32(&d.dials, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail || len(d.sockets) == 0 {
		return nil, errors.New("dial refused")
	}
	s := d.sockets[0]
	d.sockets = d.sockets[1:]
	return s, nil
}

func (d *fakeDialer) dialCount() int { return int(atomic.LoadInt32(&d.dials)) }

func fastPolicy() Policy { return Policy{MaxAttempts: 5, Delay: 10 * time.Millisecond} }

func waitState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, current %v", want, s.State())
}

func TestStartInvalidSessionStaysIdle(t *testing.T) {
	d := &fakeDialer{fail: true}
	s := NewSupervisor(Config{URL: "ws://x", Policy: fastPolicy(), Dialer: d})
	if err := s.Start(false); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %v", s.State())
	}
	if d.dialCount() != 0 {
		t.Fatalf("no dial may happen with an invalid session")
	}
}

func TestOpenResetsCounterAndDeliversFrames(t *testing.T) {
	sock := newFakeSocket()
	d := &fakeDialer{sockets: []*fakeSocket{sock}}
	var frames [][]byte
	var mu sync.Mutex
	s := NewSupervisor(Config{
		URL: "ws://x", Policy: fastPolicy(), Dialer: d,
		OnFrame: func(b []byte) {
			mu.Lock()
			frames = append(frames, b)
			mu.Unlock()
		},
	})
	if err := s.Start(true); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitState(t, s, StateOpen)

	sock.frames <- []byte(`{"event":"clients_list","clients":[]}`)
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("frame not delivered")
		}
		time.Sleep(2 * time.Millisecond)
	}
	s.Stop()
}

func TestUnexpectedCloseRetriesThenReconnects(t *testing.T) {
	first := newFakeSocket()
	second := newFakeSocket()
	d := &fakeDialer{sockets: []*fakeSocket{first, second}}
	s := NewSupervisor(Config{URL: "ws://x", Policy: fastPolicy(), Dialer: d})
	if err := s.Start(true); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitState(t, s, StateOpen)

	first.dropConn()
	waitState(t, s, StateOpen) // reconnected on the second socket
	if d.dialCount() != 2 {
		t.Fatalf("expected 2 dials, got %d", d.dialCount())
	}
	s.Stop()
}

func TestExhaustionAfterMaxCloses(t *testing.T) {
	// Every dial fails: initial attempt plus retries, then exhausted.
	d := &fakeDialer{fail: true}
	s := NewSupervisor(Config{URL: "ws://x", Policy: fastPolicy(), Dialer: d})
	if err := s.Start(true); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitState(t, s, StateExhausted)

	dials := d.dialCount()
	if dials != 5 {
		t.Fatalf("expected exactly 5 connection attempts, got %d", dials)
	}
	// Terminal: nothing further may be scheduled.
	time.Sleep(50 * time.Millisecond)
	if d.dialCount() != dials {
		t.Fatalf("attempt happened after exhaustion")
	}
	if s.State() != StateExhausted {
		t.Fatalf("exhausted is terminal for the cycle, got %v", s.State())
	}
}

func TestStopCancelsPendingRetry(t *testing.T) {
	sock := newFakeSocket()
	d := &fakeDialer{sockets: []*fakeSocket{sock}}
	s := NewSupervisor(Config{
		URL: "ws://x", Dialer: d,
		Policy: Policy{MaxAttempts: 5, Delay: 40 * time.Millisecond},
	})
	if err := s.Start(true); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitState(t, s, StateOpen)

	sock.dropConn()
	waitState(t, s, StateRetrying)
	dials := d.dialCount()
	s.Stop()
	if s.State() != StateIdle {
		t.Fatalf("expected idle after stop, got %v", s.State())
	}
	time.Sleep(100 * time.Millisecond)
	if d.dialCount() != dials {
		t.Fatalf("canceled retry still dialed")
	}
}

func TestStopDoesNotTriggerPolicy(t *testing.T) {
	sock := newFakeSocket()
	d := &fakeDialer{sockets: []*fakeSocket{sock}}
	s := NewSupervisor(Config{URL: "ws://x", Policy: fastPolicy(), Dialer: d})
	if err := s.Start(true); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitState(t, s, StateOpen)

	s.Stop()
	time.Sleep(50 * time.Millisecond)
	if got := s.State(); got != StateIdle {
		t.Fatalf("caller-initiated close must not retry, state %v", got)
	}
	if d.dialCount() != 1 {
		t.Fatalf("unexpected dial after stop: %d", d.dialCount())
	}
}

func TestSendRequiresOpenConnection(t *testing.T) {
	sock := newFakeSocket()
	d := &fakeDialer{sockets: []*fakeSocket{sock}}
	s := NewSupervisor(Config{URL: "ws://x", Policy: fastPolicy(), Dialer: d})

	if err := s.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Start(true); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitState(t, s, StateOpen)
	if err := s.Send([]byte(`{"command":"start","target":"a"}`)); err != nil {
		t.Fatalf("send while open: %v", err)
	}
	sock.mu.Lock()
	n := len(sock.sent)
	sock.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected 1 sent frame, got %d", n)
	}
	s.Stop()
	if err := s.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after stop, got %v", err)
	}
}

func TestPolicyNext(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delay: time.Second}
	for i := 1; i < 3; i++ {
		d, ok := p.Next(i)
		if !ok || d != time.Second {
			t.Fatalf("attempt %d: expected fixed delay, got %v %v", i, d, ok)
		}
	}
	if _, ok := p.Next(3); ok {
		t.Fatalf("attempts beyond the max must be refused")
	}
}

func TestStateStrings(t *testing.T) {
	names := StateNames()
	states := []State{StateIdle, StateConnecting, StateOpen, StateRetrying, StateExhausted}
	for i, st := range states {
		if st.String() != names[i] {
			t.Fatalf("state %d: %q vs %q", i, st.String(), names[i])
		}
	}
}

// slowCloseSocket blocks Close until released, like a close handshake
// against an unresponsive peer.
type slowCloseSocket struct {
	*fakeSocket
	release chan struct{}
}

func (s *slowCloseSocket) Close() error {
	<-s.release
	return s.fakeSocket.Close()
}

func TestConnectReplacesLeftoverWithoutHoldingLock(t *testing.T) {
	leftover := &slowCloseSocket{fakeSocket: newFakeSocket(), release: make(chan struct{})}
	d := &fakeDialer{sockets: []*fakeSocket{newFakeSocket()}}
	s := NewSupervisor(Config{URL: "ws://x", Policy: fastPolicy(), Dialer: d})

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.sock = leftover
	s.mu.Unlock()

	go s.connect(gen)

	// The leftover's Close never returns until released; State must still
	// observe the new open connection promptly.
	waitState(t, s, StateOpen)
	if err := s.Send([]byte(`{"command":"start","target":"a"}`)); err != nil {
		t.Fatalf("send while leftover close pending: %v", err)
	}

	close(leftover.release)
	waitClosed := time.Now().Add(time.Second)
	for time.Now().Before(waitClosed) {
		select {
		case <-leftover.done:
			return
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("leftover socket was never closed")
}
