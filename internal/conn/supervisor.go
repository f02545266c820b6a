package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brosup/gmonitor/internal/metrics"
	"github.com/brosup/gmonitor/internal/notify"
)

// State is the connection lifecycle state. It is owned exclusively by the
// Supervisor; everything else only observes it.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateRetrying
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetrying:
		return "retrying"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StateNames lists every state string, for gauge labeling.
func StateNames() []string {
	return []string{"idle", "connecting", "open", "retrying", "exhausted"}
}

var (
	// ErrNotConnected is returned by Send when no connection is open.
	ErrNotConnected = errors.New("not connected to server")
	// ErrSessionInvalid is returned by Start when the session gate fails.
	ErrSessionInvalid = errors.New("session missing or expired")
)

// Config wires a Supervisor to its collaborators.
type Config struct {
	URL         string
	Policy      Policy
	Dialer      Dialer
	DialTimeout time.Duration
	Logger      *slog.Logger
	Notifier    *notify.Notifier
	// OnFrame receives every inbound frame, in transport order.
	OnFrame func([]byte)
	// OnState observes lifecycle transitions.
	OnState func(State)
}

// Supervisor owns the lifecycle of exactly one streaming connection at a
// time. Unexpected closes run the reconnect policy; caller-initiated closes
// via Stop never do. A scheduled retry is abandoned when Stop is called
// before it fires.
type Supervisor struct {
	cfg Config

	mu         sync.Mutex
	state      State
	sock       Socket
	failures   int
	retryTimer *time.Timer
	// gen invalidates callbacks from sockets and timers that belong to a
	// superseded connection cycle. Stop and every Start bump it.
	gen int
}

// NewSupervisor returns an idle Supervisor. Zero-value policy and dialer
// fall back to the defaults.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.Policy.MaxAttempts == 0 && cfg.Policy.Delay == 0 {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	return &Supervisor{cfg: cfg}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins a connection cycle. An invalid session leaves the supervisor
// idle. Start while a cycle is active is a no-op; after exhaustion a new
// Start begins a fresh cycle with a reset counter.
func (s *Supervisor) Start(sessionValid bool) error {
	if !sessionValid {
		s.cfg.Logger.Debug("start refused, session invalid")
		return ErrSessionInvalid
	}
	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateOpen, StateRetrying:
		s.mu.Unlock()
		return nil
	}
	s.failures = 0
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.mu.Unlock()

	s.emit(StateConnecting)
	go s.connect(gen)
	return nil
}

// Stop closes the active socket, cancels any pending retry and returns the
// supervisor to idle. It never triggers the reconnect policy.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.gen++
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	sock := s.sock
	s.sock = nil
	s.failures = 0
	changed := s.state != StateIdle
	s.state = StateIdle
	s.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	if changed {
		s.emit(StateIdle)
	}
}

// Send writes one frame through the open connection. It fails with
// ErrNotConnected in every other state; frames are never queued.
func (s *Supervisor) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen || s.sock == nil {
		return ErrNotConnected
	}
	return s.sock.WriteMessage(data)
}

func (s *Supervisor) connect(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout)
	sock, err := s.cfg.Dialer.Dial(ctx, s.cfg.URL)
	cancel()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if err == nil {
			_ = sock.Close()
		}
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.cfg.Logger.Warn("connect failed", "url", s.cfg.URL, "error", err)
		s.notifyError("Connection error occurred")
		s.handleFailure(gen)
		return
	}
	// At most one live socket: a leftover is replaced and closed below,
	// outside the lock, since Close may block on a close handshake.
	leftover := s.sock
	s.sock = sock
	s.failures = 0
	s.state = StateOpen
	s.mu.Unlock()

	if leftover != nil {
		_ = leftover.Close()
	}
	s.emit(StateOpen)
	metrics.IncConnect()
	s.cfg.Logger.Info("connected", "url", s.cfg.URL)
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.Success("Connected to server successfully")
	}
	go s.readLoop(gen, sock)
}

func (s *Supervisor) readLoop(gen int, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			s.cfg.Logger.Debug("read loop ended", "error", err)
			s.handleFailure(gen)
			return
		}
		if s.cfg.OnFrame != nil {
			s.cfg.OnFrame(data)
		}
	}
}

// handleFailure runs the reconnect policy after an unexpected close or a
// failed dial. Closes initiated by Stop are recognized by a stale gen and
// ignored here.
func (s *Supervisor) handleFailure(gen int) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.sock = nil
	metrics.IncDisconnect()
	s.failures++
	attempt := s.failures
	delay, ok := s.cfg.Policy.Next(s.failures)
	if !ok {
		s.state = StateExhausted
		s.mu.Unlock()
		s.emit(StateExhausted)
		s.cfg.Logger.Error("reconnect attempts exhausted", "attempts", attempt)
		s.notifyError("Failed to reconnect to server")
		return
	}
	s.state = StateRetrying
	s.retryTimer = time.AfterFunc(delay, func() { s.retry(gen) })
	max := s.cfg.Policy.MaxAttempts
	s.mu.Unlock()

	s.emit(StateRetrying)
	metrics.IncReconnectAttempt()
	s.cfg.Logger.Warn("disconnected, retry scheduled",
		"attempt", attempt, "max", max, "delay", delay)
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.Warning(fmt.Sprintf("Disconnected, reconnecting... (%d/%d)", attempt, max))
	}
}

func (s *Supervisor) retry(gen int) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateRetrying {
		s.mu.Unlock()
		return
	}
	s.retryTimer = nil
	s.state = StateConnecting
	s.mu.Unlock()

	s.emit(StateConnecting)
	s.connect(gen)
}

func (s *Supervisor) emit(st State) {
	metrics.SetConnState(st.String(), StateNames())
	if s.cfg.OnState != nil {
		s.cfg.OnState(st)
	}
}

func (s *Supervisor) notifyError(msg string) {
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.Error(msg)
	}
}
