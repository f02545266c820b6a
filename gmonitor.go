package gmonitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brosup/gmonitor/internal/command"
	cfg "github.com/brosup/gmonitor/internal/config"
	"github.com/brosup/gmonitor/internal/conn"
	"github.com/brosup/gmonitor/internal/export"
	"github.com/brosup/gmonitor/internal/history"
	hfactory "github.com/brosup/gmonitor/internal/history/factory"
	"github.com/brosup/gmonitor/internal/logger"
	"github.com/brosup/gmonitor/internal/metrics"
	"github.com/brosup/gmonitor/internal/notify"
	"github.com/brosup/gmonitor/internal/router"
	iapi "github.com/brosup/gmonitor/internal/server"
	"github.com/brosup/gmonitor/internal/session"
	"github.com/brosup/gmonitor/internal/state"
	"github.com/brosup/gmonitor/pkg/client"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Client = state.Client

type Update = state.Update

type JobStats = state.JobStats

type FleetStats = state.FleetStats

type ConnState = conn.State

type ReconnectPolicy = conn.Policy

type Dialer = conn.Dialer

type Session = session.Session

type Notification = notify.Notification

type ExportResult = export.Result

type FileConfig = cfg.FileConfig

type HistorySink = history.Sink

var (
	ErrNotConnected   = conn.ErrNotConnected
	ErrSessionInvalid = conn.ErrSessionInvalid
)

// Options configures a Console. Zero values fall back to the built-in
// defaults; Dialer and Auth exist mainly so tests can substitute fakes.
type Options struct {
	ServerURL   string
	AuthURL     string
	SessionDir  string
	DownloadDir string
	HistoryDSN  string
	Policy      conn.Policy
	Logger      *slog.Logger
	Dialer      conn.Dialer
	Auth        *client.Client
	// OnNotification observes transient user-facing notifications.
	OnNotification func(Notification)
	// OnState observes connection lifecycle transitions.
	OnState func(ConnState)
	// OnLoaded fires when a full snapshot has been applied, ending the
	// loading phase started by Connect or Refresh.
	OnLoaded func()
}

// Console is the synchronization engine behind a monitoring console: one
// websocket mirrored into a client-state store, bound to an authenticated
// session with absolute expiry.
type Console struct {
	logger     *slog.Logger
	store      *state.Store
	notifier   *notify.Notifier
	sessions   *session.Manager
	guard      *session.Guard
	supervisor *conn.Supervisor
	dispatcher *command.Dispatcher
	exports    *export.Retriever
	auth       *client.Client
	sink       history.Sink
	loading    atomic.Bool
}

// New wires a Console from Options.
func New(opts Options) (*Console, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &Console{
		logger:   log,
		store:    state.NewStore(),
		sessions: session.NewManager(opts.SessionDir),
		guard:    session.NewGuard(log),
	}

	c.notifier = notify.NewNotifier(opts.OnNotification)

	if opts.HistoryDSN != "" {
		sink, err := hfactory.NewSinkFromDSN(opts.HistoryDSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		c.sink = sink
	}

	c.exports = export.NewRetriever(opts.DownloadDir, nil, log)

	rt := router.New(router.Config{
		Store:    c.store,
		Notifier: c.notifier,
		Logger:   log,
		OnExport: func(ev router.ExportReady) {
			c.exports.Handle(context.Background(), export.Result{
				Target:     ev.Target,
				FileURL:    ev.FileURL,
				Rows:       ev.Rows,
				Format:     ev.Format,
				ReceivedAt: time.Now(),
			})
		},
		OnLoaded: func() {
			c.loading.Store(false)
			c.record(history.Event{
				Type:   history.EventSnapshot,
				Detail: fmt.Sprintf("%d clients", c.store.Len()),
			})
			if opts.OnLoaded != nil {
				opts.OnLoaded()
			}
		},
	})

	url := opts.ServerURL
	if url == "" {
		url = cfg.DefaultServerURL
	}
	c.supervisor = conn.NewSupervisor(conn.Config{
		URL:      url,
		Policy:   opts.Policy,
		Dialer:   opts.Dialer,
		Logger:   log,
		Notifier: c.notifier,
		OnFrame:  rt.HandleFrame,
		OnState: func(st conn.State) {
			switch st {
			case conn.StateOpen:
				c.record(history.Event{Type: history.EventConnected})
			case conn.StateRetrying:
				c.record(history.Event{Type: history.EventDisconnected})
			case conn.StateExhausted:
				c.record(history.Event{Type: history.EventExhausted})
			}
			if opts.OnState != nil {
				opts.OnState(st)
			}
		},
	})

	c.dispatcher = command.New(c.supervisor, c.notifier, log)

	if opts.Auth != nil {
		c.auth = opts.Auth
	} else {
		authCfg := client.DefaultConfig()
		if opts.AuthURL != "" {
			authCfg.BaseURL = opts.AuthURL
		}
		authCfg.Logger = log
		c.auth = client.New(authCfg)
	}

	return c, nil
}

// NewFromConfig builds a Console from a loaded file configuration.
func NewFromConfig(fc FileConfig) (*Console, error) {
	return New(Options{
		ServerURL:   fc.ServerURL,
		AuthURL:     fc.AuthURL,
		SessionDir:  fc.SessionDir,
		DownloadDir: fc.DownloadDir,
		HistoryDSN:  fc.HistoryDSN,
		Policy: conn.Policy{
			MaxAttempts: fc.Reconnect.MaxAttempts,
			Delay:       fc.Reconnect.Interval,
		},
		Logger: fc.Log.New(),
	})
}

// LoadConfig reads a TOML config file and applies environment overrides.
func LoadConfig(path string) (FileConfig, error) { return cfg.Load(path) }

// Login verifies credentials against the auth service, persists the
// resulting session and arms its expiry guard.
func (c *Console) Login(ctx context.Context, username, password string) (*Session, error) {
	res, err := c.auth.Login(ctx, client.Credentials{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	s := &session.Session{FullName: res.FullName, Token: res.Token, ExpiresAt: res.ExpiresAt}
	if !s.Valid() {
		return nil, fmt.Errorf("login returned already-expired session (expires_at %v)", s.ExpiresAt)
	}
	if err := c.sessions.Save(s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.guard.Arm(s, c.onSessionExpired)
	c.notifier.Success(fmt.Sprintf("Welcome, %s", s.FullName))
	c.logger.Info("logged in", "full_name", s.FullName, "expires_at", s.ExpiresAt)
	return s, nil
}

// Logout tears the console down: connection closed, session cleared, state
// emptied. Safe to call when already logged out.
func (c *Console) Logout() {
	c.teardown(notify.LevelInfo, "Logged out")
}

// Connect starts the mirrored connection. It requires a valid persisted
// session; the expiry guard is (re)armed from the session on disk so a
// restarted console keeps the binding.
func (c *Console) Connect() error {
	s, err := c.sessions.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !s.Valid() {
		return ErrSessionInvalid
	}
	c.guard.Arm(s, c.onSessionExpired)
	c.loading.Store(true)
	if err := c.supervisor.Start(true); err != nil {
		c.loading.Store(false)
		return err
	}
	return nil
}

// Loading reports whether a snapshot is pending after Connect or Refresh.
func (c *Console) Loading() bool { return c.loading.Load() }

// Disconnect closes the connection without touching the session.
func (c *Console) Disconnect() {
	c.supervisor.Stop()
	c.loading.Store(false)
}

// Refresh forces a fresh full snapshot by cycling the connection. The server
// greets every new connection with a clients_list.
func (c *Console) Refresh() error {
	c.supervisor.Stop()
	return c.Connect()
}

// StartClient asks a worker to start processing. Fire-and-forget.
func (c *Console) StartClient(target string) error {
	if err := c.dispatcher.StartClient(target); err != nil {
		return err
	}
	c.record(history.Event{Type: history.EventCommand, Client: target, Detail: command.Start})
	return nil
}

// StopClient asks a worker to stop processing. Fire-and-forget.
func (c *Console) StopClient(target string) error {
	if err := c.dispatcher.StopClient(target); err != nil {
		return err
	}
	c.record(history.Event{Type: history.EventCommand, Client: target, Detail: command.Stop})
	return nil
}

// ExportClient asks the server to produce an export for one worker.
// Format defaults to csv.
func (c *Console) ExportClient(target, format string) error {
	if err := c.dispatcher.ExportClient(target, format); err != nil {
		return err
	}
	c.record(history.Event{Type: history.EventCommand, Client: target, Detail: command.Export})
	return nil
}

// Clients returns the fleet in natural order.
func (c *Console) Clients() []Client { return c.store.Sorted() }

// ClientByID returns one worker record.
func (c *Console) ClientByID(id string) (Client, bool) { return c.store.Get(id) }

// Stats returns aggregate fleet statistics.
func (c *Console) Stats() FleetStats { return c.store.Stats() }

// ConnectionState returns the current lifecycle state.
func (c *Console) ConnectionState() ConnState { return c.supervisor.State() }

// Session returns the persisted session, or nil when logged out/expired.
func (c *Console) Session() *Session {
	s, err := c.sessions.Load()
	if err != nil {
		c.logger.Debug("load session", "error", err)
		return nil
	}
	return s
}

// Notification returns the currently displayed transient notification.
func (c *Console) Notification() *Notification { return c.notifier.Current() }

// Exports lists announced export results, newest last.
func (c *Console) Exports() []ExportResult { return c.exports.Results() }

// Theme returns the persisted display preference ("dark" or "light").
func (c *Console) Theme() string { return c.sessions.Theme() }

// SetTheme persists the display preference.
func (c *Console) SetTheme(mode string) error { return c.sessions.SaveTheme(mode) }

// Close stops the connection and releases the history sink's database
// handles. The persisted session is left alone; use Logout to clear it.
func (c *Console) Close() error {
	c.guard.Disarm()
	c.supervisor.Stop()
	c.loading.Store(false)
	if closer, ok := c.sink.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Console) onSessionExpired() {
	c.record(history.Event{Type: history.EventSessionExpired})
	c.teardown(notify.LevelWarning, "Session expired, please log in again")
}

// teardown is the single forced-logout path: connection first so no frame
// lands after the session is gone, then session, then state.
func (c *Console) teardown(level notify.Level, msg string) {
	c.guard.Disarm()
	c.supervisor.Stop()
	c.loading.Store(false)
	if err := c.sessions.Clear(); err != nil {
		c.logger.Warn("clear session", "error", err)
	}
	c.store.Clear()
	c.notifier.Notify(level, msg)
}

func (c *Console) record(e history.Event) {
	if c.sink == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.sink.Send(ctx, e); err != nil {
			c.logger.Warn("history sink send failed", "type", e.Type, "error", err)
		}
	}()
}

// NewHTTPServer starts an HTTP server exposing the local read-only API.
func (c *Console) NewHTTPServer(addr, basePath string) *http.Server {
	return iapi.NewServer(addr, iapi.Config{
		Store:      c.store,
		Supervisor: c.supervisor,
		Sessions:   c.sessions,
		Notifier:   c.notifier,
		Dispatcher: c.dispatcher,
		Exports:    c.exports,
		BasePath:   basePath,
	})
}

// APIHandler returns the local read-only API as a mountable http.Handler.
func (c *Console) APIHandler(basePath string) http.Handler {
	return iapi.NewRouter(iapi.Config{
		Store:      c.store,
		Supervisor: c.supervisor,
		Sessions:   c.sessions,
		Notifier:   c.notifier,
		Dispatcher: c.dispatcher,
		Exports:    c.exports,
		BasePath:   basePath,
	}).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler exposes the default registry for mounting at /metrics.
func MetricsHandler() http.Handler { return metrics.Handler() }

// NewLogger builds a rotating, colored slog logger from a logger config.
func NewLogger(lc logger.Config) *slog.Logger { return lc.New() }
