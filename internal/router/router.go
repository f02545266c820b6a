package router

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brosup/gmonitor/internal/metrics"
	"github.com/brosup/gmonitor/internal/notify"
	"github.com/brosup/gmonitor/internal/state"
)

// Recognized inbound event discriminants.
const (
	EventClientsList  = "clients_list"
	EventStatusUpdate = "status_update"
	EventExportReady  = "export_ready"
)

// ExportReady is the payload of an export_ready frame. It is forwarded to
// the export collaborator, never to the state store.
type ExportReady struct {
	Target  string `json:"target"`
	FileURL string `json:"file_url"`
	Rows    int    `json:"rows"`
	Format  string `json:"format"`
}

// envelope peeks at the discriminant before the payload is decoded.
type envelope struct {
	Event string `json:"event"`
}

type clientsListFrame struct {
	Clients []state.Client `json:"clients"`
}

type statusUpdateFrame struct {
	Client string `json:"client"`
	state.Update
}

// Router parses inbound frames and dispatches them. A malformed frame is
// dropped with a diagnostic log and can never leave the store in a
// partially-applied condition: decoding completes before any mutation.
type Router struct {
	store    *state.Store
	notifier *notify.Notifier
	logger   *slog.Logger
	// onExport receives export_ready payloads (export collaborator).
	onExport func(ExportReady)
	// onLoaded fires after each applied snapshot (loading finished).
	onLoaded func()
}

// Config wires a Router.
type Config struct {
	Store    *state.Store
	Notifier *notify.Notifier
	Logger   *slog.Logger
	OnExport func(ExportReady)
	OnLoaded func()
}

// New returns a Router. Store is required; the rest may be nil.
func New(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		onExport: cfg.OnExport,
		onLoaded: cfg.OnLoaded,
	}
}

// HandleFrame processes one raw inbound frame. It never returns an error:
// transport delivery order is preserved and a bad frame only logs.
func (r *Router) HandleFrame(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.IncParseFailure()
		r.logger.Debug("dropping malformed frame", "error", err)
		return
	}
	switch env.Event {
	case EventClientsList:
		r.handleClientsList(raw)
	case EventStatusUpdate:
		r.handleStatusUpdate(raw)
	case EventExportReady:
		r.handleExportReady(raw)
	default:
		metrics.IncUnknownEvent()
		r.logger.Debug("ignoring unknown event", "event", env.Event)
	}
}

func (r *Router) handleClientsList(raw []byte) {
	var frame clientsListFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		metrics.IncParseFailure()
		r.logger.Debug("dropping malformed clients_list", "error", err)
		return
	}
	r.store.ReplaceAll(frame.Clients)
	metrics.IncFrame(EventClientsList)
	fs := r.store.Stats()
	metrics.SetFleet(fs.Total, fs.Running)
	r.logger.Info("fleet snapshot applied", "clients", len(frame.Clients))
	if r.notifier != nil {
		r.notifier.Info(fmt.Sprintf("Received %d clients", len(frame.Clients)))
	}
	if r.onLoaded != nil {
		r.onLoaded()
	}
}

func (r *Router) handleStatusUpdate(raw []byte) {
	var frame statusUpdateFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		metrics.IncParseFailure()
		r.logger.Debug("dropping malformed status_update", "error", err)
		return
	}
	if frame.Client == "" {
		metrics.IncParseFailure()
		r.logger.Debug("status_update without client id")
		return
	}
	if !r.store.MergeOne(frame.Client, frame.Update) {
		// A delta can never create a record; only snapshots do.
		r.logger.Debug("status_update for unknown client", "client", frame.Client)
		return
	}
	metrics.IncFrame(EventStatusUpdate)
	fs := r.store.Stats()
	metrics.SetFleet(fs.Total, fs.Running)
}

func (r *Router) handleExportReady(raw []byte) {
	var frame ExportReady
	if err := json.Unmarshal(raw, &frame); err != nil {
		metrics.IncParseFailure()
		r.logger.Debug("dropping malformed export_ready", "error", err)
		return
	}
	if frame.Target == "" || frame.FileURL == "" {
		metrics.IncParseFailure()
		r.logger.Debug("export_ready missing target or file_url")
		return
	}
	metrics.IncFrame(EventExportReady)
	r.logger.Info("export ready", "target", frame.Target, "rows", frame.Rows, "format", frame.Format)
	if r.notifier != nil {
		r.notifier.Success(fmt.Sprintf("Export ready: %d rows - %s", frame.Rows, frame.Format))
	}
	if r.onExport != nil {
		r.onExport(frame)
	}
}
