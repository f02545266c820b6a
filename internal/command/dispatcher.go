package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brosup/gmonitor/internal/conn"
	"github.com/brosup/gmonitor/internal/metrics"
	"github.com/brosup/gmonitor/internal/notify"
)

// Command names accepted by the server.
const (
	Start  = "start"
	Stop   = "stop"
	Export = "export"
)

// ErrInvalidCommand is returned for command names the server does not know.
var ErrInvalidCommand = errors.New("invalid command")

// Sender is the slice of the connection supervisor the dispatcher uses.
// Frames go out through the currently open socket or not at all.
type Sender interface {
	Send(data []byte) error
}

// frame is the outbound wire format. Format is only present on export.
type frame struct {
	Command string `json:"command"`
	Target  string `json:"target"`
	Format  string `json:"format,omitempty"`
}

// Dispatcher serializes control commands and sends them fire-and-forget.
// A command issued without an open connection fails immediately and is
// dropped: never queued, never retried, and no acknowledgment is awaited.
type Dispatcher struct {
	sender   Sender
	notifier *notify.Notifier
	logger   *slog.Logger
}

// New returns a Dispatcher sending through sender.
func New(sender Sender, notifier *notify.Notifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, notifier: notifier, logger: logger}
}

// Send issues a command for target. format is only meaningful for export.
func (d *Dispatcher) Send(command, target, format string) error {
	switch command {
	case Start, Stop:
		format = ""
	case Export:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	data, err := json.Marshal(frame{Command: command, Target: target, Format: format})
	if err != nil {
		return err
	}
	if err := d.sender.Send(data); err != nil {
		metrics.IncCommandDropped()
		d.logger.Warn("command dropped", "command", command, "target", target, "error", err)
		if d.notifier != nil && errors.Is(err, conn.ErrNotConnected) {
			d.notifier.Error("Not connected to server")
		}
		return err
	}
	metrics.IncCommandSent(command)
	d.logger.Debug("command sent", "command", command, "target", target)
	if d.notifier != nil {
		d.notifier.Info(fmt.Sprintf("Command sent: %s for %s", command, target))
	}
	return nil
}

// StartClient asks the worker identified by target to start its process.
func (d *Dispatcher) StartClient(target string) error { return d.Send(Start, target, "") }

// StopClient asks the worker identified by target to stop its process.
func (d *Dispatcher) StopClient(target string) error { return d.Send(Stop, target, "") }

// ExportClient requests an export of target's data in the given format.
func (d *Dispatcher) ExportClient(target, format string) error {
	if format == "" {
		format = "csv"
	}
	return d.Send(Export, target, format)
}
