package command

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/brosup/gmonitor/internal/conn"
	"github.com/brosup/gmonitor/internal/notify"
)

type captureSender struct {
	frames [][]byte
	err    error
}

func (c *captureSender) Send(data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, data)
	return nil
}

func TestStartStopWireFormat(t *testing.T) {
	s := &captureSender{}
	d := New(s, nil, nil)
	if err := d.StartClient("worker-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.StopClient("worker-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(s.frames[0], &got); err != nil {
		t.Fatalf("bad frame: %v", err)
	}
	if got["command"] != "start" || got["target"] != "worker-1" {
		t.Fatalf("unexpected frame: %v", got)
	}
	if _, ok := got["format"]; ok {
		t.Fatalf("start/stop must not carry a format field: %v", got)
	}
}

func TestExportCarriesFormat(t *testing.T) {
	s := &captureSender{}
	d := New(s, nil, nil)
	if err := d.ExportClient("worker-1", "txt"); err != nil {
		t.Fatalf("export: %v", err)
	}
	var got map[string]any
	_ = json.Unmarshal(s.frames[0], &got)
	if got["command"] != "export" || got["format"] != "txt" {
		t.Fatalf("unexpected frame: %v", got)
	}
}

func TestExportDefaultsToCSV(t *testing.T) {
	s := &captureSender{}
	d := New(s, nil, nil)
	_ = d.ExportClient("worker-1", "")
	var got map[string]any
	_ = json.Unmarshal(s.frames[0], &got)
	if got["format"] != "csv" {
		t.Fatalf("expected csv default, got %v", got["format"])
	}
}

func TestDroppedWhenNotConnected(t *testing.T) {
	s := &captureSender{err: conn.ErrNotConnected}
	n := notify.NewNotifier(nil)
	d := New(s, n, nil)
	err := d.StartClient("worker-1")
	if !errors.Is(err, conn.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(s.frames) != 0 {
		t.Fatalf("dropped command must not be queued")
	}
	cur := n.Current()
	if cur == nil || cur.Level != notify.LevelError {
		t.Fatalf("expected error notification, got %+v", cur)
	}
	// no retry happens on a later success; the command is gone
	s.err = nil
	if len(s.frames) != 0 {
		t.Fatalf("command resent after drop")
	}
}

func TestInvalidCommandRefused(t *testing.T) {
	s := &captureSender{}
	d := New(s, nil, nil)
	if err := d.Send("restart", "worker-1", ""); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}
}
