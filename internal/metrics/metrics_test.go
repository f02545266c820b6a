package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotent(t *testing.T) {
	r := prometheus.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := Register(r); err != nil {
		t.Fatalf("second register must be a no-op: %v", err)
	}
}

func TestHelpersDoNotPanic(t *testing.T) {
	IncConnect()
	IncReconnectAttempt()
	IncDisconnect()
	IncFrame("clients_list")
	IncParseFailure()
	IncUnknownEvent()
	IncCommandSent("start")
	IncCommandDropped()
	SetFleet(3, 2)
	SetConnState("open", []string{"idle", "connecting", "open", "retrying", "exhausted"})
}

func TestUnknownEventDoesNotCountAsParseFailure(t *testing.T) {
	failures := testutil.ToFloat64(frameParseFailures)
	unknown := testutil.ToFloat64(framesUnknown)

	IncUnknownEvent()

	if got := testutil.ToFloat64(frameParseFailures); got != failures {
		t.Fatalf("parse failures moved from %v to %v on an unknown event", failures, got)
	}
	if got := testutil.ToFloat64(framesUnknown); got != unknown+1 {
		t.Fatalf("unknown counter = %v, want %v", got, unknown+1)
	}
}
