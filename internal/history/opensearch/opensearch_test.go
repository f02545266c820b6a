package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brosup/gmonitor/internal/history"
)

func TestSendPostsDocument(t *testing.T) {
	var gotPath string
	var gotEvent history.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotEvent); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := New(srv.URL, "console-history")
	e := history.Event{
		Type:       history.EventCommand,
		OccurredAt: time.Now().UTC(),
		Client:     "worker_1",
		Detail:     "start",
	}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/console-history/_doc" {
		t.Fatalf("posted to %q", gotPath)
	}
	if gotEvent.Type != history.EventCommand || gotEvent.Client != "worker_1" {
		t.Fatalf("stored event = %+v", gotEvent)
	}
}

func TestSendReportsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "index read-only", http.StatusForbidden)
	}))
	defer srv.Close()

	sink := New(srv.URL, "console-history")
	if err := sink.Send(context.Background(), history.Event{Type: history.EventConnected}); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}
