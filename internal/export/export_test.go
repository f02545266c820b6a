package export

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHandleDownloadsFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("id,ok,fail\nw1,10,2\n"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	r := NewRetriever(dir, ts.Client(), nil)
	r.Handle(context.Background(), Result{
		Target: "w1", FileURL: ts.URL + "/exports/w1.csv", Rows: 1, Format: "csv",
	})
	r.Wait()

	results := r.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.LocalPath == "" {
		t.Fatalf("download did not record a local path: %+v", got)
	}
	data, err := os.ReadFile(got.LocalPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "id,ok,fail\nw1,10,2\n" {
		t.Fatalf("unexpected file contents: %q", data)
	}
	if filepath.Base(got.LocalPath) != "w1.csv" {
		t.Fatalf("expected name from url path, got %q", got.LocalPath)
	}
}

func TestHandleRecordsFailedDownload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	r := NewRetriever(t.TempDir(), ts.Client(), nil)
	r.Handle(context.Background(), Result{Target: "w1", FileURL: ts.URL + "/x.csv", Format: "csv"})
	r.Wait()

	results := r.Results()
	if len(results) != 1 {
		t.Fatalf("announcement must be recorded even when retrieval fails")
	}
	if results[0].LocalPath != "" {
		t.Fatalf("failed download must not set a local path")
	}
}

func TestEmptyDirDisablesDownload(t *testing.T) {
	r := NewRetriever("", nil, nil)
	r.Handle(context.Background(), Result{Target: "w1", FileURL: "http://127.0.0.1:1/never", Format: "csv"})
	results := r.Results()
	if len(results) != 1 || results[0].LocalPath != "" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestHandleReturnsBeforeSlowDownload(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("data"))
	}))
	defer ts.Close()

	r := NewRetriever(t.TempDir(), ts.Client(), nil)
	start := time.Now()
	r.Handle(context.Background(), Result{Target: "w1", FileURL: ts.URL + "/slow.csv", Format: "csv"})
	elapsed := time.Since(start)

	close(release)
	r.Wait()

	if elapsed > 200*time.Millisecond {
		t.Fatalf("Handle blocked on the download for %v", elapsed)
	}
	if results := r.Results(); len(results) != 1 {
		t.Fatalf("announcement must be recorded immediately, got %d results", len(results))
	}
}

func TestFileNameFallback(t *testing.T) {
	got := fileName(Result{Target: "w1", FileURL: "http://host/", Format: "txt"})
	if got != "w1-export.txt" {
		t.Fatalf("unexpected fallback name: %q", got)
	}
}
