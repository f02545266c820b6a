package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Result describes one completed export announced by the server.
type Result struct {
	Target     string    `json:"target"`
	FileURL    string    `json:"file_url"`
	Rows       int       `json:"rows"`
	Format     string    `json:"format"`
	ReceivedAt time.Time `json:"received_at"`
	// LocalPath is set once the file has been retrieved.
	LocalPath string `json:"local_path,omitempty"`
}

// Retriever receives export_ready announcements and fetches the file into
// a local download directory. Retrieval is best effort: a failed download
// is logged and the announcement is still recorded.
type Retriever struct {
	dir    string
	client *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	results []Result
	wg      sync.WaitGroup
}

// NewRetriever returns a Retriever writing into dir. An empty dir disables
// downloads; announcements are still recorded.
func NewRetriever(dir string, client *http.Client, logger *slog.Logger) *Retriever {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{dir: dir, client: client, logger: logger}
}

// Handle records the announcement and retrieves the file in the background.
// It returns without waiting on the export server, so the caller's frame
// loop is never held up by a slow download.
func (r *Retriever) Handle(ctx context.Context, res Result) {
	res.ReceivedAt = time.Now()
	r.mu.Lock()
	idx := len(r.results)
	r.results = append(r.results, res)
	r.mu.Unlock()

	if r.dir == "" {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		local, err := r.download(ctx, res)
		if err != nil {
			r.logger.Warn("export download failed",
				"target", res.Target, "url", res.FileURL, "error", err)
			return
		}
		r.mu.Lock()
		r.results[idx].LocalPath = local
		r.mu.Unlock()
		r.logger.Info("export downloaded", "target", res.Target, "path", local)
	}()
}

// Wait blocks until all in-flight downloads have finished.
func (r *Retriever) Wait() { r.wg.Wait() }

// Results returns the recorded announcements, newest last.
func (r *Retriever) Results() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}

func (r *Retriever) download(ctx context.Context, res Result) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.FileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}
	name := fileName(res)
	dest := filepath.Join(r.dir, name)
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dest, nil
}

// fileName derives a safe local name from the URL path, falling back to
// target and format when the URL has none.
func fileName(res Result) string {
	if u, err := url.Parse(res.FileURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			return sanitize(base)
		}
	}
	format := res.Format
	if format == "" {
		format = "dat"
	}
	return sanitize(fmt.Sprintf("%s-export.%s", res.Target, format))
}

func sanitize(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, name)
}
