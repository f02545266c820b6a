package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoginSuccess(t *testing.T) {
	expiry := time.Now().Add(8 * time.Hour).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("decode credentials: %v", err)
		}
		if creds.Username != "operator" {
			t.Errorf("username = %q", creds.Username)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"full_name":   "Fleet Operator",
			"expiry_date": expiry.Format(time.RFC3339),
			"token":       "tok-123",
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	res, err := c.Login(context.Background(), Credentials{Username: "operator", Password: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.FullName != "Fleet Operator" || res.Token != "tok-123" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.ExpiresAt.Equal(expiry) {
		t.Fatalf("ExpiresAt = %v, want %v", res.ExpiresAt, expiry)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Login(context.Background(), Credentials{Username: "x", Password: "y"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "database down"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Login(context.Background(), Credentials{Username: "x", Password: "y"})
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want generic API error", err)
	}
}

func TestParseExpiryLayouts(t *testing.T) {
	cases := []string{
		"2026-09-01T10:00:00Z",
		"2026-09-01 10:00:00",
		"2026-09-01",
	}
	for _, in := range cases {
		if _, err := parseExpiry(in); err != nil {
			t.Errorf("parseExpiry(%q): %v", in, err)
		}
	}
	if _, err := parseExpiry("not-a-date"); err == nil {
		t.Errorf("parseExpiry accepted garbage")
	}
}

func TestIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if !c.IsReachable(context.Background()) {
		t.Fatalf("expected reachable")
	}

	srv.Close()
	if c.IsReachable(context.Background()) {
		t.Fatalf("expected unreachable after close")
	}
}
