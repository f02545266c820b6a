package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// ErrInvalidCredentials is returned when the auth service rejects the
// supplied username/password pair.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Client performs the credential check against the auth service. The service
// itself is a black box: one POST, one JSON body back.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds auth client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for the client
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultConfig returns default auth client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://brosup-gma.brosupdigital.com/api",
		Timeout: 10 * time.Second,
	}
}

// InsecureConfig returns a configuration that skips TLS verification.
func InsecureConfig() Config {
	return Config{
		BaseURL:  "https://brosup-gma.brosupdigital.com/api",
		Timeout:  10 * time.Second,
		Insecure: true,
	}
}

// New creates an auth API client with TLS support
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// Login checks the supplied credentials and returns the resulting token
// and absolute expiry. A 401/403 maps to ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	c.logger.Debug("Checking credentials", "username", creds.Username)

	data, err := json.Marshal(creds)
	if err != nil {
		return LoginResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(data))
	if err != nil {
		return LoginResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", c.baseURL+"/login")
		return LoginResult{}, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return LoginResult{}, ErrInvalidCredentials
	default:
		var errorResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
			c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
			return LoginResult{}, fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		c.logger.Error("Login failed", "error", errorResp.Error, "status", resp.StatusCode)
		return LoginResult{}, fmt.Errorf("API error: %s", errorResp.Error)
	}

	var raw loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return LoginResult{}, fmt.Errorf("decode response: %w", err)
	}
	if raw.Token == "" {
		return LoginResult{}, fmt.Errorf("login response missing token")
	}

	expires, err := parseExpiry(raw.ExpiryDate)
	if err != nil {
		return LoginResult{}, fmt.Errorf("parse expiry_date %q: %w", raw.ExpiryDate, err)
	}

	c.logger.Debug("Credentials accepted", "full_name", raw.FullName, "expires_at", expires)
	return LoginResult{FullName: raw.FullName, Token: raw.Token, ExpiresAt: expires}, nil
}

// IsReachable checks if the auth service answers at all.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Auth service unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode != http.StatusNotFound
	c.logger.Debug("Auth service reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// expiryLayouts lists accepted expiry_date formats, most specific first.
var expiryLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseExpiry(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range expiryLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// setupClientTLS creates TLS configuration for the client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

// loadCACert loads a CA certificate from file and adds it to the TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig.RootCAs = caCertPool
	return nil
}
