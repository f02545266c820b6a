package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Session represents an authenticated user session. ExpiresAt is absolute;
// once it passes, the session is invalid no matter what the server thinks.
type Session struct {
	FullName  string    `json:"full_name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session expiry is strictly in the future.
func (s *Session) Valid() bool {
	return s != nil && time.Now().Before(s.ExpiresAt)
}

// TimeLeft returns the remaining lifetime, zero when already expired.
func (s *Session) TimeLeft() time.Duration {
	if s == nil {
		return 0
	}
	left := time.Until(s.ExpiresAt)
	if left < 0 {
		return 0
	}
	return left
}

// Manager persists the session and the theme preference as keyed files
// under a single directory (defaults to ~/.gmonitor). It has no network
// knowledge.
type Manager struct {
	dir string
}

const (
	sessionFile = "session.json"
	themeFile   = "theme"
)

// NewManager returns a Manager rooted at dir; empty dir selects
// ~/.gmonitor (falling back to the working directory).
func NewManager(dir string) *Manager {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".gmonitor")
	}
	_ = os.MkdirAll(dir, 0o700)
	return &Manager{dir: dir}
}

// Path returns the session file location.
func (m *Manager) Path() string { return filepath.Join(m.dir, sessionFile) }

// Save persists the session.
func (m *Manager) Save(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.Path(), data, 0o600)
}

// Load returns the persisted session when present and not expired.
// A stale entry is removed and nil is returned.
func (m *Manager) Load() (*Session, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		_ = m.Clear()
		return nil, nil
	}
	if !s.Valid() {
		_ = m.Clear()
		return nil, nil
	}
	return &s, nil
}

// Clear removes the persisted session.
func (m *Manager) Clear() error {
	err := os.Remove(m.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Theme preference values.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// SaveTheme persists the theme preference.
func (m *Manager) SaveTheme(mode string) error {
	if mode != ThemeDark {
		mode = ThemeLight
	}
	return os.WriteFile(filepath.Join(m.dir, themeFile), []byte(mode), 0o600)
}

// Theme returns the persisted theme preference, defaulting to light.
func (m *Manager) Theme() string {
	data, err := os.ReadFile(filepath.Join(m.dir, themeFile))
	if err != nil || string(data) != ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}
