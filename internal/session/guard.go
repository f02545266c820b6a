package session

import (
	"log/slog"
	"sync"
	"time"
)

// Guard schedules exactly one forced-logout action at the session's
// absolute expiry. Re-arming cancels the previous timer first, so repeated
// Arm calls never stack timers.
type Guard struct {
	logger *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
	gen   int
}

// NewGuard returns a disarmed Guard.
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{logger: logger}
}

// Arm schedules onExpire to run when the session expires. An already
// expired session fires immediately (asynchronously). Arm is idempotent
// under repeated calls with the same session: only the latest timer lives.
func (g *Guard) Arm(s *Session, onExpire func()) {
	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
	gen := g.gen
	left := s.TimeLeft()
	g.timer = time.AfterFunc(left, func() { g.fire(gen, onExpire) })
	g.mu.Unlock()
	g.logger.Debug("session expiry armed", "expires_in", left)
}

func (g *Guard) fire(gen int, onExpire func()) {
	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		return
	}
	g.timer = nil
	g.mu.Unlock()
	g.logger.Warn("session expired, forcing logout")
	onExpire()
}

// Disarm cancels any scheduled expiry action.
func (g *Guard) Disarm() {
	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
	g.mu.Unlock()
}
