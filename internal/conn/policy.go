package conn

import "time"

// Default reconnect parameters. The delay is fixed across all attempts;
// there is deliberately no exponential growth.
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 3 * time.Second
)

// Policy decides whether and after what delay a reconnect attempt is made.
// It is pure: the supervisor owns the attempt counter.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultPolicy returns the fixed-backoff policy used against the
// production endpoint.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultRetryDelay}
}

// Next reports whether another attempt is allowed after `failures`
// consecutive unexpected closes, and the delay to wait before it.
func (p Policy) Next(failures int) (time.Duration, bool) {
	if failures >= p.MaxAttempts {
		return 0, false
	}
	return p.Delay, true
}
