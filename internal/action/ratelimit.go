package action

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/domain"
)

// SessionLimiter applies per-session rate limiting at the executor boundary.
// Ceilings differ by mode, and a session's effective rate is its mode ceiling
// scaled by the trust score, so sessions accumulating violations slow down.
type SessionLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limits   config.LimitsConfig
}

// NewSessionLimiter creates a limiter with the configured mode ceilings.
func NewSessionLimiter(limits config.LimitsConfig) *SessionLimiter {
	return &SessionLimiter{
		limiters: make(map[string]*rate.Limiter),
		limits:   limits,
	}
}

// Allow reports whether the session may execute another action now.
func (l *SessionLimiter) Allow(state *domain.SessionState) bool {
	ml := l.limits.ForMode(string(state.Mode))
	trust := state.Security.TrustScore
	if trust <= 0 {
		trust = 0.1
	}
	limit := rate.Limit(ml.RatePerMinute / 60.0 * trust)

	l.mu.Lock()
	lim, ok := l.limiters[state.ID]
	if !ok {
		lim = rate.NewLimiter(limit, ml.RateBurst)
		l.limiters[state.ID] = lim
	} else if lim.Limit() != limit {
		// trust score changed since the last call
		lim.SetLimit(limit)
	}
	l.mu.Unlock()

	return lim.Allow()
}

// Forget drops the limiter for an ended session.
func (l *SessionLimiter) Forget(sessionID string) {
	l.mu.Lock()
	delete(l.limiters, sessionID)
	l.mu.Unlock()
}
