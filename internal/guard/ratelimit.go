package guard

import (
	"sync"
	"time"
)

// ActionClass keys rate counters per kind of guarded action.
type ActionClass string

const (
	ActionBan   ActionClass = "ban"
	ActionAlert ActionClass = "alert"
)

// Default limits, matching the two tiers the engine uses: a strict one for
// ban bursts and a looser one for throttling repeat alerts.
const (
	BanBurstLimit  = 3
	BanBurstWindow = 30 * time.Second

	AlertLimit  = 5
	AlertWindow = 10 * time.Second
)

// Verdict is the result of one strike.
type Verdict int

const (
	// Normal means the actor is within the limit for the current window.
	Normal Verdict = iota
	// Escalated means the actor exceeded the limit inside the window.
	// Every further strike in the same window stays Escalated.
	Escalated
)

type counter struct {
	count       int
	windowStart time.Time
}

// Limiter tracks per-(actor, action-class) sliding-window-by-reset counters
// in process memory. Counters are lost on restart, which is acceptable:
// abuse windows are seconds to tens of seconds. Safe for concurrent use.
type Limiter struct {
	clock Clock

	mu       sync.Mutex
	counters map[string]*counter
}

// NewLimiter creates a Limiter using the given clock.
func NewLimiter(clock Clock) *Limiter {
	return &Limiter{clock: clock, counters: make(map[string]*counter)}
}

// Strike records one action by the actor and reports whether the actor has
// exceeded limit strikes within the window. If the elapsed time since the
// window start exceeds the window, the counter restarts at 1 and the strike
// is Normal; otherwise the count grows without clamping.
func (l *Limiter) Strike(actorID string, class ActionClass, limit int, window time.Duration) Verdict {
	key := actorID + "/" + string(class)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowStart) >= window {
		l.counters[key] = &counter{count: 1, windowStart: now}
		return Normal
	}

	c.count++
	if c.count > limit {
		return Escalated
	}
	return Normal
}

// Reset clears the counter for one (actor, class) pair.
func (l *Limiter) Reset(actorID string, class ActionClass) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, actorID+"/"+string(class))
}

// Expire drops every counter whose window ended before now. Called
// periodically so an idle process does not accumulate stale keys.
func (l *Limiter) Expire(window time.Duration) int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, c := range l.counters {
		if now.Sub(c.windowStart) >= window {
			delete(l.counters, key)
			removed++
		}
	}
	return removed
}
