// Package ratelimit provides per-key admission control over a trailing time
// window. A key's recent request timestamps are kept and pruned on each
// check, so the limit rolls continuously rather than resetting at calendar
// boundaries.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweep evicts keys whose
// windows hold no recent timestamps.
const DefaultSweepInterval = 5 * time.Minute

// periods maps the spec unit to its window duration.
var periods = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
}

// Limiter bounds request rate per client key. Safe for concurrent use.
type Limiter struct {
	limit  int
	period time.Duration
	spec   string

	mu      sync.Mutex
	windows map[string][]time.Time

	sweepInterval time.Duration
	stopOnce      sync.Once
	stop          chan struct{}

	// now is swappable for tests
	now func() time.Time
}

// New parses a spec of the form "<count>/<unit>" (unit: second, minute or
// hour) and returns a running limiter. The background sweep goroutine starts
// immediately; call Stop to terminate it.
func New(spec string) (*Limiter, error) {
	l, err := newLimiter(spec, DefaultSweepInterval)
	if err != nil {
		return nil, err
	}

	go l.sweepLoop()

	return l, nil
}

// newLimiter parses the spec without starting the sweep goroutine. Tests use
// it to exercise sweeps deterministically.
func newLimiter(spec string, sweepInterval time.Duration) (*Limiter, error) {
	countStr, unit, ok := strings.Cut(spec, "/")
	if !ok {
		return nil, fmt.Errorf("invalid rate limit %q: expected \"<count>/<unit>\"", spec)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: parsing count: %v", spec, err)
	}
	if count <= 0 {
		return nil, fmt.Errorf("invalid rate limit %q: count must be positive", spec)
	}

	period, ok := periods[unit]
	if !ok {
		return nil, fmt.Errorf("invalid rate limit %q: unsupported unit %q (want second, minute or hour)", spec, unit)
	}

	return &Limiter{
		limit:         count,
		period:        period,
		spec:          spec,
		windows:       make(map[string][]time.Time),
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
		now:           time.Now,
	}, nil
}

// IsLimited reports whether the key is over its limit. When admitted, the
// call consumes one slot for the remainder of its window; when limited, the
// attempt is not recorded, so rejected traffic never extends the window.
func (l *Limiter) IsLimited(key string) bool {
	now := l.now()
	cutoff := now.Add(-l.period)

	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.windows[key]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.windows[key] = kept
		return true
	}

	l.windows[key] = append(kept, now)

	return false
}

// Limit returns the configured spec string, e.g. "100/minute". Used in
// rejection messages.
func (l *Limiter) Limit() string {
	return l.spec
}

// Stop terminates the background sweep. Idempotent.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

// sweepLoop periodically deletes keys whose windows hold no timestamp within
// the trailing period, bounding key cardinality for long-running processes.
func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweepStale()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweepStale() {
	cutoff := l.now().Add(-l.period)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, window := range l.windows {
		stale := true
		for _, t := range window {
			if t.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(l.windows, key)
		}
	}
}

// keyCount returns the number of tracked keys. Test hook.
func (l *Limiter) keyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
