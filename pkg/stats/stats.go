// Package stats tracks process-wide service counters: per-operation call
// counts, total error count, and uptime. A single Registry is shared by every
// in-flight request, so all mutation is internally synchronized.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Operation names used as call-counter keys. Handlers record exactly one of
// these per request.
const (
	OpHealth         = "health"
	OpStats          = "stats"
	OpAddImage       = "add_image"
	OpBatchAddImages = "batch_add_images"
	OpGetImage       = "get_image"
	OpDeleteImage    = "delete_image"
	OpSearch         = "search"
)

// Registry holds the counters. Construct with NewRegistry and pass by handle;
// never a package-level singleton, so tests get a fresh instance each.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]int64

	errorCount atomic.Int64
	startTime  time.Time

	// now is swappable for tests
	now func() time.Time
}

// Snapshot is a point-in-time copy of the registry, safe to serialize while
// counters keep moving.
type Snapshot struct {
	APICalls      map[string]int64 `json:"api_calls"`
	ErrorCount    int64            `json:"error_count"`
	StartTime     time.Time        `json:"start_time"`
	UptimeSeconds float64          `json:"uptime_seconds"`
}

// NewRegistry creates a registry with all known operation counters at zero
// and the start time pinned to now.
func NewRegistry() *Registry {
	r := &Registry{
		calls: make(map[string]int64),
		now:   time.Now,
	}
	r.startTime = r.now()

	for _, op := range []string{
		OpHealth, OpStats, OpAddImage, OpBatchAddImages,
		OpGetImage, OpDeleteImage, OpSearch,
	} {
		r.calls[op] = 0
	}

	return r
}

// RecordCall increments the counter for the named operation. Unknown names
// get a counter on first use.
func (r *Registry) RecordCall(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[operation]++
}

// RecordError increments the total error counter.
func (r *Registry) RecordError() {
	r.errorCount.Add(1)
}

// Uptime returns the elapsed time since the registry was created.
func (r *Registry) Uptime() time.Duration {
	return r.now().Sub(r.startTime)
}

// Snapshot returns a copy of all counters.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	calls := make(map[string]int64, len(r.calls))
	for op, n := range r.calls {
		calls[op] = n
	}
	r.mu.RUnlock()

	return Snapshot{
		APICalls:      calls,
		ErrorCount:    r.errorCount.Load(),
		StartTime:     r.startTime,
		UptimeSeconds: r.Uptime().Seconds(),
	}
}
