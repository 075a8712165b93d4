// Package history holds the bounded per-source ring buffers that sit
// between the pull-tick pollers (internal/source) and the update-tick
// aggregator (internal/aggregator). It is the shared-state boundary
// between the two independently-timed loops described in spec.md §5,
// so every access is mutex-guarded.
package history

import (
	"sync"
	"time"

	"github.com/concordium/eur2ccd-service/internal/ratio"
)

// DefaultCapacity is the ring size used when a source does not
// override max_rates_saved.
const DefaultCapacity = 60

// SourceHistory is a fixed-capacity FIFO ring of samples for a single
// source, plus failure-count and last-success bookkeeping.
// Reimplemented from scratch rather than imported: it needs a simpler
// fixed-capacity FIFO, not an arbitrary-insertion generic ring.
type SourceHistory struct {
	mu sync.RWMutex

	name     string
	capacity int
	buf      []ratio.Rate
	next     int // write cursor
	count    int // number of valid entries, caps at capacity

	lastSuccess     time.Time
	consecutiveFail int
	totalFailures   int
}

// New creates a SourceHistory for the named source with the given ring
// capacity. A capacity <= 0 falls back to DefaultCapacity.
func New(name string, capacity int) *SourceHistory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &SourceHistory{
		name:     name,
		capacity: capacity,
		buf:      make([]ratio.Rate, capacity),
	}
}

// Name returns the source identifier this history tracks.
func (h *SourceHistory) Name() string {
	return h.name
}

// Push records a newly observed rate, evicting the oldest entry once
// the ring is full. Zero or negative rates are rejected by the caller
// (internal/source) before reaching here; Push itself only enforces
// non-negativity as a last line of defense.
func (h *SourceHistory) Push(r ratio.Rate, observedAt time.Time) bool {
	if r.Cmp(ratio.Rate{}) < 0 {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.next] = r
	h.next = (h.next + 1) % h.capacity
	if h.count < h.capacity {
		h.count++
	}
	h.lastSuccess = observedAt
	h.consecutiveFail = 0
	return true
}

// RecordFailure marks a failed fetch attempt. It does not touch the
// ring; stale data simply ages until the next successful Push.
func (h *SourceHistory) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFail++
	h.totalFailures++
}

// Latest returns the most recently pushed rate and whether the ring
// holds at least one sample.
func (h *SourceHistory) Latest() (ratio.Rate, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return ratio.Rate{}, false
	}
	idx := (h.next - 1 + h.capacity) % h.capacity
	return h.buf[idx], true
}

// Snapshot returns a copy of all currently held samples, oldest first.
func (h *SourceHistory) Snapshot() []ratio.Rate {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ratio.Rate, h.count)
	if h.count == 0 {
		return out
	}
	start := h.next - h.count
	for i := 0; i < h.count; i++ {
		idx := (start + i + h.capacity) % h.capacity
		out[i] = h.buf[idx]
	}
	return out
}

// Len reports how many samples are currently held (<= capacity).
func (h *SourceHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Capacity reports the configured ring size.
func (h *SourceHistory) Capacity() int {
	return h.capacity
}

// Stale reports whether the source's last successful observation is
// older than maxAge, or no observation has ever been recorded.
func (h *SourceHistory) Stale(maxAge time.Duration, now time.Time) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastSuccess.IsZero() {
		return true
	}
	return now.Sub(h.lastSuccess) > maxAge
}

// ConsecutiveFailures reports the current run of failed fetches since
// the last success.
func (h *SourceHistory) ConsecutiveFailures() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.consecutiveFail
}

// TotalFailures reports the lifetime count of failed fetches.
func (h *SourceHistory) TotalFailures() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalFailures
}

// LastSuccess reports the timestamp of the most recent successful
// Push, or the zero time if none has happened yet.
func (h *SourceHistory) LastSuccess() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSuccess
}
