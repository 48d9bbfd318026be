// Package debounce delays remote lookups until typing pauses and guarantees
// that only the last scheduled lookup fires.
package debounce

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pitabwire/callcenter/internal/observability"
)

// Config configures a Debouncer.
type Config struct {
	// QuietPeriod is how long input must stay unchanged before the lookup
	// fires.
	QuietPeriod time.Duration
	// MinLength is the minimum trimmed query length, in runes. Shorter
	// queries cancel pending work and never schedule.
	MinLength int
	// Source labels metrics (municipios, username, search).
	Source string
}

// Option customizes a Debouncer.
type Option func(*Debouncer)

// WithScheduler replaces the runtime timer, typically with a
// ManualScheduler in tests.
func WithScheduler(s Scheduler) Option {
	return func(d *Debouncer) { d.sched = s }
}

// WithMetrics records fired and stale callbacks.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Debouncer) { d.metrics = m }
}

// Debouncer schedules fn(query) once the input has been quiet for the
// configured period. Every OnInput supersedes the previous one. It is safe
// for concurrent use; fn runs on the scheduler's goroutine.
type Debouncer struct {
	cfg     Config
	fn      func(query string)
	sched   Scheduler
	metrics *observability.Metrics

	mu      sync.Mutex
	gen     uint64
	timer   Timer
	latest  string
	pending bool
	closed  bool
}

// New creates a Debouncer that calls fn with the last query.
func New(cfg Config, fn func(query string), opts ...Option) *Debouncer {
	d := &Debouncer{cfg: cfg, fn: fn, sched: RealScheduler{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnInput records query as the latest input and (re)schedules the lookup.
// It reports whether a lookup is now scheduled.
func (d *Debouncer) OnInput(query string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}

	d.latest = query
	d.stopLocked()

	trimmed := strings.TrimSpace(query)
	if utf8.RuneCountInString(trimmed) < d.cfg.MinLength {
		return false
	}

	gen := d.gen
	d.pending = true
	d.timer = d.sched.AfterFunc(d.cfg.QuietPeriod, func() { d.fire(gen, query) })
	return true
}

// Latest returns the most recent query passed to OnInput.
func (d *Debouncer) Latest() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest
}

// IsCurrent reports whether a response for query is still wanted: query is
// the latest input and the debouncer is open.
func (d *Debouncer) IsCurrent(query string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed && query == d.latest
}

// Pending reports whether a lookup is scheduled and has not fired yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Cancel drops any scheduled lookup and forgets the latest query, so
// responses that are already in flight become stale.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.latest = ""
}

// Close cancels pending work and rejects further input.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.latest = ""
	d.closed = true
}

func (d *Debouncer) fire(gen uint64, query string) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		d.metrics.RecordDebounceStale(d.cfg.Source)
		return
	}
	d.gen++
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.metrics.RecordDebounceFired(d.cfg.Source)
	d.fn(query)
}

// stopLocked invalidates the scheduled callback. A timer that already
// started running sees a newer generation and does nothing.
func (d *Debouncer) stopLocked() {
	d.gen++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
