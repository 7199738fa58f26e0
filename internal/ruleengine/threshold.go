package ruleengine

import (
	"sync"
	"time"
)

// maxThresholdCounters bounds the counter table to protect memory under
// a high-cardinality group field (e.g. grouping by source IP during a
// scan). Once the cap is hit, eviction makes room: first by dropping
// every counter whose window ended more than staleAfter ago, and — if that still
// doesn't free enough room — by clearing the table outright.
const maxThresholdCounters = 100_000

// staleAfter is how long past its window a counter is left in the table
// before it's considered eligible for expiry-driven eviction, giving a
// brief grace period for a counter that just finished its window.
const staleAfter = 3600 * time.Second

type thresholdKey struct {
	ruleID    string
	groupKey  string
}

type thresholdCounter struct {
	count       uint64
	windowStart time.Time
	window      time.Duration
	alerted     bool
}

// ThresholdTracker counts matches per (rule, group value) within a
// fixed window and reports whether a rule's threshold has just been
// crossed. One instance is shared by every threshold-bearing rule.
type ThresholdTracker struct {
	mu       sync.Mutex
	counters map[thresholdKey]*thresholdCounter
}

// NewThresholdTracker returns an empty tracker.
func NewThresholdTracker() *ThresholdTracker {
	return &ThresholdTracker{counters: make(map[thresholdKey]*thresholdCounter)}
}

// Observe records one matching event for (ruleID, groupKey) at now and
// reports whether this observation is the one that crosses cfg's
// threshold for the first time in the current window. Once a counter
// has alerted, it keeps counting but never reports true again until its
// window rolls over.
func (t *ThresholdTracker) Observe(ruleID, groupKey string, count uint64, timeframeSec uint64, now time.Time) bool {
	window := time.Duration(timeframeSec) * time.Second

	t.mu.Lock()
	defer t.mu.Unlock()

	key := thresholdKey{ruleID: ruleID, groupKey: groupKey}
	c, ok := t.counters[key]
	if !ok {
		if len(t.counters) >= maxThresholdCounters {
			t.evictLocked(now)
		}
		c = &thresholdCounter{windowStart: now, window: window}
		t.counters[key] = c
	}

	if now.Sub(c.windowStart) >= window {
		c.windowStart = now
		c.count = 0
		c.alerted = false
	}

	c.count++
	if c.count >= count && !c.alerted {
		c.alerted = true
		return true
	}
	return false
}

// evictLocked frees room in the counter table. Called with mu held.
// Stage one drops counters whose window ended more than staleAfter ago;
// if that alone doesn't free room (a pathological case where every
// counter is still live), stage two clears the table entirely rather
// than growing without bound.
func (t *ThresholdTracker) evictLocked(now time.Time) {
	for k, c := range t.counters {
		if now.Sub(c.windowStart.Add(c.window)) > staleAfter {
			delete(t.counters, k)
		}
	}
	if len(t.counters) >= maxThresholdCounters {
		t.counters = make(map[thresholdKey]*thresholdCounter)
	}
}

// Len reports the number of live counters. Exposed for metrics and
// tests.
func (t *ThresholdTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counters)
}
