// Package backoff tracks consecutive delivery failures and turns them into
// flush intervals and load-shedding decisions.
package backoff

import (
	"time"
)

const (
	DefaultMinimumBackoff     = 5 * time.Second
	DefaultMaximumBackoff     = 10 * time.Minute
	DefaultDropBatchThreshold = 8
	DefaultDropQueueThreshold = 10
)

// Settings configures a Tracker. Zero values fall back to the defaults above;
// Period is mandatory.
type Settings struct {
	Period             time.Duration
	MinimumBackoff     time.Duration
	MaximumBackoff     time.Duration
	DropBatchThreshold int
	DropQueueThreshold int
}

// Tracker is a failure counter with an exponential interval curve. It is not
// safe for concurrent use: only the flush loop that owns it may touch it.
type Tracker struct {
	settings             Settings
	failuresSinceSuccess int
}

func NewTracker(settings Settings) *Tracker {
	if settings.MinimumBackoff <= 0 {
		settings.MinimumBackoff = DefaultMinimumBackoff
	}
	if settings.MaximumBackoff <= 0 {
		settings.MaximumBackoff = DefaultMaximumBackoff
	}
	if settings.DropBatchThreshold <= 0 {
		settings.DropBatchThreshold = DefaultDropBatchThreshold
	}
	if settings.DropQueueThreshold <= 0 {
		settings.DropQueueThreshold = DefaultDropQueueThreshold
	}
	return &Tracker{settings: settings}
}

func (t *Tracker) MarkSuccess() {
	t.failuresSinceSuccess = 0
}

func (t *Tracker) MarkFailure() {
	t.failuresSinceSuccess++
}

func (t *Tracker) FailureCount() int {
	return t.failuresSinceSuccess
}

// NextInterval returns the wait before the next flush attempt. The first
// failure gets one free retry at the normal cadence; from the second failure
// on the interval doubles per failure, starting from
// max(period, minimumBackoff), capped at maximumBackoff and never below the
// steady-state period.
func (t *Tracker) NextInterval() time.Duration {
	if t.failuresSinceSuccess <= 1 {
		return t.settings.Period
	}

	interval := t.settings.Period
	if t.settings.MinimumBackoff > interval {
		interval = t.settings.MinimumBackoff
	}
	for i := 1; i < t.failuresSinceSuccess && interval < t.settings.MaximumBackoff; i++ {
		interval *= 2
	}
	if interval > t.settings.MaximumBackoff {
		interval = t.settings.MaximumBackoff
	}
	if interval < t.settings.Period {
		interval = t.settings.Period
	}
	return interval
}

// ShouldDropBatch reports whether the batch being retried has failed often
// enough that it is likely the batch itself, not the receiver, is the problem.
func (t *Tracker) ShouldDropBatch() bool {
	return t.failuresSinceSuccess >= t.settings.DropBatchThreshold
}

// ShouldDropQueue reports whether the receiver has been unavailable long
// enough that the accumulated backlog should be discarded to bound memory.
func (t *Tracker) ShouldDropQueue() bool {
	return t.failuresSinceSuccess >= t.settings.DropQueueThreshold
}
