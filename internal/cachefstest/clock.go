// Package cachefstest provides small deterministic helpers shared by
// pkg/cachefs's tests.
package cachefstest

import (
	"os"
	"time"
)

// Clock hands out monotonically increasing timestamps, used by eviction
// tests to control entry access-time ordering deterministically instead
// of relying on wall-clock granularity. Adapted from the teacher's own
// internal/testutil.Clock (used there to drive its spec-model tests).
type Clock struct {
	current time.Time
	step    time.Duration
}

// NewClock returns a clock initialized to a fixed UTC start time.
func NewClock() *Clock {
	return &Clock{
		current: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		step:    time.Second,
	}
}

// Next advances and returns the clock's current time.
func (c *Clock) Next() time.Time {
	c.current = c.current.Add(c.step)

	return c.current
}

// Touch sets both the access and modification time of path to t, so
// eviction-order tests don't depend on the real clock or filesystem
// atime-update granularity (which many Linux setups disable via
// relatime/noatime mounts).
func Touch(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}
