// Package clock resolves auction status from its time window and supplies the
// current time to anything that makes time-dependent decisions.
package clock

import (
	"sync"
	"time"

	model "auction-house/internal/models"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// ResolveStatus maps an auction window and a single snapshot of now to a status.
// Both boundaries are inclusive for active.
func ResolveStatus(start, end, now time.Time) model.Status {
	switch {
	case now.Before(start):
		return model.StatusUpcoming
	case now.After(end):
		return model.StatusEnded
	default:
		return model.StatusActive
	}
}

// System is the wall clock in UTC
type System struct{}

// Now returns the current UTC time
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual creates a Manual clock frozen at t
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

// Now returns the frozen time
func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set moves the clock to t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
