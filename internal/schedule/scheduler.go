// Package schedule allocates publish time slots.
//
// A Scheduler owns its own state (the last slot it handed out) so two runs
// never share timestamps through globals; reference times from the sheet and
// the publish target are passed in per call.
package schedule

import (
	"sync"
	"time"
)

// Scheduler hands out strictly increasing publish slots separated by at
// least the configured interval.
type Scheduler struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// New builds a Scheduler. A non-positive interval falls back to one hour.
func New(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{interval: interval}
}

// Interval returns the configured slot spacing.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Next returns the next free slot: one interval after the latest of now, the
// supplied reference times, and the last slot this scheduler handed out.
// References in the past are ignored, so a stale sheet cannot pull the
// schedule backwards.
func (s *Scheduler) Next(now time.Time, refs ...time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	anchor := now
	if s.last.After(anchor) {
		anchor = s.last
	}
	for _, ref := range refs {
		if ref.After(anchor) {
			anchor = ref
		}
	}

	slot := anchor.Add(s.interval)
	s.last = slot
	return slot
}

// Observe records an externally assigned slot (for example one already on
// the sheet) so subsequent Next calls stay ahead of it.
func (s *Scheduler) Observe(slot time.Time) {
	s.mu.Lock()
	if slot.After(s.last) {
		s.last = slot
	}
	s.mu.Unlock()
}

// Plan is a fixed ladder of slots across a target window, used by batch
// planning. Slots are consumed only when a job is accepted; rejected jobs do
// not burn a slot.
type Plan struct {
	anchor   time.Time
	interval time.Duration
	next     int
	capacity int
}

// NewPlan lays out capacity slots starting at anchor, spaced by interval.
func NewPlan(anchor time.Time, interval time.Duration, capacity int) *Plan {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Plan{anchor: anchor, interval: interval, capacity: capacity}
}

// Take consumes and returns the next slot. ok is false once the plan is
// exhausted.
func (p *Plan) Take() (time.Time, bool) {
	if p.next >= p.capacity {
		return time.Time{}, false
	}
	slot := p.anchor.Add(time.Duration(p.next) * p.interval)
	p.next++
	return slot, true
}

// Remaining reports how many slots are still free.
func (p *Plan) Remaining() int {
	return p.capacity - p.next
}
