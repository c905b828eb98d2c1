// Package slot provides the ledger's ordering unit. Slots are assigned by
// an external sequencing authority and treated as a trusted monotonic
// input; the sources here only surface the current position.
package slot

import (
	"sync/atomic"
	"time"
)

// DefaultInterval matches the external sequencer's approximate cadence.
const DefaultInterval = time.Second

// Source reports the current slot.
type Source interface {
	Current() uint64
}

// IntervalSource derives the current slot from wall-clock time elapsed
// since a genesis instant, one slot per interval. Slot numbering starts
// at 1 so that slot 0 can mean "never".
type IntervalSource struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

// NewIntervalSource creates a source anchored at genesis. A zero interval
// falls back to DefaultInterval; a nil now falls back to time.Now.
func NewIntervalSource(genesis time.Time, interval time.Duration, now func() time.Time) *IntervalSource {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	return &IntervalSource{genesis: genesis, interval: interval, now: now}
}

// Current returns the slot containing the present instant.
func (s *IntervalSource) Current() uint64 {
	elapsed := s.now().Sub(s.genesis)
	if elapsed < 0 {
		return 1
	}
	return uint64(elapsed/s.interval) + 1
}

// Manual is a hand-advanced source for tests and deterministic tooling.
type Manual struct {
	slot atomic.Uint64
}

// NewManual creates a manual source positioned at start.
func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.slot.Store(start)
	return m
}

// Current returns the manually set slot.
func (m *Manual) Current() uint64 {
	return m.slot.Load()
}

// Advance moves the source forward by n slots and returns the new value.
func (m *Manual) Advance(n uint64) uint64 {
	return m.slot.Add(n)
}

// Set positions the source at slot.
func (m *Manual) Set(slot uint64) {
	m.slot.Store(slot)
}
