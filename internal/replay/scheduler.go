// Package replay converts a finite, ordered touch sequence into a
// deterministic, compressed-time playback schedule and executes it in a
// loop until cancelled. Real inter-slot latency is compressed into a
// denser cadence so a long session replays quickly.
package replay

import (
	"errors"
	"sync"
	"time"

	"github.com/soundfield/touchledger/internal/ledger/domain"
)

const (
	// DefaultSlotGap is the playback time between consecutive slots.
	DefaultSlotGap = 200 * time.Millisecond
	// DefaultIntraSlotGap spaces events that share a slot.
	DefaultIntraSlotGap = 80 * time.Millisecond
	// DefaultLoopPause separates the last event from the loop restart.
	DefaultLoopPause = 2 * time.Second
)

var (
	// ErrEmptySequence indicates there is nothing to replay. It is a
	// terminal signal distinct from "not started": the caller learns the
	// capture was empty instead of observing silence.
	ErrEmptySequence = errors.New("empty replay sequence")
	// ErrAlreadyPlaying indicates Play was called while a run is active.
	ErrAlreadyPlaying = errors.New("replay already playing")
)

// Config tunes the compression constants. Zero values fall back to the
// defaults above.
type Config struct {
	SlotGap      time.Duration
	IntraSlotGap time.Duration
	LoopPause    time.Duration
}

func (c Config) withDefaults() Config {
	if c.SlotGap <= 0 {
		c.SlotGap = DefaultSlotGap
	}
	if c.IntraSlotGap <= 0 {
		c.IntraSlotGap = DefaultIntraSlotGap
	}
	if c.LoopPause <= 0 {
		c.LoopPause = DefaultLoopPause
	}
	return c
}

// TimedEvent pairs an event with its playback offset from pass start.
type TimedEvent struct {
	Event  domain.TouchEvent
	Offset time.Duration
}

// Progress reports playback position within the current pass.
type Progress struct {
	Current int
	Total   int
}

// BuildSchedule computes the deterministic offset list for an ordered
// sequence: (slot - baseSlot) * slotGap + intraSlotIndex * intraSlotGap,
// where intraSlotIndex counts contiguous preceding events in the same
// slot. The same input always yields the same schedule.
func BuildSchedule(events []domain.TouchEvent, cfg Config) []TimedEvent {
	if len(events) == 0 {
		return nil
	}
	cfg = cfg.withDefaults()

	baseSlot := events[0].Slot
	schedule := make([]TimedEvent, 0, len(events))
	intra := 0
	for i, evt := range events {
		if i > 0 && evt.Slot == events[i-1].Slot {
			intra++
		} else {
			intra = 0
		}
		slotDelta := uint64(0)
		if evt.Slot > baseSlot {
			slotDelta = evt.Slot - baseSlot
		}
		offset := time.Duration(slotDelta)*cfg.SlotGap + time.Duration(intra)*cfg.IntraSlotGap
		schedule = append(schedule, TimedEvent{Event: evt, Offset: offset})
	}
	return schedule
}

// Scheduler executes one schedule at a time. All timers for a run belong
// to a single playback goroutine, so cancellation clears the whole group
// atomically: once Stop returns, nothing fires.
type Scheduler struct {
	cfg Config

	mu      sync.Mutex
	playing bool
	stop    chan struct{}
	done    chan struct{}
	current int
	total   int
}

// NewScheduler creates a scheduler with the given compression config.
func NewScheduler(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg.withDefaults()}
}

// Play starts looping playback of events, firing onEvent at each offset.
// An empty sequence returns ErrEmptySequence without entering playback.
// Play returns immediately; the loop runs until Stop.
func (s *Scheduler) Play(events []domain.TouchEvent, onEvent func(domain.TouchEvent)) error {
	if len(events) == 0 {
		return ErrEmptySequence
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		return ErrAlreadyPlaying
	}

	schedule := BuildSchedule(events, s.cfg)
	s.playing = true
	s.current = 0
	s.total = len(schedule)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(schedule, onEvent, s.stop, s.done)
	return nil
}

// Stop cancels playback. It blocks until the playback goroutine has
// drained, then zeroes the progress counters. No event fires after Stop
// returns. Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done

	s.mu.Lock()
	s.playing = false
	s.current = 0
	s.total = 0
	s.mu.Unlock()
}

// Playing reports whether a run is active.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Progress returns the position within the current pass. After Stop it
// reads {0, 0}.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{Current: s.current, Total: s.total}
}

func (s *Scheduler) run(schedule []TimedEvent, onEvent func(domain.TouchEvent), stop, done chan struct{}) {
	defer close(done)

	for {
		passStart := time.Now()
		for _, timed := range schedule {
			if !waitUntil(passStart, timed.Offset, stop) {
				return
			}
			onEvent(timed.Event)
			s.mu.Lock()
			s.current++
			s.mu.Unlock()
		}

		restartAt := schedule[len(schedule)-1].Offset + s.cfg.LoopPause
		if !waitUntil(passStart, restartAt, stop) {
			return
		}
		s.mu.Lock()
		s.current = 0
		s.mu.Unlock()
	}
}

// waitUntil sleeps until offset past start, returning false if stop
// closes first.
func waitUntil(start time.Time, offset time.Duration, stop chan struct{}) bool {
	delay := offset - time.Since(start)
	if delay <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
