package sync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/soundfield/touchledger/internal/ledger/domain"
)

// fakeReader serves a scripted journal. Range errors can be injected per
// chunk to exercise the client's failure paths.
type fakeReader struct {
	mu         sync.Mutex
	head       uint64
	events     []domain.TouchEvent
	session    domain.Session
	exists     bool
	headErr    error
	rangeErr   func(fromSlot, toSlot uint64) error
	rangeCalls [][2]uint64
}

func (f *fakeReader) HeadSlot(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

func (f *fakeReader) GetEventsInRange(ctx context.Context, fromSlot, toSlot uint64) ([]domain.TouchEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeCalls = append(f.rangeCalls, [2]uint64{fromSlot, toSlot})
	if f.rangeErr != nil {
		if err := f.rangeErr(fromSlot, toSlot); err != nil {
			return nil, err
		}
	}
	var out []domain.TouchEvent
	for _, evt := range f.events {
		if evt.Slot > fromSlot && evt.Slot <= toSlot {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (f *fakeReader) GetSession(ctx context.Context, sessionID uint64) (domain.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.exists, nil
}

func (f *fakeReader) setHead(head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = head
}

func (f *fakeReader) addEvent(evt domain.TouchEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

type collector struct {
	mu     sync.Mutex
	events []domain.TouchEvent
}

func (c *collector) onEvent(evt domain.TouchEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *collector) snapshot() []domain.TouchEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.TouchEvent, len(c.events))
	copy(out, c.events)
	return out
}

func touch(sessionID, slot, index, seq uint64) domain.TouchEvent {
	return domain.TouchEvent{SessionID: sessionID, Slot: slot, SlotLocalIndex: index, SessionSequence: seq}
}

func quietConfig() Config {
	return Config{Logf: func(string, ...any) {}}
}

func TestTickPrimesThenDelivers(t *testing.T) {
	reader := &fakeReader{head: 100}
	sink := &collector{}
	client := New(reader, 1, sink.onEvent, quietConfig())

	// First tick anchors the high-water mark without delivering history.
	client.tick(context.Background())
	if got := sink.snapshot(); len(got) != 0 {
		t.Fatalf("priming tick delivered %d events, want 0", len(got))
	}

	reader.addEvent(touch(1, 101, 1, 1))
	reader.addEvent(touch(2, 101, 1, 1)) // other session, filtered out
	reader.addEvent(touch(1, 102, 1, 2))
	reader.setHead(102)

	client.tick(context.Background())
	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("delivered %d events, want 2", len(got))
	}
	if got[0].Slot != 101 || got[1].Slot != 102 {
		t.Fatalf("events delivered out of order: %+v", got)
	}

	// Head unchanged: nothing new to deliver.
	client.tick(context.Background())
	if got := sink.snapshot(); len(got) != 2 {
		t.Fatalf("idle tick delivered extra events: %d", len(got))
	}
}

func TestTickRetriesFailedRangeWithoutLossOrDuplication(t *testing.T) {
	reader := &fakeReader{head: 10}
	sink := &collector{}
	client := New(reader, 1, sink.onEvent, quietConfig())
	client.tick(context.Background()) // prime at 10

	reader.addEvent(touch(1, 11, 1, 1))
	reader.addEvent(touch(1, 12, 1, 2))
	reader.setHead(12)

	broken := errors.New("ledger unavailable")
	reader.rangeErr = func(uint64, uint64) error { return broken }

	client.tick(context.Background())
	if got := sink.snapshot(); len(got) != 0 {
		t.Fatalf("failed tick delivered %d events, want 0", len(got))
	}

	// Recovery: the same range is re-fetched; each event arrives once.
	reader.rangeErr = nil
	client.tick(context.Background())
	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("delivered %d events after recovery, want 2", len(got))
	}
	client.tick(context.Background())
	if got := sink.snapshot(); len(got) != 2 {
		t.Fatalf("events were double-delivered: %d", len(got))
	}
}

func TestTickToleratesHeadError(t *testing.T) {
	reader := &fakeReader{headErr: errors.New("timeout")}
	sink := &collector{}
	client := New(reader, 1, sink.onEvent, quietConfig())

	client.tick(context.Background())
	if client.primed {
		t.Fatal("a failed head poll must not prime the watermark")
	}
}

func TestTickChunksWideRanges(t *testing.T) {
	reader := &fakeReader{head: 0}
	sink := &collector{}
	cfg := quietConfig()
	cfg.ChunkSize = 10
	client := New(reader, 1, sink.onEvent, cfg)
	client.tick(context.Background()) // prime at 0

	reader.addEvent(touch(1, 25, 1, 1))
	reader.setHead(25)
	client.tick(context.Background())

	if len(reader.rangeCalls) != 3 {
		t.Fatalf("range calls = %d, want 3 chunks of 10", len(reader.rangeCalls))
	}
	want := [][2]uint64{{0, 10}, {10, 20}, {20, 25}}
	if !reflect.DeepEqual(reader.rangeCalls, want) {
		t.Fatalf("chunk bounds = %v, want %v", reader.rangeCalls, want)
	}
	if got := sink.snapshot(); len(got) != 1 {
		t.Fatalf("delivered %d events, want 1", len(got))
	}
}

func TestStartIsIdempotentAndStopHaltsCallbacks(t *testing.T) {
	reader := &fakeReader{head: 0}
	sink := &collector{}
	cfg := quietConfig()
	cfg.TickInterval = 5 * time.Millisecond
	client := New(reader, 1, sink.onEvent, cfg)

	client.Start(context.Background())
	client.Start(context.Background()) // no second ticker
	if !client.Running() {
		t.Fatal("client should be running after start")
	}

	client.Stop()
	if client.Running() {
		t.Fatal("client should be stopped after stop")
	}
	client.Stop() // no-op

	reader.addEvent(touch(1, 1, 1, 1))
	reader.setHead(1)
	before := len(sink.snapshot())
	time.Sleep(25 * time.Millisecond)
	if after := len(sink.snapshot()); after != before {
		t.Fatalf("callback fired after stop: %d -> %d", before, after)
	}
}

func TestStartStopRestart(t *testing.T) {
	reader := &fakeReader{head: 0}
	sink := &collector{}
	cfg := quietConfig()
	cfg.TickInterval = time.Millisecond
	client := New(reader, 1, sink.onEvent, cfg)

	client.Start(context.Background())
	client.Stop()
	client.Start(context.Background())
	defer client.Stop()
	if !client.Running() {
		t.Fatal("client should run again after restart")
	}
}

func TestFetchAllSortsAndDedups(t *testing.T) {
	reader := &fakeReader{
		head:    100,
		session: domain.Session{ID: 1, StartSlot: 10},
		exists:  true,
	}
	// Arrival order deliberately scrambled relative to (slot, index).
	reader.events = []domain.TouchEvent{
		touch(1, 30, 2, 4),
		touch(1, 20, 1, 1),
		touch(2, 25, 1, 1), // other session
		touch(1, 30, 1, 3),
		touch(1, 20, 2, 2),
	}

	client := New(reader, 1, nil, quietConfig())
	events, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}

	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	for i := 1; i < len(events); i++ {
		if domain.CompareEvents(events[i-1], events[i]) > 0 {
			t.Fatalf("events out of order at %d: %+v then %+v", i, events[i-1], events[i])
		}
	}
	for _, evt := range events {
		if evt.SessionID != 1 {
			t.Fatalf("foreign session event leaked: %+v", evt)
		}
	}

	// Idempotent: a second run over the same journal is identical.
	again, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("second fetch all: %v", err)
	}
	if !reflect.DeepEqual(events, again) {
		t.Fatalf("fetch all is not idempotent:\n%v\n%v", events, again)
	}
}

func TestFetchAllDedupsOverlappingChunks(t *testing.T) {
	// An event sitting exactly on a chunk boundary reachable from two
	// fetches must appear once.
	reader := &fakeReader{
		head:    20,
		session: domain.Session{ID: 1, StartSlot: 1},
		exists:  true,
	}
	reader.events = []domain.TouchEvent{
		touch(1, 5, 1, 1),
		touch(1, 5, 1, 1), // duplicate arrival
		touch(1, 7, 1, 2),
	}

	client := New(reader, 1, nil, quietConfig())
	events, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 after dedup", len(events))
	}
}

func TestFetchAllStartsFromSessionStartSlot(t *testing.T) {
	reader := &fakeReader{
		head:    60,
		session: domain.Session{ID: 1, StartSlot: 40},
		exists:  true,
	}
	cfg := quietConfig()
	cfg.ChunkSize = 100
	client := New(reader, 1, nil, cfg)

	if _, err := client.FetchAll(context.Background()); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(reader.rangeCalls) != 1 {
		t.Fatalf("range calls = %d, want 1", len(reader.rangeCalls))
	}
	if reader.rangeCalls[0] != [2]uint64{39, 60} {
		t.Fatalf("range = %v, want [39 60]", reader.rangeCalls[0])
	}
}

func TestFetchAllFallsBackToRecentWindow(t *testing.T) {
	reader := &fakeReader{head: 80000, exists: false}
	cfg := quietConfig()
	cfg.ChunkSize = 100000
	client := New(reader, 1, nil, cfg)

	if _, err := client.FetchAll(context.Background()); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if reader.rangeCalls[0][0] != 80000-DefaultRecentWindow {
		t.Fatalf("backfill start = %d, want %d", reader.rangeCalls[0][0], 80000-DefaultRecentWindow)
	}
}

func TestFetchAllSkipsFailedChunks(t *testing.T) {
	reader := &fakeReader{
		head:    30,
		session: domain.Session{ID: 1, StartSlot: 1},
		exists:  true,
	}
	reader.events = []domain.TouchEvent{
		touch(1, 5, 1, 1),
		touch(1, 15, 1, 2),
		touch(1, 25, 1, 3),
	}
	cfg := quietConfig()
	cfg.ChunkSize = 10
	client := New(reader, 1, nil, cfg)

	reader.rangeErr = func(fromSlot, toSlot uint64) error {
		if fromSlot == 10 {
			return fmt.Errorf("chunk unavailable")
		}
		return nil
	}

	events, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all must not fail on a skipped chunk: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (middle chunk gap)", len(events))
	}
	if events[0].Slot != 5 || events[1].Slot != 25 {
		t.Fatalf("surviving events = %+v", events)
	}
}

func TestFetchAllHaltsRunningTail(t *testing.T) {
	reader := &fakeReader{head: 10, session: domain.Session{ID: 1, StartSlot: 1}, exists: true}
	sink := &collector{}
	cfg := quietConfig()
	cfg.TickInterval = time.Millisecond
	client := New(reader, 1, sink.onEvent, cfg)

	client.Start(context.Background())
	if _, err := client.FetchAll(context.Background()); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if client.Running() {
		t.Fatal("fetch all must halt the live tail before backfilling")
	}
}
