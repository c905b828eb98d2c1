// Package sync reconstructs one ordered, deduplicated touch stream for a
// session from the ledger journal. A client runs in one of two modes:
// a live tail following the head on a fixed tick, or a historical
// backfill walking forward in bounded chunks. Both modes share the same
// session filter and the same (slot, slotLocalIndex) comparator; neither
// ever blocks the ledger's write path.
package sync

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/soundfield/touchledger/internal/ledger/domain"
)

const (
	// DefaultTickInterval is the live-tail polling cadence.
	DefaultTickInterval = time.Second
	// DefaultChunkSize is the slot width of one backfill request, matching
	// the ledger's range cap.
	DefaultChunkSize uint64 = 5000
	// DefaultRecentWindow bounds the backfill start when the session's
	// start slot cannot be resolved.
	DefaultRecentWindow uint64 = 50000
)

// Reader is the ledger read surface the client consumes. The ledger
// service satisfies it directly; so does the HTTP API client.
type Reader interface {
	HeadSlot(ctx context.Context) (uint64, error)
	GetEventsInRange(ctx context.Context, fromSlot, toSlot uint64) ([]domain.TouchEvent, error)
	GetSession(ctx context.Context, sessionID uint64) (domain.Session, bool, error)
}

// Config tunes a client. Zero values fall back to the defaults above.
type Config struct {
	TickInterval time.Duration
	ChunkSize    uint64
	RecentWindow uint64
	// Logf receives transient fetch failures. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.RecentWindow == 0 {
		c.RecentWindow = DefaultRecentWindow
	}
	if c.Logf == nil {
		c.Logf = log.Printf
	}
	return c
}

// Client follows one session's touch stream. Each client owns independent
// state and timers; instances for different sessions never interact.
type Client struct {
	reader    Reader
	sessionID uint64
	onEvent   func(domain.TouchEvent)
	cfg       Config
	tracer    trace.Tracer

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	// lastSeen is the tail's high-water mark. It only advances after a
	// whole tick's fetches succeed, so a failed tick re-fetches the same
	// range instead of skipping it.
	lastSeen uint64
	primed   bool
}

// New creates a client that forwards sessionID's events to onEvent.
func New(reader Reader, sessionID uint64, onEvent func(domain.TouchEvent), cfg Config) *Client {
	return &Client{
		reader:    reader,
		sessionID: sessionID,
		onEvent:   onEvent,
		cfg:       cfg.withDefaults(),
		tracer:    otel.Tracer("touchledger/sync"),
	}
}

// Start begins the live tail. Starting an already-running client is a
// no-op: a client never owns two tickers.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.tail(ctx, c.stop, c.done)
}

// Stop halts the live tail. It blocks until the tail goroutine has
// drained, so no callback fires after Stop returns. Stopping a stopped
// client is a no-op.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	<-done

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// Running reports whether the live tail is active.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Client) tail(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick advances the tail by one poll. Fetch errors leave lastSeen in
// place; the same range is retried on the next tick.
func (c *Client) tick(ctx context.Context) {
	head, err := c.reader.HeadSlot(ctx)
	if err != nil {
		c.cfg.Logf("sync: head position: %v", err)
		return
	}

	if !c.primed {
		// First successful poll anchors the high-water mark; the tail
		// follows new events only.
		c.lastSeen = head
		c.primed = true
		return
	}
	if head <= c.lastSeen {
		return
	}

	events, err := c.fetchRange(ctx, c.lastSeen, head)
	if err != nil {
		c.cfg.Logf("sync: fetch (%d, %d]: %v", c.lastSeen, head, err)
		return
	}

	// Deliver only after every chunk succeeded so a mid-range failure
	// cannot double-deliver on retry.
	for _, evt := range events {
		c.onEvent(evt)
	}
	c.lastSeen = head
}

// fetchRange fetches (fromSlot, toSlot] in chunks no wider than the
// ledger's cap, filtered to the client's session, in arrival order.
func (c *Client) fetchRange(ctx context.Context, fromSlot, toSlot uint64) ([]domain.TouchEvent, error) {
	ctx, span := c.tracer.Start(ctx, "sync.fetch_range",
		trace.WithAttributes(
			attribute.Int64("range.from", int64(fromSlot)),
			attribute.Int64("range.to", int64(toSlot)),
		))
	defer span.End()

	var events []domain.TouchEvent
	for from := fromSlot; from < toSlot; {
		to := from + c.cfg.ChunkSize
		if to > toSlot {
			to = toSlot
		}
		chunk, err := c.reader.GetEventsInRange(ctx, from, to)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, evt := range chunk {
			if evt.SessionID == c.sessionID {
				events = append(events, evt)
			}
		}
		from = to
	}
	return events, nil
}

// FetchAll reconstructs the session's full history: it halts a running
// tail, resolves a starting position, walks forward to the head in
// chunks, and returns one sorted, duplicate-free sequence. Chunk fetch
// failures are logged and skipped; a missing chunk produces a gap, not a
// retry loop.
func (c *Client) FetchAll(ctx context.Context) ([]domain.TouchEvent, error) {
	c.Stop()

	ctx, span := c.tracer.Start(ctx, "sync.fetch_all",
		trace.WithAttributes(attribute.Int64("session.id", int64(c.sessionID))))
	defer span.End()

	head, err := c.reader.HeadSlot(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	from := c.resolveStart(ctx, head)

	seen := make(map[domain.EventKey]struct{})
	var events []domain.TouchEvent
	for from < head {
		to := from + c.cfg.ChunkSize
		if to > head {
			to = head
		}
		chunk, err := c.reader.GetEventsInRange(ctx, from, to)
		if err != nil {
			c.cfg.Logf("sync: backfill chunk (%d, %d]: %v", from, to, err)
			from = to
			continue
		}
		for _, evt := range chunk {
			if evt.SessionID != c.sessionID {
				continue
			}
			key := evt.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			events = append(events, evt)
		}
		from = to
	}

	sort.Slice(events, func(i, j int) bool {
		return domain.CompareEvents(events[i], events[j]) < 0
	})
	return events, nil
}

// resolveStart prefers the session's recorded start slot and falls back
// to a bounded recent window below the head.
func (c *Client) resolveStart(ctx context.Context, head uint64) uint64 {
	session, exists, err := c.reader.GetSession(ctx, c.sessionID)
	if err != nil {
		c.cfg.Logf("sync: resolve session %d: %v", c.sessionID, err)
	} else if exists && session.StartSlot > 0 {
		// The range walk is exclusive on its lower bound; back up one
		// slot so events in the start slot itself are included.
		return session.StartSlot - 1
	}
	if head > c.cfg.RecentWindow {
		return head - c.cfg.RecentWindow
	}
	return 0
}
