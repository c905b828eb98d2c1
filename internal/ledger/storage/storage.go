// Package storage defines the persistence interfaces for the ledger.
// Implementations must serialize mutating operations on a session; the
// domain rules they invoke are pure and carry no locking of their own.
package storage

import (
	"context"
	"errors"

	"github.com/soundfield/touchledger/internal/ledger/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// TouchRequest carries one validated touch into the store. Coordinates
// are raw; the store clamps them under its transaction via the domain
// rules so the stored event and the counters move together.
type TouchRequest struct {
	SessionID uint64
	Actor     string
	X         int32
	Y         int32
	Slot      uint64
}

// SessionStore persists session aggregates and their touch stream.
type SessionStore interface {
	// CreateSession allocates the next session id, inserts the aggregate,
	// and journals a session_started entry, all in one transaction.
	CreateSession(ctx context.Context, creator string, startSlot uint64) (domain.Session, error)

	// GetSession returns the aggregate or ErrNotFound.
	GetSession(ctx context.Context, id uint64) (domain.Session, error)

	// AppendTouch validates the touch against the current aggregate state,
	// advances the per-session and per-(session, slot) counters, records
	// participation, and journals a touch_recorded entry, all in one
	// transaction. Domain validation errors pass through unwrapped.
	AppendTouch(ctx context.Context, req TouchRequest) (domain.TouchEvent, error)

	// EndSession closes the aggregate at endSlot and journals a
	// session_ended entry with the final counters. The caller has already
	// authorized the operation.
	EndSession(ctx context.Context, id uint64, endSlot uint64) (domain.Session, error)
}

// ParticipationStore answers set-membership questions about actors.
type ParticipationStore interface {
	// HasParticipated reports whether actor has ever touched the session.
	HasParticipated(ctx context.Context, sessionID uint64, actor string) (bool, error)
}

// JournalStore reads the append-only entry log.
type JournalStore interface {
	// ListEntriesInRange returns entries with fromSlot < slot <= toSlot in
	// append order.
	ListEntriesInRange(ctx context.Context, fromSlot, toSlot uint64) ([]domain.Entry, error)

	// ListEntriesBySession returns entries for one session with seq >
	// afterSeq in append order, at most limit rows.
	ListEntriesBySession(ctx context.Context, sessionID uint64, afterSeq uint64, limit int) ([]domain.Entry, error)
}

// Store is the full persistence surface the ledger service needs.
type Store interface {
	SessionStore
	ParticipationStore
	JournalStore
}
