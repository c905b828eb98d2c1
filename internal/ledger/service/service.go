// Package service exposes the ledger's read/write surface: session
// lifecycle mutations and the journal read queries the sync client
// consumes. Validation runs through the pure domain rules; persistence
// and sequencing live in the storage layer.
package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/soundfield/touchledger/internal/ledger/domain"
	"github.com/soundfield/touchledger/internal/ledger/slot"
	"github.com/soundfield/touchledger/internal/ledger/storage"
	apperrors "github.com/soundfield/touchledger/internal/platform/errors"
)

// MaxRangeSlots caps the width of a single journal range query. Callers
// walking longer spans chunk accordingly.
const MaxRangeSlots uint64 = 5000

var (
	// ErrRangeTooWide indicates a journal query wider than MaxRangeSlots.
	ErrRangeTooWide = apperrors.New(apperrors.CodeRangeTooWide, "requested slot range is too wide")
	// ErrRangeInverted indicates fromSlot beyond toSlot.
	ErrRangeInverted = apperrors.New(apperrors.CodeRangeInverted, "requested slot range is inverted")
)

// Ledger coordinates session mutations and journal reads. Mutating
// operations are serialized by the store; the service itself holds no
// mutable state beyond configuration.
type Ledger struct {
	store  storage.Store
	slots  slot.Source
	admin  string
	tracer trace.Tracer
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithAdmin designates an identity that may end any session.
func WithAdmin(admin string) Option {
	return func(l *Ledger) {
		l.admin = admin
	}
}

// New creates a ledger service over the given store and slot source.
func New(store storage.Store, slots slot.Source, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		slots:  slots,
		tracer: otel.Tracer("touchledger/ledger"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// CreateSession allocates the next session id at the current slot.
// It always succeeds for a well-formed initiator.
func (l *Ledger) CreateSession(ctx context.Context, initiator string) (uint64, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.create_session")
	defer span.End()

	initiator, ok := domain.NormalizeIdentity(initiator)
	if !ok {
		return 0, domain.ErrEmptyInitiator
	}

	session, err := l.store.CreateSession(ctx, initiator, l.slots.Current())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("session.id", int64(session.ID)))
	return session.ID, nil
}

// Touch records one action against an active session at the current slot.
// Coordinates outside [CoordMin, CoordMax] are clamped, not rejected.
func (l *Ledger) Touch(ctx context.Context, sessionID uint64, actor string, x, y int32) (domain.TouchEvent, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.touch",
		trace.WithAttributes(attribute.Int64("session.id", int64(sessionID))))
	defer span.End()

	actor, ok := domain.NormalizeIdentity(actor)
	if !ok {
		return domain.TouchEvent{}, domain.ErrEmptyActor
	}

	evt, err := l.store.AppendTouch(ctx, storage.TouchRequest{
		SessionID: sessionID,
		Actor:     actor,
		X:         x,
		Y:         y,
		Slot:      l.slots.Current(),
	})
	if err != nil {
		span.RecordError(err)
		return domain.TouchEvent{}, err
	}
	return evt, nil
}

// EndSession terminally closes a session. Only the creator or the
// configured admin may end it; ending twice fails with SessionInactive.
func (l *Ledger) EndSession(ctx context.Context, sessionID uint64, caller string) error {
	ctx, span := l.tracer.Start(ctx, "ledger.end_session",
		trace.WithAttributes(attribute.Int64("session.id", int64(sessionID))))
	defer span.End()

	caller, ok := domain.NormalizeIdentity(caller)
	if !ok {
		return domain.ErrNotAuthorized
	}

	session, exists, err := l.GetSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := domain.ValidateEnd(session, exists, caller, l.admin); err != nil {
		return err
	}

	if _, err := l.store.EndSession(ctx, sessionID, l.slots.Current()); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetSession returns the session snapshot and whether it exists. A missing
// session is reported through the boolean, never through the error.
func (l *Ledger) GetSession(ctx context.Context, sessionID uint64) (domain.Session, bool, error) {
	session, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	return session, true, nil
}

// GetEventsInRange returns the touch events journaled with
// fromSlot < slot <= toSlot in append order. The range width is capped at
// MaxRangeSlots.
func (l *Ledger) GetEventsInRange(ctx context.Context, fromSlot, toSlot uint64) ([]domain.TouchEvent, error) {
	if toSlot < fromSlot {
		return nil, ErrRangeInverted
	}
	if toSlot-fromSlot > MaxRangeSlots {
		return nil, ErrRangeTooWide
	}

	ctx, span := l.tracer.Start(ctx, "ledger.events_in_range",
		trace.WithAttributes(
			attribute.Int64("range.from", int64(fromSlot)),
			attribute.Int64("range.to", int64(toSlot)),
		))
	defer span.End()

	entries, err := l.store.ListEntriesInRange(ctx, fromSlot, toSlot)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return domain.TouchEvents(entries), nil
}

// HeadSlot returns the ledger's current head position.
func (l *Ledger) HeadSlot(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.slots.Current(), nil
}

// HasParticipated reports whether actor ever touched the session. It backs
// downstream "participants only" checks.
func (l *Ledger) HasParticipated(ctx context.Context, sessionID uint64, actor string) (bool, error) {
	actor, ok := domain.NormalizeIdentity(actor)
	if !ok {
		return false, nil
	}
	return l.store.HasParticipated(ctx, sessionID, actor)
}
