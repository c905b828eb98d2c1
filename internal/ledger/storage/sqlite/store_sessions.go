package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soundfield/touchledger/internal/ledger/domain"
	"github.com/soundfield/touchledger/internal/ledger/storage"
)

const sessionIDCounter = "session_id"

// CreateSession atomically allocates the next session id, inserts the
// aggregate, and journals the session_started entry.
func (s *Store) CreateSession(ctx context.Context, creator string, startSlot uint64) (domain.Session, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()

	id, err := nextSessionID(ctx, tx)
	if err != nil {
		return domain.Session{}, err
	}

	session := domain.NewSession(id, creator, startSlot)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, creator, start_slot, end_slot, total_events, unique_participants, active)
		 VALUES (?, ?, ?, 0, 0, 0, 1)`,
		int64(session.ID), session.Creator, int64(session.StartSlot),
	); err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}

	entry := domain.StartedEntry(startSlot, domain.SessionStarted{
		SessionID: session.ID,
		Creator:   session.Creator,
		StartSlot: session.StartSlot,
	})
	if err := appendEntry(ctx, tx, entry); err != nil {
		return domain.Session{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("commit create session: %w", err)
	}
	return session, nil
}

// GetSession returns the aggregate for id or storage.ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id uint64) (domain.Session, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Session{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, creator, start_slot, end_slot, total_events, unique_participants, active
		 FROM sessions WHERE id = ?`,
		int64(id),
	)
	return scanSession(row)
}

// AppendTouch runs the touch state transition in one transaction: validate
// against the stored aggregate, clamp, record participation, advance the
// counters, and journal the touch_recorded entry.
func (s *Store) AppendTouch(ctx context.Context, req storage.TouchRequest) (domain.TouchEvent, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return domain.TouchEvent{}, err
	}
	defer tx.Rollback()

	session, err := sessionForUpdate(ctx, tx, req.SessionID)
	exists := true
	if errors.Is(err, storage.ErrNotFound) {
		exists = false
	} else if err != nil {
		return domain.TouchEvent{}, err
	}

	if err := domain.ValidateTouch(session, exists, req.Slot); err != nil {
		return domain.TouchEvent{}, err
	}

	firstTouch, err := recordParticipation(ctx, tx, req.SessionID, req.Actor)
	if err != nil {
		return domain.TouchEvent{}, err
	}

	slotLocalIndex, err := nextSlotLocalIndex(ctx, tx, req.SessionID, req.Slot)
	if err != nil {
		return domain.TouchEvent{}, err
	}

	session, evt := domain.ApplyTouch(session, req.Actor, req.X, req.Y, req.Slot, slotLocalIndex, firstTouch)

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET total_events = ?, unique_participants = ? WHERE id = ?`,
		int64(session.TotalEvents), int64(session.UniqueParticipants), int64(session.ID),
	); err != nil {
		return domain.TouchEvent{}, fmt.Errorf("update session counters: %w", err)
	}

	if err := appendEntry(ctx, tx, domain.TouchEntry(evt)); err != nil {
		return domain.TouchEvent{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.TouchEvent{}, fmt.Errorf("commit touch: %w", err)
	}
	return evt, nil
}

// EndSession closes the aggregate and journals the session_ended entry
// with the final counters.
func (s *Store) EndSession(ctx context.Context, id uint64, endSlot uint64) (domain.Session, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()

	session, err := sessionForUpdate(ctx, tx, id)
	if err != nil {
		return domain.Session{}, err
	}

	session = domain.ApplyEnd(session, endSlot)
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET end_slot = ?, active = 0 WHERE id = ?`,
		int64(session.EndSlot), int64(session.ID),
	); err != nil {
		return domain.Session{}, fmt.Errorf("end session: %w", err)
	}

	entry := domain.EndedEntry(endSlot, domain.SessionEnded{
		SessionID:          session.ID,
		EndSlot:            session.EndSlot,
		TotalEvents:        session.TotalEvents,
		UniqueParticipants: session.UniqueParticipants,
	})
	if err := appendEntry(ctx, tx, entry); err != nil {
		return domain.Session{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("commit end session: %w", err)
	}
	return session, nil
}

// HasParticipated reports whether actor has ever touched the session.
func (s *Store) HasParticipated(ctx context.Context, sessionID uint64, actor string) (bool, error) {
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	var found int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM participants WHERE session_id = ? AND actor = ?`,
		int64(sessionID), actor,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query participation: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var session domain.Session
	var id, startSlot, endSlot, totalEvents, uniqueParticipants int64
	var active int
	err := row.Scan(&id, &session.Creator, &startSlot, &endSlot, &totalEvents, &uniqueParticipants, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	session.ID = uint64(id)
	session.StartSlot = uint64(startSlot)
	session.EndSlot = uint64(endSlot)
	session.TotalEvents = uint64(totalEvents)
	session.UniqueParticipants = uint64(uniqueParticipants)
	session.Active = active != 0
	return session, nil
}

func sessionForUpdate(ctx context.Context, tx *sql.Tx, id uint64) (domain.Session, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, creator, start_slot, end_slot, total_events, unique_participants, active
		 FROM sessions WHERE id = ?`,
		int64(id),
	)
	return scanSession(row)
}

func nextSessionID(ctx context.Context, tx *sql.Tx) (uint64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_counters (name, value) VALUES (?, 0)
		 ON CONFLICT (name) DO NOTHING`,
		sessionIDCounter,
	); err != nil {
		return 0, fmt.Errorf("init session counter: %w", err)
	}
	var value int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE session_counters SET value = value + 1 WHERE name = ? RETURNING value`,
		sessionIDCounter,
	).Scan(&value); err != nil {
		return 0, fmt.Errorf("allocate session id: %w", err)
	}
	return uint64(value), nil
}

// recordParticipation inserts the (session, actor) membership fact and
// reports whether this touch is the actor's first in the session.
func recordParticipation(ctx context.Context, tx *sql.Tx, sessionID uint64, actor string) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO participants (session_id, actor) VALUES (?, ?)
		 ON CONFLICT (session_id, actor) DO NOTHING`,
		int64(sessionID), actor,
	)
	if err != nil {
		return false, fmt.Errorf("record participation: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("participation rows affected: %w", err)
	}
	return inserted > 0, nil
}

// nextSlotLocalIndex advances the per-(session, slot) counter and returns
// the 1-based index for this touch.
func nextSlotLocalIndex(ctx context.Context, tx *sql.Tx, sessionID, slot uint64) (uint64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO slot_counters (session_id, slot, touches) VALUES (?, ?, 0)
		 ON CONFLICT (session_id, slot) DO NOTHING`,
		int64(sessionID), int64(slot),
	); err != nil {
		return 0, fmt.Errorf("init slot counter: %w", err)
	}
	var value int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE slot_counters SET touches = touches + 1 WHERE session_id = ? AND slot = ? RETURNING touches`,
		int64(sessionID), int64(slot),
	).Scan(&value); err != nil {
		return 0, fmt.Errorf("allocate slot local index: %w", err)
	}
	return uint64(value), nil
}
