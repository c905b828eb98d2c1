package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/soundfield/touchledger/internal/ledger/domain"
)

// Journal payload rows. Each kind serializes exactly one of these shapes;
// decoding happens here and nowhere above this boundary.

type startedPayload struct {
	SessionID uint64 `json:"session_id"`
	Creator   string `json:"creator"`
	StartSlot uint64 `json:"start_slot"`
}

type touchPayload struct {
	SessionID       uint64 `json:"session_id"`
	Actor           string `json:"actor"`
	X               int32  `json:"x"`
	Y               int32  `json:"y"`
	Slot            uint64 `json:"slot"`
	SlotLocalIndex  uint64 `json:"slot_local_index"`
	SessionSequence uint64 `json:"session_sequence"`
}

type endedPayload struct {
	SessionID          uint64 `json:"session_id"`
	EndSlot            uint64 `json:"end_slot"`
	TotalEvents        uint64 `json:"total_events"`
	UniqueParticipants uint64 `json:"unique_participants"`
}

// appendEntry journals one entry within the caller's transaction.
func appendEntry(ctx context.Context, tx *sql.Tx, entry domain.Entry) error {
	payload, sessionID, err := encodePayload(entry)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO journal (slot, kind, session_id, payload) VALUES (?, ?, ?, ?)`,
		int64(entry.Slot), string(entry.Kind), int64(sessionID), string(payload),
	); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// ListEntriesInRange returns entries with fromSlot < slot <= toSlot in
// append order.
func (s *Store) ListEntriesInRange(ctx context.Context, fromSlot, toSlot uint64) ([]domain.Entry, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, slot, kind, payload FROM journal
		 WHERE slot > ? AND slot <= ? ORDER BY seq`,
		int64(fromSlot), int64(toSlot),
	)
	if err != nil {
		return nil, fmt.Errorf("list journal range: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListEntriesBySession returns entries for one session with seq > afterSeq
// in append order, at most limit rows.
func (s *Store) ListEntriesBySession(ctx context.Context, sessionID uint64, afterSeq uint64, limit int) ([]domain.Entry, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, slot, kind, payload FROM journal
		 WHERE session_id = ? AND seq > ? ORDER BY seq LIMIT ?`,
		int64(sessionID), int64(afterSeq), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list session journal: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]domain.Entry, error) {
	var entries []domain.Entry
	for rows.Next() {
		var seq, slot int64
		var kind, payload string
		if err := rows.Scan(&seq, &slot, &kind, &payload); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry, err := decodeEntry(uint64(seq), uint64(slot), domain.EntryKind(kind), []byte(payload))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func encodePayload(entry domain.Entry) ([]byte, uint64, error) {
	switch entry.Kind {
	case domain.EntryKindSessionStarted:
		fact := entry.SessionStarted
		if fact == nil {
			return nil, 0, fmt.Errorf("session_started entry missing payload")
		}
		data, err := json.Marshal(startedPayload{
			SessionID: fact.SessionID,
			Creator:   fact.Creator,
			StartSlot: fact.StartSlot,
		})
		return data, fact.SessionID, err
	case domain.EntryKindTouchRecorded:
		evt := entry.Touch
		if evt == nil {
			return nil, 0, fmt.Errorf("touch_recorded entry missing payload")
		}
		data, err := json.Marshal(touchPayload{
			SessionID:       evt.SessionID,
			Actor:           evt.Actor,
			X:               evt.X,
			Y:               evt.Y,
			Slot:            evt.Slot,
			SlotLocalIndex:  evt.SlotLocalIndex,
			SessionSequence: evt.SessionSequence,
		})
		return data, evt.SessionID, err
	case domain.EntryKindSessionEnded:
		fact := entry.SessionEnded
		if fact == nil {
			return nil, 0, fmt.Errorf("session_ended entry missing payload")
		}
		data, err := json.Marshal(endedPayload{
			SessionID:          fact.SessionID,
			EndSlot:            fact.EndSlot,
			TotalEvents:        fact.TotalEvents,
			UniqueParticipants: fact.UniqueParticipants,
		})
		return data, fact.SessionID, err
	default:
		return nil, 0, fmt.Errorf("unsupported journal entry kind %q", entry.Kind)
	}
}

func decodeEntry(seq, slot uint64, kind domain.EntryKind, payload []byte) (domain.Entry, error) {
	entry := domain.Entry{Seq: seq, Slot: slot, Kind: kind}
	switch kind {
	case domain.EntryKindSessionStarted:
		var p startedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return domain.Entry{}, fmt.Errorf("decode session_started payload: %w", err)
		}
		entry.SessionStarted = &domain.SessionStarted{
			SessionID: p.SessionID,
			Creator:   p.Creator,
			StartSlot: p.StartSlot,
		}
	case domain.EntryKindTouchRecorded:
		var p touchPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return domain.Entry{}, fmt.Errorf("decode touch_recorded payload: %w", err)
		}
		entry.Touch = &domain.TouchEvent{
			SessionID:       p.SessionID,
			Actor:           p.Actor,
			X:               p.X,
			Y:               p.Y,
			Slot:            p.Slot,
			SlotLocalIndex:  p.SlotLocalIndex,
			SessionSequence: p.SessionSequence,
		}
	case domain.EntryKindSessionEnded:
		var p endedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return domain.Entry{}, fmt.Errorf("decode session_ended payload: %w", err)
		}
		entry.SessionEnded = &domain.SessionEnded{
			SessionID:          p.SessionID,
			EndSlot:            p.EndSlot,
			TotalEvents:        p.TotalEvents,
			UniqueParticipants: p.UniqueParticipants,
		}
	default:
		return domain.Entry{}, fmt.Errorf("unsupported journal entry kind %q", kind)
	}
	return entry, nil
}
