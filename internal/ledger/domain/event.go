package domain

// TouchEvent is one accepted touch action, immutable once appended.
type TouchEvent struct {
	SessionID uint64
	Actor     string
	X         int32
	Y         int32
	// Slot is the ledger-assigned ordering position, analogous to a block number.
	Slot uint64
	// SlotLocalIndex is the 1-based position within (session, slot).
	SlotLocalIndex uint64
	// SessionSequence is the 1-based position within the session.
	SessionSequence uint64
}

// Key identifies the event within its session's total order.
func (e TouchEvent) Key() EventKey {
	return EventKey{Slot: e.Slot, SlotLocalIndex: e.SlotLocalIndex}
}

// EventKey is the composite ordering key for touch events.
type EventKey struct {
	Slot           uint64
	SlotLocalIndex uint64
}

// Less reports whether k orders strictly before other. Ordering is always
// (slot, slotLocalIndex) ascending, never wall-clock arrival time.
func (k EventKey) Less(other EventKey) bool {
	if k.Slot != other.Slot {
		return k.Slot < other.Slot
	}
	return k.SlotLocalIndex < other.SlotLocalIndex
}

// CompareEvents orders two touch events by (slot, slotLocalIndex) ascending.
// It is the single comparator shared by live tail and backfill.
func CompareEvents(a, b TouchEvent) int {
	switch {
	case a.Slot != b.Slot:
		if a.Slot < b.Slot {
			return -1
		}
		return 1
	case a.SlotLocalIndex != b.SlotLocalIndex:
		if a.SlotLocalIndex < b.SlotLocalIndex {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// EntryKind identifies the variant carried by a journal entry.
type EntryKind string

const (
	// EntryKindSessionStarted records session creation.
	EntryKindSessionStarted EntryKind = "session_started"
	// EntryKindTouchRecorded records one accepted touch.
	EntryKindTouchRecorded EntryKind = "touch_recorded"
	// EntryKindSessionEnded records session termination with final counters.
	EntryKindSessionEnded EntryKind = "session_ended"
)

// IsValid reports whether the entry kind is supported.
func (k EntryKind) IsValid() bool {
	switch k {
	case EntryKindSessionStarted, EntryKindTouchRecorded, EntryKindSessionEnded:
		return true
	default:
		return false
	}
}

// SessionStarted is the journal fact for session creation.
type SessionStarted struct {
	SessionID uint64
	Creator   string
	StartSlot uint64
}

// SessionEnded is the journal fact for session termination.
type SessionEnded struct {
	SessionID          uint64
	EndSlot            uint64
	TotalEvents        uint64
	UniqueParticipants uint64
}

// Entry is one journal row decoded into a closed set of variants. Exactly
// one of the payload pointers is non-nil, selected by Kind. Decoding
// happens once at the storage boundary so nothing above it guesses shapes.
type Entry struct {
	// Seq is the journal-wide append sequence, assigned by the store.
	Seq uint64
	// Slot is the ledger slot the entry was appended in.
	Slot uint64
	Kind EntryKind

	SessionStarted *SessionStarted
	Touch          *TouchEvent
	SessionEnded   *SessionEnded
}

// StartedEntry builds a session_started journal entry.
func StartedEntry(slot uint64, fact SessionStarted) Entry {
	return Entry{Slot: slot, Kind: EntryKindSessionStarted, SessionStarted: &fact}
}

// TouchEntry builds a touch_recorded journal entry.
func TouchEntry(evt TouchEvent) Entry {
	return Entry{Slot: evt.Slot, Kind: EntryKindTouchRecorded, Touch: &evt}
}

// EndedEntry builds a session_ended journal entry.
func EndedEntry(slot uint64, fact SessionEnded) Entry {
	return Entry{Slot: slot, Kind: EntryKindSessionEnded, SessionEnded: &fact}
}

// TouchEvents extracts the touch payloads from journal entries, preserving
// order. Non-touch variants are skipped.
func TouchEvents(entries []Entry) []TouchEvent {
	var events []TouchEvent
	for _, entry := range entries {
		if entry.Kind == EntryKindTouchRecorded && entry.Touch != nil {
			events = append(events, *entry.Touch)
		}
	}
	return events
}
