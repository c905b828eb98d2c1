package domain

import (
	"strings"

	apperrors "github.com/soundfield/touchledger/internal/platform/errors"
)

const (
	// CoordMin is the lowest coordinate value a touch may record.
	CoordMin int32 = -1000
	// CoordMax is the highest coordinate value a touch may record.
	CoordMax int32 = 1000
	// MaxSessionSlots is the slot lifetime after which a session expires.
	// At roughly one slot per second this is twelve hours.
	MaxSessionSlots uint64 = 43200
)

var (
	// ErrSessionNotFound indicates the session id has never been created.
	ErrSessionNotFound = apperrors.New(apperrors.CodeSessionNotFound, "session not found")
	// ErrSessionInactive indicates the session has already ended.
	ErrSessionInactive = apperrors.New(apperrors.CodeSessionInactive, "session is not active")
	// ErrSessionExpired indicates the session outlived its slot lifetime.
	ErrSessionExpired = apperrors.New(apperrors.CodeSessionExpired, "session has expired")
	// ErrNotAuthorized indicates the caller may not end the session.
	ErrNotAuthorized = apperrors.New(apperrors.CodeNotAuthorized, "caller is not authorized to end this session")
	// ErrEmptyInitiator indicates a missing session creator identity.
	ErrEmptyInitiator = apperrors.New(apperrors.CodeSessionEmptyInitiator, "initiator is required")
	// ErrEmptyActor indicates a missing touch actor identity.
	ErrEmptyActor = apperrors.New(apperrors.CodeTouchEmptyActor, "actor is required")
)

// Status describes the lifecycle state of a session.
type Status int

const (
	// StatusUnknown means the session id has never been created.
	StatusUnknown Status = iota
	// StatusActive means the session accepts touches.
	StatusActive
	// StatusEnded means the session is terminally closed.
	StatusEnded
)

// Session is the aggregate for one bounded composition window.
//
// EndSlot is zero exactly while the session is active. TotalEvents and
// UniqueParticipants only ever increase, and UniqueParticipants never
// exceeds TotalEvents. Once Active flips to false it never flips back.
type Session struct {
	ID                 uint64
	Creator            string
	StartSlot          uint64
	EndSlot            uint64
	TotalEvents        uint64
	UniqueParticipants uint64
	Active             bool
}

// Status reports the lifecycle state for a session looked up with exists.
func (s Session) Status(exists bool) Status {
	switch {
	case !exists:
		return StatusUnknown
	case s.Active:
		return StatusActive
	default:
		return StatusEnded
	}
}

// Expired reports whether the session outlived MaxSessionSlots at
// currentSlot. Expiry is a derived predicate: the stored row is not
// mutated when a session lapses, the check runs lazily on each operation.
func (s Session) Expired(currentSlot uint64) bool {
	if currentSlot <= s.StartSlot {
		return false
	}
	return currentSlot-s.StartSlot > MaxSessionSlots
}

// NewSession builds the aggregate for a freshly created session. The id is
// allocated by the store; startSlot comes from the slot source.
func NewSession(id uint64, creator string, startSlot uint64) Session {
	return Session{
		ID:        id,
		Creator:   creator,
		StartSlot: startSlot,
		Active:    true,
	}
}

// NormalizeIdentity trims an actor or initiator identity and reports
// whether anything remains.
func NormalizeIdentity(identity string) (string, bool) {
	identity = strings.TrimSpace(identity)
	return identity, identity != ""
}

// ClampCoord clamps a coordinate into [CoordMin, CoordMax]. Out-of-range
// input is a permissiveness policy, not an error.
func ClampCoord(v int32) int32 {
	if v < CoordMin {
		return CoordMin
	}
	if v > CoordMax {
		return CoordMax
	}
	return v
}

// ValidateTouch returns the error preventing a touch on the session, or nil.
func ValidateTouch(s Session, exists bool, currentSlot uint64) error {
	if !exists {
		return ErrSessionNotFound
	}
	if !s.Active {
		return ErrSessionInactive
	}
	if s.Expired(currentSlot) {
		return ErrSessionExpired
	}
	return nil
}

// ValidateEnd returns the error preventing caller from ending the session,
// or nil. Only the session's creator or the configured admin may end it.
func ValidateEnd(s Session, exists bool, caller, admin string) error {
	if !exists {
		return ErrSessionNotFound
	}
	if caller != s.Creator && (admin == "" || caller != admin) {
		return ErrNotAuthorized
	}
	if !s.Active {
		return ErrSessionInactive
	}
	return nil
}

// ApplyTouch advances the session counters for one accepted touch and
// returns the mutated aggregate together with the recorded event.
//
// slotLocalIndex is the 1-based position of this touch within (session,
// slot), already allocated by the store; firstTouch reports whether actor
// has no participation record yet.
func ApplyTouch(s Session, actor string, x, y int32, slot, slotLocalIndex uint64, firstTouch bool) (Session, TouchEvent) {
	if firstTouch {
		s.UniqueParticipants++
	}
	s.TotalEvents++

	evt := TouchEvent{
		SessionID:       s.ID,
		Actor:           actor,
		X:               ClampCoord(x),
		Y:               ClampCoord(y),
		Slot:            slot,
		SlotLocalIndex:  slotLocalIndex,
		SessionSequence: s.TotalEvents,
	}
	return s, evt
}

// ApplyEnd closes the session at endSlot and returns the mutated aggregate.
func ApplyEnd(s Session, endSlot uint64) Session {
	s.EndSlot = endSlot
	s.Active = false
	return s
}
