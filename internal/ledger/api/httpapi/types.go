package httpapi

import "github.com/soundfield/touchledger/internal/ledger/domain"

// Wire shapes for the JSON API. The ledger's domain types never cross
// the transport directly.

type sessionPayload struct {
	ID                 uint64 `json:"id"`
	Creator            string `json:"creator"`
	StartSlot          uint64 `json:"start_slot"`
	EndSlot            uint64 `json:"end_slot"`
	TotalEvents        uint64 `json:"total_events"`
	UniqueParticipants uint64 `json:"unique_participants"`
	Active             bool   `json:"active"`
}

type touchEventPayload struct {
	SessionID       uint64 `json:"session_id"`
	Actor           string `json:"actor"`
	X               int32  `json:"x"`
	Y               int32  `json:"y"`
	Slot            uint64 `json:"slot"`
	SlotLocalIndex  uint64 `json:"slot_local_index"`
	SessionSequence uint64 `json:"session_sequence"`
}

type createSessionRequest struct {
	Initiator string `json:"initiator"`
}

type createSessionResponse struct {
	SessionID uint64 `json:"session_id"`
}

type touchRequest struct {
	Actor string `json:"actor"`
	X     int32  `json:"x"`
	Y     int32  `json:"y"`
}

type endSessionRequest struct {
	Caller string `json:"caller"`
}

type getSessionResponse struct {
	Session sessionPayload `json:"session"`
	Exists  bool           `json:"exists"`
}

type eventsResponse struct {
	Events []touchEventPayload `json:"events"`
}

type headResponse struct {
	Slot uint64 `json:"slot"`
}

type participationResponse struct {
	Participated bool `json:"participated"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toSessionPayload(session domain.Session) sessionPayload {
	return sessionPayload{
		ID:                 session.ID,
		Creator:            session.Creator,
		StartSlot:          session.StartSlot,
		EndSlot:            session.EndSlot,
		TotalEvents:        session.TotalEvents,
		UniqueParticipants: session.UniqueParticipants,
		Active:             session.Active,
	}
}

func fromSessionPayload(payload sessionPayload) domain.Session {
	return domain.Session{
		ID:                 payload.ID,
		Creator:            payload.Creator,
		StartSlot:          payload.StartSlot,
		EndSlot:            payload.EndSlot,
		TotalEvents:        payload.TotalEvents,
		UniqueParticipants: payload.UniqueParticipants,
		Active:             payload.Active,
	}
}

func toTouchEventPayload(evt domain.TouchEvent) touchEventPayload {
	return touchEventPayload{
		SessionID:       evt.SessionID,
		Actor:           evt.Actor,
		X:               evt.X,
		Y:               evt.Y,
		Slot:            evt.Slot,
		SlotLocalIndex:  evt.SlotLocalIndex,
		SessionSequence: evt.SessionSequence,
	}
}

func fromTouchEventPayload(payload touchEventPayload) domain.TouchEvent {
	return domain.TouchEvent{
		SessionID:       payload.SessionID,
		Actor:           payload.Actor,
		X:               payload.X,
		Y:               payload.Y,
		Slot:            payload.Slot,
		SlotLocalIndex:  payload.SlotLocalIndex,
		SessionSequence: payload.SessionSequence,
	}
}
