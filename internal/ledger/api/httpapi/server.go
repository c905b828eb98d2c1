// Package httpapi exposes the ledger over a JSON HTTP surface and
// provides the matching client. Error responses carry the platform
// error code so clients can rebuild typed errors across the wire.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	apperrors "github.com/soundfield/touchledger/internal/platform/errors"

	"github.com/soundfield/touchledger/internal/ledger/domain"
)

// Ledger is the surface the HTTP handler serves. *service.Ledger
// satisfies it.
type Ledger interface {
	CreateSession(ctx context.Context, initiator string) (uint64, error)
	Touch(ctx context.Context, sessionID uint64, actor string, x, y int32) (domain.TouchEvent, error)
	EndSession(ctx context.Context, sessionID uint64, caller string) error
	GetSession(ctx context.Context, sessionID uint64) (domain.Session, bool, error)
	GetEventsInRange(ctx context.Context, fromSlot, toSlot uint64) ([]domain.TouchEvent, error)
	HeadSlot(ctx context.Context) (uint64, error)
	HasParticipated(ctx context.Context, sessionID uint64, actor string) (bool, error)
}

// Server routes HTTP requests to a Ledger.
type Server struct {
	ledger Ledger
	mux    *http.ServeMux
	logger *log.Logger
}

// NewServer builds the handler for a ledger. A nil logger falls back
// to the standard logger.
func NewServer(ledger Ledger, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{ledger: ledger, mux: http.NewServeMux(), logger: logger}
	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /v1/sessions/{id}/touches", s.handleTouch)
	s.mux.HandleFunc("POST /v1/sessions/{id}/end", s.handleEndSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}/participants/{actor}", s.handleParticipation)
	s.mux.HandleFunc("GET /v1/events", s.handleEvents)
	s.mux.HandleFunc("GET /v1/head", s.handleHead)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.ledger.CreateSession(r.Context(), req.Initiator)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	session, exists, err := s.ledger.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, getSessionResponse{
		Session: toSessionPayload(session),
		Exists:  exists,
	})
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req touchRequest
	if !s.decode(w, r, &req) {
		return
	}
	evt, err := s.ledger.Touch(r.Context(), id, req.Actor, req.X, req.Y)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTouchEventPayload(evt))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req endSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ledger.EndSession(r.Context(), id, req.Caller); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleParticipation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	participated, err := s.ledger.HasParticipated(r.Context(), id, r.PathValue("actor"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, participationResponse{Participated: participated})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from, err := parseSlotParam(r, "from")
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := parseSlotParam(r, "to")
	if err != nil {
		s.writeError(w, err)
		return
	}
	events, err := s.ledger.GetEventsInRange(r.Context(), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payloads := make([]touchEventPayload, 0, len(events))
	for _, evt := range events {
		payloads = append(payloads, toTouchEventPayload(evt))
	}
	s.writeJSON(w, http.StatusOK, eventsResponse{Events: payloads})
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	slot, err := s.ledger.HeadSlot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, headResponse{Slot: slot})
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, apperrors.New(apperrors.CodeSessionNotFound, "invalid session id"))
		return 0, false
	}
	return id, true
}

func parseSlotParam(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	slot, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperrors.New(apperrors.CodeRangeInverted, "invalid slot parameter: "+name)
	}
	return slot, nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: errorBody{Code: string(apperrors.CodeUnknown), Message: "malformed request body"},
		})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Printf("httpapi: encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		s.logger.Printf("httpapi: internal error: %v", err)
		appErr = apperrors.New(apperrors.CodeUnknown, "an unexpected error occurred")
	}
	s.writeJSON(w, appErr.Code.HTTPStatus(), errorResponse{
		Error: errorBody{Code: string(appErr.Code), Message: appErr.Message},
	})
}
