package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/accord/internal/oracle"
	"github.com/MikeSquared-Agency/accord/internal/reconciler"
)

type createSessionRequest struct {
	PartnerA reconciler.Participant `json:"partnerA"`
	PartnerB reconciler.Participant `json:"partnerB"`
}

type contentRequest struct {
	Content string `json:"content"`
}

type shareRespondRequest struct {
	Action  reconciler.ShareAction `json:"action"`
	Content string                 `json:"content,omitempty"`
}

type attemptResponse struct {
	ID            uuid.UUID         `json:"id"`
	SessionID     uuid.UUID         `json:"sessionId"`
	UserID        uuid.UUID         `json:"userId"`
	Status        reconciler.Status `json:"status"`
	RevisionCount int               `json:"revisionCount"`
	SharedAt      *time.Time        `json:"sharedAt,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PartnerA.ID == uuid.Nil || req.PartnerB.ID == uuid.Nil ||
		req.PartnerA.DisplayName == "" || req.PartnerB.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "both partners need an id and a display name")
		return
	}

	sess := &reconciler.Session{
		ID:       uuid.New(),
		PartnerA: req.PartnerA,
		PartnerB: req.PartnerB,
	}
	if err := s.sessions.CreateSession(r.Context(), sess); err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// submitEmpathy records the guess and queues the reconciler run; analysis is
// never done on the request path.
func (s *Server) submitEmpathy(w http.ResponseWriter, r *http.Request) {
	sessionID, userID, ok := s.pathIDs(w, r)
	if !ok {
		return
	}

	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	attempt, err := s.engine.SubmitEmpathy(r.Context(), sessionID, userID, req.Content)
	if err != nil {
		s.writeMapped(w, err)
		return
	}

	s.tasks.Submit("analyze-direction", func(ctx context.Context) error {
		return s.analyzeDirection(ctx, sessionID, userID)
	})

	writeJSON(w, http.StatusAccepted, attemptResponse{
		ID:            attempt.ID,
		SessionID:     attempt.SessionID,
		UserID:        attempt.SourceUserID,
		Status:        attempt.Status,
		RevisionCount: attempt.RevisionCount,
		SharedAt:      attempt.SharedAt,
	})
}

// analyzeDirection is the queued follow-up to a submission: run the oracle
// comparison for the submitter's direction, then check the reveal barrier.
func (s *Server) analyzeDirection(ctx context.Context, sessionID, userID uuid.UUID) error {
	sess, err := s.engine.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	partner, ok := sess.PartnerOf(userID)
	if !ok {
		return reconciler.ErrNotParticipant
	}

	if _, err := s.engine.RunDirection(ctx, sessionID, userID, partner.ID); err != nil {
		// Both are normal early in a session: the run fails its
		// preconditions without consuming breaker budget, and reruns
		// when the missing half arrives.
		if errors.Is(err, reconciler.ErrMissingWitnessContent) {
			s.logger.Info("direction waiting on witness content",
				"session_id", sessionID, "guesser_id", userID)
			return nil
		}
		if errors.Is(err, reconciler.ErrMissingAttempt) {
			s.logger.Info("direction waiting on an empathy attempt",
				"session_id", sessionID, "guesser_id", userID)
			return nil
		}
		return err
	}

	return s.engine.CheckAndRevealBothIfReady(ctx, sessionID)
}

func (s *Server) addWitness(w http.ResponseWriter, r *http.Request) {
	sessionID, userID, ok := s.pathIDs(w, r)
	if !ok {
		return
	}

	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := s.engine.AddWitnessStatement(r.Context(), sessionID, userID, req.Content); err != nil {
		s.writeMapped(w, err)
		return
	}

	// The partner's guess may have been waiting on this ground truth.
	sess, err := s.engine.Session(r.Context(), sessionID)
	if err == nil {
		if partner, ok := sess.PartnerOf(userID); ok {
			s.tasks.Submit("analyze-direction", func(ctx context.Context) error {
				return s.analyzeDirection(ctx, sessionID, partner.ID)
			})
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (s *Server) empathyStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := s.engine.SessionStatus(r.Context(), sessionID)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) getShareSuggestion(w http.ResponseWriter, r *http.Request) {
	sessionID, userID, ok := s.pathIDs(w, r)
	if !ok {
		return
	}

	offer, err := s.engine.ShareSuggestionFor(r.Context(), sessionID, userID)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestion": offer})
}

func (s *Server) respondShareSuggestion(w http.ResponseWriter, r *http.Request) {
	sessionID, userID, ok := s.pathIDs(w, r)
	if !ok {
		return
	}

	var req shareRespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	resp, err := s.engine.RespondToShareSuggestion(r.Context(), sessionID, userID, req.Action, req.Content)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) validateEmpathy(w http.ResponseWriter, r *http.Request) {
	sessionID, userID, ok := s.pathIDs(w, r)
	if !ok {
		return
	}

	if err := s.engine.Validate(r.Context(), sessionID, userID); err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(reconciler.StatusValidated)})
}

func (s *Server) pathIDs(w http.ResponseWriter, r *http.Request) (sessionID, userID uuid.UUID, ok bool) {
	sessionID, err := pathUUID(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	userID, err = pathUUID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	return sessionID, userID, true
}

// writeMapped translates domain errors into HTTP codes.
func (s *Server) writeMapped(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconciler.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reconciler.ErrNotParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, reconciler.ErrEmptyContent),
		errors.Is(err, reconciler.ErrNoPendingOffer):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reconciler.ErrMissingAttempt),
		errors.Is(err, reconciler.ErrMissingWitnessContent),
		errors.Is(err, reconciler.ErrAlreadyRevealed),
		errors.Is(err, reconciler.ErrNotRevealed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, oracle.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
