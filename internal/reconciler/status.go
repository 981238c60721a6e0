package reconciler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SessionEmpathyStatus is the aggregate view of both directions.
type SessionEmpathyStatus struct {
	AUnderstandingB *AnalysisRecord `json:"aUnderstandingB"`
	BUnderstandingA *AnalysisRecord `json:"bUnderstandingA"`
	BothCompleted   bool            `json:"bothCompleted"`
	ReadyToProceed  bool            `json:"readyToProceed"`
	BlockingReason  *string         `json:"blockingReason"`
}

// SessionStatus reports both directions' current analysis and whether the
// couple can move on to the next stage.
func (e *Engine) SessionStatus(ctx context.Context, sessionID uuid.UUID) (*SessionEmpathyStatus, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	resA, err := e.store.GetResult(ctx, sessionID, sess.PartnerA.ID)
	if err != nil {
		return nil, fmt.Errorf("load result for %s: %w", sess.PartnerA.ID, err)
	}
	resB, err := e.store.GetResult(ctx, sessionID, sess.PartnerB.ID)
	if err != nil {
		return nil, fmt.Errorf("load result for %s: %w", sess.PartnerB.ID, err)
	}

	attempts, err := e.store.SessionAttempts(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session attempts: %w", err)
	}
	byUser := make(map[uuid.UUID]*EmpathyAttempt, len(attempts))
	for i := range attempts {
		byUser[attempts[i].SourceUserID] = &attempts[i]
	}

	status := &SessionEmpathyStatus{
		AUnderstandingB: resA,
		BUnderstandingA: resB,
	}

	attA, attB := byUser[sess.PartnerA.ID], byUser[sess.PartnerB.ID]
	status.BothCompleted = attA != nil && attB != nil &&
		attA.Status.Completed() && attB.Status.Completed()
	status.ReadyToProceed = attA != nil && attB != nil &&
		revealed(attA.Status) && revealed(attB.Status)

	if reason := blockingReason(sess, attA, attB); reason != "" {
		status.BlockingReason = &reason
	}
	return status, nil
}

func revealed(s Status) bool {
	return s == StatusRevealed || s == StatusValidated
}

func blockingReason(sess *Session, attA, attB *EmpathyAttempt) string {
	if r := directionBlock(sess.PartnerA, attA); r != "" {
		return r
	}
	return directionBlock(sess.PartnerB, attB)
}

func directionBlock(p Participant, att *EmpathyAttempt) string {
	if att == nil {
		return fmt.Sprintf("%s has not shared an empathy attempt yet", p.DisplayName)
	}
	switch att.Status {
	case StatusHeld:
		return fmt.Sprintf("%s is still holding their draft", p.DisplayName)
	case StatusAnalyzing:
		return fmt.Sprintf("%s's attempt is being analyzed", p.DisplayName)
	case StatusAwaitingSharing:
		return fmt.Sprintf("waiting on a sharing decision for %s's direction", p.DisplayName)
	case StatusNeedsWork, StatusRefining:
		return fmt.Sprintf("%s is refining their attempt", p.DisplayName)
	}
	return ""
}
