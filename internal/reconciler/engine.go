package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/accord/internal/oracle"
)

// DefaultBreakerThreshold is the number of prior reconciler runs after which
// the circuit breaker force-completes a direction. With a threshold of 3 the
// first three calls run normally and the fourth trips.
const DefaultBreakerThreshold = 3

// Store is the persistence surface the engine depends on. Implemented by
// *store.Store; tests substitute in-memory fakes.
type Store interface {
	GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error)

	GetAttempt(ctx context.Context, sessionID, userID uuid.UUID) (*EmpathyAttempt, error)
	SessionAttempts(ctx context.Context, sessionID uuid.UUID) ([]EmpathyAttempt, error)
	UpsertAttempt(ctx context.Context, sessionID, userID uuid.UUID, content string) (*EmpathyAttempt, error)
	UpdateAttemptStatus(ctx context.Context, sessionID, userID uuid.UUID, status Status) error
	RevealBoth(ctx context.Context, sessionID uuid.UUID, at time.Time) (int64, error)
	MarkValidated(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error

	ReplaceResult(ctx context.Context, rec *AnalysisRecord) error
	GetResult(ctx context.Context, sessionID, guesserID uuid.UUID) (*AnalysisRecord, error)

	CreateOffer(ctx context.Context, offer *ShareOffer) error
	OpenOfferFor(ctx context.Context, sessionID, userID uuid.UUID) (*ShareOffer, error)
	MarkOfferOffered(ctx context.Context, offerID uuid.UUID) error
	ResolveOffer(ctx context.Context, offerID uuid.UUID, status OfferStatus, responseContent string) error
	CloseOpenOffers(ctx context.Context, sessionID, guesserID uuid.UUID) error

	AddWitnessStatement(ctx context.Context, sessionID, userID uuid.UUID, content string) error
	WitnessContent(ctx context.Context, sessionID, userID uuid.UUID) ([]string, error)
	AddSharedContext(ctx context.Context, sessionID, userID uuid.UUID, content string) error
	SharedContext(ctx context.Context, sessionID, userID uuid.UUID) ([]string, error)
}

// Counters is the per-direction refinement attempt counter. Never
// decremented; session-scoped.
type Counters interface {
	Get(ctx context.Context, sessionID uuid.UUID, direction string) (int, error)
	Incr(ctx context.Context, sessionID uuid.UUID, direction string) (int, error)
}

// Locker serializes the reveal barrier per session.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Notifier fans state changes out to the couple's devices. Failures are
// logged by the engine, never propagated.
type Notifier interface {
	NotifyPartner(ctx context.Context, sessionID uuid.UUID, event string, payload map[string]any, excludeUserID uuid.UUID) error
	PublishSessionEvent(ctx context.Context, sessionID uuid.UUID, event string, payload map[string]any) error
}

// Oracle compares a guess against the subject's ground truth.
type Oracle interface {
	Compare(ctx context.Context, in oracle.CompareInput) (*oracle.Comparison, error)
}

// Engine runs the per-direction empathy reconciliation pipeline.
type Engine struct {
	store            Store
	oracle           Oracle
	counters         Counters
	locks            Locker
	notify           Notifier
	logger           *slog.Logger
	breakerThreshold int
}

func NewEngine(s Store, o Oracle, c Counters, l Locker, n Notifier, breakerThreshold int, logger *slog.Logger) *Engine {
	if breakerThreshold <= 0 {
		breakerThreshold = DefaultBreakerThreshold
	}
	return &Engine{
		store:            s,
		oracle:           o,
		counters:         c,
		locks:            l,
		notify:           n,
		logger:           logger,
		breakerThreshold: breakerThreshold,
	}
}

// Session loads session metadata for callers that need participant info.
func (e *Engine) Session(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	return e.store.GetSession(ctx, sessionID)
}

// SubmitEmpathy records a partner's empathy guess. Resubmission bumps the
// revision count and puts the attempt back into ANALYZING; content is locked
// once revealed.
func (e *Engine) SubmitEmpathy(ctx context.Context, sessionID, userID uuid.UUID, content string) (*EmpathyAttempt, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if _, ok := sess.PartnerOf(userID); !ok {
		return nil, ErrNotParticipant
	}

	attempt, err := e.store.UpsertAttempt(ctx, sessionID, userID, content)
	if err != nil {
		return nil, fmt.Errorf("upsert attempt: %w", err)
	}

	e.notifyPartner(ctx, sessionID, EventPartnerEmpathyShared, map[string]any{
		"userId": userID.String(),
	}, userID)

	e.logger.Info("empathy attempt submitted",
		"session_id", sessionID,
		"user_id", userID,
		"revision", attempt.RevisionCount,
	)
	return attempt, nil
}

// AddWitnessStatement records a subject-side statement used as ground truth
// for the partner's direction.
func (e *Engine) AddWitnessStatement(ctx context.Context, sessionID, userID uuid.UUID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if _, ok := sess.PartnerOf(userID); !ok {
		return ErrNotParticipant
	}

	if err := e.store.AddWitnessStatement(ctx, sessionID, userID, content); err != nil {
		return fmt.Errorf("add witness statement: %w", err)
	}

	e.publishSessionEvent(ctx, sessionID, EventWitnessRecorded, map[string]any{
		"userId": userID.String(),
	})
	return nil
}

// RunDirection runs the reconciler pipeline for one direction: circuit
// breaker pre-check, oracle comparison, gap classification, status update,
// and share-offer creation on a significant gap. It never reveals; callers
// invoke CheckAndRevealBothIfReady afterward.
func (e *Engine) RunDirection(ctx context.Context, sessionID, guesserID, subjectID uuid.UUID) (*DirectionOutcome, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	// Preconditions come before any counter touch: a run that cannot
	// analyze must not consume breaker budget. Witness statements often
	// land before the partner's first guess, and each of those queued
	// runs fails right here.
	attempt, err := e.store.GetAttempt(ctx, sessionID, guesserID)
	if err != nil {
		return nil, fmt.Errorf("load guesser attempt: %w", err)
	}

	statements, err := e.store.WitnessContent(ctx, sessionID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load witness content: %w", err)
	}
	if len(statements) == 0 {
		return nil, fmt.Errorf("subject %s in session %s: %w", subjectID, sessionID, ErrMissingWitnessContent)
	}

	direction := DirectionKey(guesserID, subjectID)
	prior, err := e.counters.Get(ctx, sessionID, direction)
	if err != nil {
		return nil, fmt.Errorf("read attempt counter: %w", err)
	}
	if prior >= e.breakerThreshold {
		return e.forceComplete(ctx, sessionID, guesserID, direction, sess.NameOf(subjectID))
	}

	if _, err := e.counters.Incr(ctx, sessionID, direction); err != nil {
		// The counter is a rough abuse guard, not an accounting ledger.
		e.logger.Warn("attempt counter increment failed",
			"session_id", sessionID, "direction", direction, "error", err)
	}

	shared, err := e.store.SharedContext(ctx, sessionID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load shared context: %w", err)
	}

	cmp, err := e.oracle.Compare(ctx, oracle.CompareInput{
		Guess:             attempt.Content,
		SubjectStatements: statements,
		SharedContext:     shared,
		GuesserName:       sess.NameOf(guesserID),
		SubjectName:       sess.NameOf(subjectID),
	})
	if err != nil {
		return nil, fmt.Errorf("compare %s: %w", direction, err)
	}

	status := StatusReady
	if hasSignificantGaps(cmp) {
		status = StatusAwaitingSharing
	}

	rec := &AnalysisRecord{
		ID:                  uuid.New(),
		SessionID:           sessionID,
		GuesserID:           guesserID,
		SubjectID:           subjectID,
		Alignment:           cmp.Alignment,
		Gaps:                cmp.Gaps,
		Recommendation:      cmp.Recommendation,
		AreaHint:            cmp.AreaHint,
		GuidanceType:        cmp.GuidanceType,
		PromptSeed:          cmp.PromptSeed,
		SuggestedShareFocus: cmp.SuggestedShareFocus,
	}
	if err := e.store.ReplaceResult(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist result: %w", err)
	}
	if err := e.store.UpdateAttemptStatus(ctx, sessionID, guesserID, status); err != nil {
		return nil, fmt.Errorf("update attempt status: %w", err)
	}

	var offer *ShareOffer
	if status == StatusAwaitingSharing {
		offer, err = e.createShareOffer(ctx, sessionID, guesserID, subjectID, rec, cmp)
		if err != nil {
			return nil, err
		}
	} else {
		// A clean run invalidates any offer left from an earlier gapped
		// run; the direction no longer needs shared context.
		e.closeOpenOffers(ctx, sessionID, guesserID)
	}

	e.publishSessionEvent(ctx, sessionID, EventAnalysisComplete, map[string]any{
		"guesserId": guesserID.String(),
		"status":    string(status),
		"score":     cmp.Alignment.Score,
	})

	e.logger.Info("direction analyzed",
		"session_id", sessionID,
		"direction", direction,
		"score", cmp.Alignment.Score,
		"severity", cmp.Gaps.Severity,
		"status", status,
	)

	return &DirectionOutcome{Result: rec, EmpathyStatus: status, ShareOffer: offer}, nil
}

// forceComplete is the tripped circuit breaker: no oracle call, attempt goes
// straight to READY with a canned transition message, and the counter keeps
// climbing so repeat trips stay idempotent.
func (e *Engine) forceComplete(ctx context.Context, sessionID, guesserID uuid.UUID, direction, subjectName string) (*DirectionOutcome, error) {
	if _, err := e.counters.Incr(ctx, sessionID, direction); err != nil {
		e.logger.Warn("attempt counter increment failed",
			"session_id", sessionID, "direction", direction, "error", err)
	}

	if err := e.store.UpdateAttemptStatus(ctx, sessionID, guesserID, StatusReady); err != nil {
		return nil, fmt.Errorf("force-complete attempt: %w", err)
	}
	e.closeOpenOffers(ctx, sessionID, guesserID)

	msg := fmt.Sprintf("Let's move forward. You've put real effort into understanding %s, and that counts for a lot.", subjectName)

	e.logger.Info("refinement circuit breaker tripped",
		"session_id", sessionID,
		"direction", direction,
		"threshold", e.breakerThreshold,
	)

	e.publishSessionEvent(ctx, sessionID, EventAnalysisComplete, map[string]any{
		"guesserId": guesserID.String(),
		"status":    string(StatusReady),
		"forced":    true,
		"message":   msg,
	})

	return &DirectionOutcome{Result: nil, EmpathyStatus: StatusReady, TransitionMessage: msg}, nil
}

// Validate marks a revealed attempt as validated by its owner. Idempotent.
func (e *Engine) Validate(ctx context.Context, sessionID, userID uuid.UUID) error {
	attempt, err := e.store.GetAttempt(ctx, sessionID, userID)
	if err != nil {
		return fmt.Errorf("load attempt: %w", err)
	}
	switch attempt.Status {
	case StatusValidated:
		return nil
	case StatusRevealed:
	default:
		return ErrNotRevealed
	}
	if err := e.store.MarkValidated(ctx, sessionID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark validated: %w", err)
	}
	return nil
}

// hasSignificantGaps ORs the oracle's two independent signals. Either one
// alone is enough to withhold reveal.
func hasSignificantGaps(cmp *oracle.Comparison) bool {
	return cmp.Gaps.Severity == oracle.SeveritySignificant ||
		cmp.Recommendation.Action == oracle.ActionOfferSharing
}

// closeOpenOffers skips any live share offer for a direction that just
// reached READY. Warn-only: RespondToShareSuggestion independently rejects
// offers whose direction has already completed.
func (e *Engine) closeOpenOffers(ctx context.Context, sessionID, guesserID uuid.UUID) {
	if err := e.store.CloseOpenOffers(ctx, sessionID, guesserID); err != nil {
		e.logger.Warn("failed to close open share offers",
			"session_id", sessionID, "guesser_id", guesserID, "error", err)
	}
}

func (e *Engine) notifyPartner(ctx context.Context, sessionID uuid.UUID, event string, payload map[string]any, excludeUserID uuid.UUID) {
	if err := e.notify.NotifyPartner(ctx, sessionID, event, payload, excludeUserID); err != nil {
		e.logger.Warn("partner notification failed",
			"event", event, "session_id", sessionID, "error", err)
	}
}

func (e *Engine) publishSessionEvent(ctx context.Context, sessionID uuid.UUID, event string, payload map[string]any) {
	if err := e.notify.PublishSessionEvent(ctx, sessionID, event, payload); err != nil {
		e.logger.Warn("session event publish failed",
			"event", event, "session_id", sessionID, "error", err)
	}
}
