package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/accord/internal/oracle"
)

// createShareOffer opens the share-suggestion sub-protocol for the subject of
// a direction that analyzed with a significant gap. Any earlier open offer
// for the same direction is superseded by the store.
func (e *Engine) createShareOffer(ctx context.Context, sessionID, guesserID, subjectID uuid.UUID, rec *AnalysisRecord, cmp *oracle.Comparison) (*ShareOffer, error) {
	suggested := cmp.SuggestedContent
	if suggested == "" {
		suggested = cmp.SuggestedShareFocus
	}

	offer := &ShareOffer{
		ID:               uuid.New(),
		SessionID:        sessionID,
		UserID:           subjectID,
		GuesserID:        guesserID,
		ResultID:         rec.ID,
		Status:           OfferPending,
		SuggestedContent: suggested,
		SuggestedReason:  cmp.SuggestedReason,
	}
	if err := e.store.CreateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("create share offer: %w", err)
	}

	// The guesser must never see the suggestion; it quotes the subject.
	e.notifyPartner(ctx, sessionID, EventShareSuggested, map[string]any{
		"userId": subjectID.String(),
		"focus":  cmp.SuggestedShareFocus,
	}, guesserID)

	return offer, nil
}

// ShareSuggestionFor fetches the subject's open share offer, transitioning
// PENDING to OFFERED on first fetch. Returns nil when there is nothing to
// show.
func (e *Engine) ShareSuggestionFor(ctx context.Context, sessionID, userID uuid.UUID) (*ShareOffer, error) {
	offer, err := e.store.OpenOfferFor(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("load share offer: %w", err)
	}
	if offer == nil {
		return nil, nil
	}

	if offer.Status == OfferPending {
		if err := e.store.MarkOfferOffered(ctx, offer.ID); err != nil {
			return nil, fmt.Errorf("mark offer offered: %w", err)
		}
		offer.Status = OfferOffered
	}
	return offer, nil
}

// RespondToShareSuggestion applies the subject's decision on an open offer.
// Accept and refine persist the (possibly edited) content as shared context
// and push the guesser's attempt into REFINING; decline and skip move the
// guesser to NEEDS_WORK, refining without new context. Responding with no
// open offer is a hard error, since it indicates a client/state desync
// rather than a missing resource.
func (e *Engine) RespondToShareSuggestion(ctx context.Context, sessionID, userID uuid.UUID, action ShareAction, refinedContent string) (*ShareResponse, error) {
	offer, err := e.store.OpenOfferFor(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("load share offer: %w", err)
	}
	if offer == nil {
		return nil, ErrNoPendingOffer
	}

	// A direction that completed while the offer sat open makes the offer
	// stale. Accepting it would drag a READY or REVEALED attempt back into
	// refinement and unlock content the reveal froze.
	attempt, err := e.store.GetAttempt(ctx, sessionID, offer.GuesserID)
	if err != nil {
		return nil, fmt.Errorf("load guesser attempt: %w", err)
	}
	if attempt.Status.Completed() {
		if err := e.store.ResolveOffer(ctx, offer.ID, OfferSkipped, ""); err != nil && !errors.Is(err, ErrNoPendingOffer) {
			return nil, fmt.Errorf("skip stale offer: %w", err)
		}
		return nil, ErrNoPendingOffer
	}

	switch action {
	case ShareAccept, ShareRefine:
		content := offer.SuggestedContent
		status := OfferAccepted
		if action == ShareRefine {
			status = OfferRefined
			if refinedContent != "" {
				content = refinedContent
			}
		}

		if err := e.store.ResolveOffer(ctx, offer.ID, status, content); err != nil {
			return nil, err
		}
		if err := e.store.AddSharedContext(ctx, sessionID, userID, content); err != nil {
			return nil, fmt.Errorf("persist shared context: %w", err)
		}
		if err := e.store.UpdateAttemptStatus(ctx, sessionID, offer.GuesserID, StatusRefining); err != nil {
			return nil, fmt.Errorf("move guesser to refining: %w", err)
		}

		// Exclude the responder so they do not re-process their own event.
		e.notifyPartner(ctx, sessionID, EventContextShared, map[string]any{
			"guesserId": offer.GuesserID.String(),
		}, userID)
		e.notifyPartner(ctx, sessionID, EventEmpathyRefining, map[string]any{
			"guesserId": offer.GuesserID.String(),
		}, userID)

		e.logger.Info("share offer resolved",
			"session_id", sessionID,
			"offer_id", offer.ID,
			"status", status,
		)
		return &ShareResponse{Status: status, SharedContent: content}, nil

	case ShareDecline, ShareSkip:
		status := OfferDeclined
		if action == ShareSkip {
			status = OfferSkipped
		}
		if err := e.store.ResolveOffer(ctx, offer.ID, status, ""); err != nil {
			return nil, err
		}

		// No new context is coming; the guesser refines on the hints in
		// the analysis alone.
		if err := e.store.UpdateAttemptStatus(ctx, sessionID, offer.GuesserID, StatusNeedsWork); err != nil {
			return nil, fmt.Errorf("move guesser to needs-work: %w", err)
		}
		e.notifyPartner(ctx, sessionID, EventEmpathyRefining, map[string]any{
			"guesserId": offer.GuesserID.String(),
		}, userID)

		e.logger.Info("share offer resolved",
			"session_id", sessionID,
			"offer_id", offer.ID,
			"status", status,
		)
		return &ShareResponse{Status: status}, nil

	default:
		return nil, fmt.Errorf("unknown share action %q", action)
	}
}
