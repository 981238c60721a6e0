package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/accord/internal/reconciler"
)

// CreateOffer inserts a new share offer and supersedes any open offer for the
// same direction, so resubmission cycles never leave two live offers.
func (s *Store) CreateOffer(ctx context.Context, offer *reconciler.ShareOffer) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE share_offers SET status = $1, resolved_at = now()
		WHERE session_id = $2 AND guesser_id = $3 AND status IN ($4, $5)`,
		reconciler.OfferSkipped, offer.SessionID, offer.GuesserID,
		reconciler.OfferPending, reconciler.OfferOffered,
	)
	if err != nil {
		return fmt.Errorf("supersede open offers: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO share_offers
			(id, session_id, user_id, guesser_id, result_id, status,
			 suggested_content, suggested_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		offer.ID, offer.SessionID, offer.UserID, offer.GuesserID, offer.ResultID,
		offer.Status, offer.SuggestedContent, offer.SuggestedReason,
	)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// OpenOfferFor returns the subject's live offer, or nil when none exists.
func (s *Store) OpenOfferFor(ctx context.Context, sessionID, userID uuid.UUID) (*reconciler.ShareOffer, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, session_id, user_id, guesser_id, result_id, status,
		       suggested_content, suggested_reason, COALESCE(response_content, '')
		FROM share_offers
		WHERE session_id = $1 AND user_id = $2 AND status IN ($3, $4)
		ORDER BY created_at DESC
		LIMIT 1`,
		sessionID, userID, reconciler.OfferPending, reconciler.OfferOffered,
	)

	var o reconciler.ShareOffer
	err := row.Scan(
		&o.ID, &o.SessionID, &o.UserID, &o.GuesserID, &o.ResultID, &o.Status,
		&o.SuggestedContent, &o.SuggestedReason, &o.ResponseContent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select offer: %w", err)
	}
	return &o, nil
}

func (s *Store) MarkOfferOffered(ctx context.Context, offerID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE share_offers SET status = $1, offered_at = now()
		WHERE id = $2 AND status = $3`,
		reconciler.OfferOffered, offerID, reconciler.OfferPending,
	)
	if err != nil {
		return fmt.Errorf("mark offer offered: %w", err)
	}
	return nil
}

// CloseOpenOffers skips any live offer for a direction, used when the
// direction completes and shared context can no longer help it.
func (s *Store) CloseOpenOffers(ctx context.Context, sessionID, guesserID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE share_offers SET status = $1, resolved_at = now()
		WHERE session_id = $2 AND guesser_id = $3 AND status IN ($4, $5)`,
		reconciler.OfferSkipped, sessionID, guesserID,
		reconciler.OfferPending, reconciler.OfferOffered,
	)
	if err != nil {
		return fmt.Errorf("close open offers: %w", err)
	}
	return nil
}

// ResolveOffer moves an open offer to a terminal status. The status guard
// makes resolution exclusive: a second response finds zero matching rows.
func (s *Store) ResolveOffer(ctx context.Context, offerID uuid.UUID, status reconciler.OfferStatus, responseContent string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE share_offers SET status = $1, response_content = $2, resolved_at = now()
		WHERE id = $3 AND status IN ($4, $5)`,
		status, responseContent, offerID,
		reconciler.OfferPending, reconciler.OfferOffered,
	)
	if err != nil {
		return fmt.Errorf("resolve offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return reconciler.ErrNoPendingOffer
	}
	return nil
}
