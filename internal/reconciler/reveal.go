package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckAndRevealBothIfReady is the dual-direction barrier: both empathy
// attempts are flipped to REVEALED only when both are simultaneously READY.
// Safe and idempotent to call after every single-direction status change.
// The per-session lock plus the conditional two-row update in the store keep
// two near-simultaneous triggers from both observing "only one READY" or
// from double-revealing.
func (e *Engine) CheckAndRevealBothIfReady(ctx context.Context, sessionID uuid.UUID) error {
	return e.locks.WithLock(ctx, "reveal:"+sessionID.String(), func(ctx context.Context) error {
		// Always re-read; the other direction is mutated by the other
		// partner's concurrent requests.
		attempts, err := e.store.SessionAttempts(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session attempts: %w", err)
		}
		if len(attempts) != 2 {
			return nil
		}
		for _, a := range attempts {
			if a.Status != StatusReady {
				return nil
			}
		}

		n, err := e.store.RevealBoth(ctx, sessionID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("reveal attempts: %w", err)
		}
		if n != 2 {
			// The conditional update matched fewer rows than the read:
			// a concurrent caller won the race and owns the notifications.
			e.logger.Warn("reveal matched unexpected row count",
				"session_id", sessionID, "rows", n)
			return nil
		}

		sess, err := e.store.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}

		// One notification per direction: each partner learns their own
		// statement was delivered.
		for _, a := range attempts {
			partner, ok := sess.PartnerOf(a.SourceUserID)
			if !ok {
				continue
			}
			e.notifyPartner(ctx, sessionID, EventEmpathyRevealed, map[string]any{
				"direction": "outgoing",
				"userId":    a.SourceUserID.String(),
			}, partner.ID)
		}

		e.logger.Info("both directions revealed", "session_id", sessionID)
		return nil
	})
}
