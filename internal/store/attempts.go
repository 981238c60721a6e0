package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/accord/internal/reconciler"
)

const attemptColumns = `id, session_id, source_user_id, content, status, revision_count, delivery_status, shared_at, revealed_at, delivered_at, seen_at`

func scanAttempt(row pgx.Row) (*reconciler.EmpathyAttempt, error) {
	var a reconciler.EmpathyAttempt
	err := row.Scan(
		&a.ID, &a.SessionID, &a.SourceUserID, &a.Content, &a.Status,
		&a.RevisionCount, &a.DeliveryStatus,
		&a.SharedAt, &a.RevealedAt, &a.DeliveredAt, &a.SeenAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAttempt(ctx context.Context, sessionID, userID uuid.UUID) (*reconciler.EmpathyAttempt, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+attemptColumns+`
		FROM empathy_attempts
		WHERE session_id = $1 AND source_user_id = $2`,
		sessionID, userID,
	)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, reconciler.ErrMissingAttempt
	}
	if err != nil {
		return nil, fmt.Errorf("select attempt: %w", err)
	}
	return a, nil
}

func (s *Store) SessionAttempts(ctx context.Context, sessionID uuid.UUID) ([]reconciler.EmpathyAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM empathy_attempts
		WHERE session_id = $1
		ORDER BY shared_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("select session attempts: %w", err)
	}
	defer rows.Close()

	var attempts []reconciler.EmpathyAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// UpsertAttempt creates the attempt on first submission and supersedes the
// content on resubmission, bumping revision_count. Content is locked once
// the attempt has been revealed.
func (s *Store) UpsertAttempt(ctx context.Context, sessionID, userID uuid.UUID, content string) (*reconciler.EmpathyAttempt, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO empathy_attempts
			(id, session_id, source_user_id, content, status, revision_count, delivery_status, shared_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, now())
		ON CONFLICT (session_id, source_user_id) DO UPDATE SET
			content = EXCLUDED.content,
			status = EXCLUDED.status,
			revision_count = empathy_attempts.revision_count + 1
		WHERE empathy_attempts.status NOT IN ($7, $8)
		RETURNING `+attemptColumns,
		uuid.New(), sessionID, userID, content,
		reconciler.StatusAnalyzing, reconciler.DeliveryPending,
		reconciler.StatusRevealed, reconciler.StatusValidated,
	)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict row exists but the guard rejected the update.
		return nil, reconciler.ErrAlreadyRevealed
	}
	if err != nil {
		return nil, fmt.Errorf("upsert attempt: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateAttemptStatus(ctx context.Context, sessionID, userID uuid.UUID, status reconciler.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE empathy_attempts SET status = $1
		WHERE session_id = $2 AND source_user_id = $3`,
		status, sessionID, userID,
	)
	if err != nil {
		return fmt.Errorf("update attempt status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return reconciler.ErrMissingAttempt
	}
	return nil
}

// RevealBoth flips both attempts to REVEALED/DELIVERED in one transaction,
// but only when both are simultaneously READY. The row locks plus the
// conditional update are what make the reveal barrier race-free: two
// concurrent callers serialize here, and the loser sees zero rows.
func (s *Store) RevealBoth(ctx context.Context, sessionID uuid.UUID, at time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT status FROM empathy_attempts
		WHERE session_id = $1
		FOR UPDATE`,
		sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("lock attempts: %w", err)
	}
	var statuses []reconciler.Status
	for rows.Next() {
		var st reconciler.Status
		if err := rows.Scan(&st); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan status: %w", err)
		}
		statuses = append(statuses, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate statuses: %w", err)
	}

	if len(statuses) != 2 {
		return 0, tx.Commit(ctx)
	}
	for _, st := range statuses {
		if st != reconciler.StatusReady {
			return 0, tx.Commit(ctx)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE empathy_attempts SET
			status = $1,
			revealed_at = $2,
			delivery_status = $3,
			delivered_at = $2
		WHERE session_id = $4 AND status = $5`,
		reconciler.StatusRevealed, at, reconciler.DeliveryDelivered,
		sessionID, reconciler.StatusReady,
	)
	if err != nil {
		return 0, fmt.Errorf("reveal attempts: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkValidated records the owner's sign-off on a revealed attempt. seen_at
// is set once and never overwritten.
func (s *Store) MarkValidated(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE empathy_attempts SET
			status = $1,
			seen_at = COALESCE(seen_at, $2)
		WHERE session_id = $3 AND source_user_id = $4 AND status IN ($1, $5)`,
		reconciler.StatusValidated, at, sessionID, userID, reconciler.StatusRevealed,
	)
	if err != nil {
		return fmt.Errorf("mark validated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return reconciler.ErrNotRevealed
	}
	return nil
}
