package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/accord/internal/reconciler"
)

// ReplaceResult deletes any prior analysis for the direction and inserts the
// new one. Results are current-latest only, never versioned.
func (s *Store) ReplaceResult(ctx context.Context, rec *reconciler.AnalysisRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM reconciler_results
		WHERE session_id = $1 AND guesser_id = $2`,
		rec.SessionID, rec.GuesserID,
	)
	if err != nil {
		return fmt.Errorf("delete prior result: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reconciler_results
			(id, session_id, guesser_id, subject_id, alignment_score,
			 gap_severity, gap_description, recommended_action,
			 area_hint, guidance_type, prompt_seed, suggested_share_focus, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())`,
		rec.ID, rec.SessionID, rec.GuesserID, rec.SubjectID, rec.Alignment.Score,
		rec.Gaps.Severity, rec.Gaps.Description, rec.Recommendation.Action,
		rec.AreaHint, rec.GuidanceType, rec.PromptSeed, rec.SuggestedShareFocus,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetResult returns the current analysis for a direction, or nil when the
// direction has not been analyzed.
func (s *Store) GetResult(ctx context.Context, sessionID, guesserID uuid.UUID) (*reconciler.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, session_id, guesser_id, subject_id, alignment_score,
		       gap_severity, gap_description, recommended_action,
		       area_hint, guidance_type, prompt_seed, suggested_share_focus
		FROM reconciler_results
		WHERE session_id = $1 AND guesser_id = $2`,
		sessionID, guesserID,
	)

	var rec reconciler.AnalysisRecord
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.GuesserID, &rec.SubjectID, &rec.Alignment.Score,
		&rec.Gaps.Severity, &rec.Gaps.Description, &rec.Recommendation.Action,
		&rec.AreaHint, &rec.GuidanceType, &rec.PromptSeed, &rec.SuggestedShareFocus,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select result: %w", err)
	}
	return &rec, nil
}
