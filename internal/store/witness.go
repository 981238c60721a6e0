package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const (
	kindWitness       = "witness"
	kindSharedContext = "shared_context"
)

// AddWitnessStatement records one of the subject's own statements, the
// ground truth for the partner's direction.
func (s *Store) AddWitnessStatement(ctx context.Context, sessionID, userID uuid.UUID, content string) error {
	return s.addStatement(ctx, sessionID, userID, kindWitness, content)
}

// AddSharedContext records context the subject chose to disclose through the
// share-offer protocol. Fed to later analysis runs alongside the witness
// statements.
func (s *Store) AddSharedContext(ctx context.Context, sessionID, userID uuid.UUID, content string) error {
	return s.addStatement(ctx, sessionID, userID, kindSharedContext, content)
}

func (s *Store) addStatement(ctx context.Context, sessionID, userID uuid.UUID, kind, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO witness_statements (id, session_id, user_id, kind, content, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		uuid.New(), sessionID, userID, kind, content,
	)
	if err != nil {
		return fmt.Errorf("insert %s statement: %w", kind, err)
	}
	return nil
}

func (s *Store) WitnessContent(ctx context.Context, sessionID, userID uuid.UUID) ([]string, error) {
	return s.statements(ctx, sessionID, userID, kindWitness)
}

func (s *Store) SharedContext(ctx context.Context, sessionID, userID uuid.UUID) ([]string, error) {
	return s.statements(ctx, sessionID, userID, kindSharedContext)
}

func (s *Store) statements(ctx context.Context, sessionID, userID uuid.UUID, kind string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT content FROM witness_statements
		WHERE session_id = $1 AND user_id = $2 AND kind = $3
		ORDER BY created_at`,
		sessionID, userID, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("select %s statements: %w", kind, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		out = append(out, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statements: %w", err)
	}
	return out, nil
}
