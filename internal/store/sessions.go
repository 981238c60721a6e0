package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/accord/internal/reconciler"
)

// CreateSession persists a two-participant session.
func (s *Store) CreateSession(ctx context.Context, sess *reconciler.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, partner_a_id, partner_a_name, partner_b_id, partner_b_name, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		sess.ID, sess.PartnerA.ID, sess.PartnerA.DisplayName, sess.PartnerB.ID, sess.PartnerB.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (*reconciler.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, partner_a_id, partner_a_name, partner_b_id, partner_b_name
		FROM sessions
		WHERE id = $1`,
		sessionID,
	)

	var sess reconciler.Session
	err := row.Scan(&sess.ID, &sess.PartnerA.ID, &sess.PartnerA.DisplayName, &sess.PartnerB.ID, &sess.PartnerB.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, reconciler.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &sess, nil
}
