package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// CloudStore keeps each user's sync document as a JSONB row, playing the
// remote document collaborator for self-hosted deployments.
type CloudStore struct {
	pool *pgxpool.Pool
}

func NewCloudStore(pool *pgxpool.Pool) *CloudStore {
	return &CloudStore{pool: pool}
}

func (s *CloudStore) ReadUserDocument(ctx context.Context, userID string) (*domain.UserData, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM user_documents WHERE user_id=$1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user document: %w", err)
	}
	var data domain.UserData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal user document: %w", err)
	}
	return &data, nil
}

func (s *CloudStore) WriteUserDocument(ctx context.Context, userID string, data domain.UserData, merge bool) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal user document: %w", err)
	}

	var query string
	if merge {
		// Field-level merge: incoming top-level fields overwrite, the
		// rest of the stored document survives.
		query = `INSERT INTO user_documents (user_id, data, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (user_id) DO UPDATE
			SET data = user_documents.data || EXCLUDED.data, updated_at = now()`
	} else {
		query = `INSERT INTO user_documents (user_id, data, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (user_id) DO UPDATE
			SET data = EXCLUDED.data, updated_at = now()`
	}
	if _, err := s.pool.Exec(ctx, query, userID, raw); err != nil {
		return fmt.Errorf("write user document: %w", err)
	}
	return nil
}

func (s *CloudStore) UpdateField(ctx context.Context, userID, field string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal field %s: %w", field, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_documents
		 SET data = jsonb_set(data, ARRAY[$2], $3::jsonb, true), updated_at = now()
		 WHERE user_id = $1`,
		userID, field, raw)
	if err != nil {
		return fmt.Errorf("update field %s: %w", field, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update field %s: no document for user %s", field, userID)
	}
	return nil
}
