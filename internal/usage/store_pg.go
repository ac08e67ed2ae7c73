package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed metering store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db}
}

func (s *pgStore) Get(ctx context.Context, principalID string) (Meter, error) {
	const query = `
SELECT principal_id, evaluations, generated_words, updated_at
FROM usage_meter
WHERE principal_id = $1`
	var m Meter
	err := s.DB.QueryRowContext(ctx, query, principalID).Scan(
		&m.PrincipalID,
		&m.Evaluations,
		&m.GeneratedWords,
		&m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Meter{PrincipalID: principalID}, nil
	}
	if err != nil {
		return Meter{}, err
	}
	return m, nil
}

func (s *pgStore) Record(ctx context.Context, principalID string, generatedWords int) (Meter, error) {
	const query = `
INSERT INTO usage_meter (principal_id, evaluations, generated_words, updated_at)
VALUES ($1, 1, $2, $3)
ON CONFLICT (principal_id) DO UPDATE
SET evaluations = usage_meter.evaluations + 1,
    generated_words = usage_meter.generated_words + EXCLUDED.generated_words,
    updated_at = EXCLUDED.updated_at
RETURNING principal_id, evaluations, generated_words, updated_at`
	var m Meter
	err := s.DB.QueryRowContext(ctx, query, principalID, generatedWords, time.Now().UTC()).Scan(
		&m.PrincipalID,
		&m.Evaluations,
		&m.GeneratedWords,
		&m.UpdatedAt,
	)
	if err != nil {
		return Meter{}, err
	}
	return m, nil
}
