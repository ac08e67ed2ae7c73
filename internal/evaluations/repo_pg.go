package evaluations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"insight-backend/internal/llm"
	"insight-backend/internal/questions"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new evaluation in pending state.
func (r *PGRepo) Create(ctx context.Context, ev Evaluation) error {
	const query = `
INSERT INTO evaluations (
	id, principal_id, domain, mode, backend, model, status,
	input_words, generated_words, phases, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	phases, err := marshalPhases(ev.Phases)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		ev.ID,
		ev.PrincipalID,
		string(ev.Domain),
		string(ev.Mode),
		string(ev.Backend),
		ev.Model,
		ev.Status,
		ev.InputWords,
		ev.GeneratedWords,
		phases,
		ev.CreatedAt,
	)
	return err
}

// GetByID returns an evaluation by ID.
func (r *PGRepo) GetByID(ctx context.Context, evaluationID string) (Evaluation, error) {
	const query = selectColumns + `
FROM evaluations
WHERE id = $1
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, evaluationID)
	ev, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Evaluation{}, ErrNotFound
		}
		return Evaluation{}, err
	}
	return ev, nil
}

// ListByPrincipal returns evaluations for a principal, newest first.
func (r *PGRepo) ListByPrincipal(ctx context.Context, principalID string, limit, offset int) ([]Evaluation, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}
	const query = selectColumns + `
FROM evaluations
WHERE principal_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, principalID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Evaluation, 0, limit)
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MarkRunning flips a pending evaluation to running.
func (r *PGRepo) MarkRunning(ctx context.Context, evaluationID string, startedAt time.Time) error {
	const query = `
UPDATE evaluations
SET status = $2, started_at = $3
WHERE id = $1`
	result, err := r.DB.ExecContext(ctx, query, evaluationID, StatusRunning, startedAt)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SaveTerminal writes the terminal snapshot exactly once per evaluation.
func (r *PGRepo) SaveTerminal(ctx context.Context, ev Evaluation) error {
	const query = `
UPDATE evaluations
SET status = $2,
    generated_words = $3,
    final_score = $4,
    phases = $5,
    error_code = NULLIF($6, ''),
    error_message = NULLIF($7, ''),
    completed_at = $8
WHERE id = $1 AND status NOT IN ($9, $10)`
	phases, err := marshalPhases(ev.Phases)
	if err != nil {
		return err
	}
	completedAt := ev.CompletedAt
	if completedAt == nil {
		now := time.Now().UTC()
		completedAt = &now
	}
	result, err := r.DB.ExecContext(ctx, query,
		ev.ID,
		ev.Status,
		ev.GeneratedWords,
		nullFloat(ev.FinalScore),
		phases,
		ev.ErrorCode,
		ev.ErrorMessage,
		*completedAt,
		StatusCompleted,
		StatusFailed,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

var _ Repo = (*PGRepo)(nil)

const selectColumns = `
SELECT id, principal_id, domain, mode, backend, model, status,
       input_words, generated_words, final_score, phases,
       error_code, error_message, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (Evaluation, error) {
	var ev Evaluation
	var domain, mode, backend string
	var finalScore sql.NullFloat64
	var phases sql.NullString
	var errorCode, errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&ev.ID,
		&ev.PrincipalID,
		&domain,
		&mode,
		&backend,
		&ev.Model,
		&ev.Status,
		&ev.InputWords,
		&ev.GeneratedWords,
		&finalScore,
		&phases,
		&errorCode,
		&errorMessage,
		&ev.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return Evaluation{}, err
	}
	ev.Domain = questions.Domain(domain)
	ev.Mode = Mode(mode)
	ev.Backend = llm.Backend(backend)
	if finalScore.Valid {
		ev.FinalScore = &finalScore.Float64
	}
	if phases.Valid && phases.String != "" {
		if err := json.Unmarshal([]byte(phases.String), &ev.Phases); err != nil {
			return Evaluation{}, err
		}
	}
	if errorCode.Valid {
		ev.ErrorCode = errorCode.String
	}
	if errorMessage.Valid {
		ev.ErrorMessage = errorMessage.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		ev.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		ev.CompletedAt = &t
	}
	return ev, nil
}

func marshalPhases(phases []PhaseResult) ([]byte, error) {
	if len(phases) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(phases)
}

func nullFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
