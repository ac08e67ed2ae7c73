package evaluations

import (
	"context"
	"time"
)

// Repo defines persistence operations for evaluations. The running engine
// never goes through it mid-phase: rows are written at creation, at the
// running transition and once more with the terminal snapshot.
type Repo interface {
	Create(ctx context.Context, ev Evaluation) error
	GetByID(ctx context.Context, evaluationID string) (Evaluation, error)
	ListByPrincipal(ctx context.Context, principalID string, limit, offset int) ([]Evaluation, error)
	MarkRunning(ctx context.Context, evaluationID string, startedAt time.Time) error
	SaveTerminal(ctx context.Context, ev Evaluation) error
}
