package evaluations

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores evaluations in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu          sync.RWMutex
	byID        map[string]Evaluation
	byPrincipal map[string][]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:        make(map[string]Evaluation),
		byPrincipal: make(map[string][]string),
	}
}

// Create stores the evaluation.
func (r *MemoryRepo) Create(ctx context.Context, ev Evaluation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[ev.ID] = ev
	r.byPrincipal[ev.PrincipalID] = append(r.byPrincipal[ev.PrincipalID], ev.ID)
	return nil
}

// GetByID returns an evaluation by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, evaluationID string) (Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.byID[evaluationID]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	return ev, nil
}

// ListByPrincipal returns evaluations for a principal, newest first, with
// limit/offset.
func (r *MemoryRepo) ListByPrincipal(ctx context.Context, principalID string, limit, offset int) ([]Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	r.mu.RLock()
	ids := r.byPrincipal[principalID]
	all := make([]Evaluation, 0, len(ids))
	for _, id := range ids {
		all = append(all, r.byID[id])
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []Evaluation{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// MarkRunning flips a pending evaluation to running.
func (r *MemoryRepo) MarkRunning(ctx context.Context, evaluationID string, startedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.byID[evaluationID]
	if !ok {
		return ErrNotFound
	}
	ev.Status = StatusRunning
	ev.StartedAt = &startedAt
	r.byID[evaluationID] = ev
	return nil
}

// SaveTerminal overwrites the stored row with the terminal snapshot.
func (r *MemoryRepo) SaveTerminal(ctx context.Context, ev Evaluation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[ev.ID]; !ok {
		return ErrNotFound
	}
	if ev.CompletedAt == nil {
		now := time.Now().UTC()
		ev.CompletedAt = &now
	}
	r.byID[ev.ID] = ev
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
