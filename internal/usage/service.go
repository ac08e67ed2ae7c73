package usage

import "context"

type store interface {
	Get(ctx context.Context, principalID string) (Meter, error)
	Record(ctx context.Context, principalID string, generatedWords int) (Meter, error)
}

// Service manages metering data via an underlying store.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// Get returns the current meter for a principal; absent principals read as
// a zero meter.
func (s *Service) Get(ctx context.Context, principalID string) (Meter, error) {
	return s.store.Get(ctx, principalID)
}

// Record adds one finished evaluation and its generated word count to the
// principal's meter.
func (s *Service) Record(ctx context.Context, principalID string, generatedWords int) (Meter, error) {
	return s.store.Record(ctx, principalID, generatedWords)
}
