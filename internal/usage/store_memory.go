package usage

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	meters map[string]Meter
}

func newMemoryStore() *memoryStore {
	return &memoryStore{meters: make(map[string]Meter)}
}

func (s *memoryStore) Get(ctx context.Context, principalID string) (Meter, error) {
	if err := ctx.Err(); err != nil {
		return Meter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meters[principalID]
	if !ok {
		return Meter{PrincipalID: principalID}, nil
	}
	return m, nil
}

func (s *memoryStore) Record(ctx context.Context, principalID string, generatedWords int) (Meter, error) {
	if err := ctx.Err(); err != nil {
		return Meter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meters[principalID]
	m.PrincipalID = principalID
	m.Evaluations++
	m.GeneratedWords += generatedWords
	m.UpdatedAt = time.Now().UTC()
	s.meters[principalID] = m
	return m, nil
}
