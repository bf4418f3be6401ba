package contractor

import (
	"context"
	"sync"

	"coitrack/pkg/domain"
	"coitrack/pkg/platform/sentinel"
)

// InMemoryStore keeps contractors in process memory.
type InMemoryStore struct {
	mu          sync.RWMutex
	contractors map[domain.ContractorID]*Contractor
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{contractors: make(map[domain.ContractorID]*Contractor)}
}

func (s *InMemoryStore) Create(_ context.Context, c *Contractor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contractors[c.ID]; exists {
		return sentinel.ErrConflict
	}
	s.contractors[c.ID] = clone(c)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.ContractorID) (*Contractor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contractors[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

func clone(c *Contractor) *Contractor {
	copied := *c
	copied.Trades = append([]domain.Trade(nil), c.Trades...)
	return &copied
}
