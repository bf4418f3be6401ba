package program

import (
	"context"
	"sort"
	"sync"

	"coitrack/pkg/domain"
	"coitrack/pkg/platform/sentinel"
)

// InMemoryStore keeps programs in process memory. Used in tests and as the
// default wiring when Postgres is not configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	programs map[domain.ProgramID]*Program
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{programs: make(map[domain.ProgramID]*Program)}
}

func (s *InMemoryStore) Create(_ context.Context, p *Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.programs[p.ID]; exists {
		return sentinel.ErrConflict
	}
	cloned := clone(p)
	s.programs[p.ID] = cloned
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.ProgramID) (*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(p), nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Program, 0, len(s.programs))
	for _, p := range s.programs {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// clone deep-copies so callers cannot mutate stored state through aliases.
func clone(p *Program) *Program {
	copied := *p
	copied.Tiers = make([]Tier, len(p.Tiers))
	for i, tier := range p.Tiers {
		t := tier
		t.Trades = domain.NewTradeSet(tier.Trades.Slice()...)
		t.GLEachOccurrence = cloneInt(tier.GLEachOccurrence)
		t.GLAggregate = cloneInt(tier.GLAggregate)
		t.Umbrella = cloneInt(tier.Umbrella)
		copied.Tiers[i] = t
	}
	return &copied
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
