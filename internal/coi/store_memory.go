package coi

import (
	"context"
	"sort"
	"sync"

	"coitrack/pkg/domain"
	"coitrack/pkg/platform/sentinel"
)

// InMemoryStore keeps COI records in process memory. The store mutex is held
// across Execute's validate and mutate, which gives the same serialization
// the Postgres store gets from SELECT FOR UPDATE.
type InMemoryStore struct {
	mu   sync.RWMutex
	cois map[domain.COIID]*COI
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{cois: make(map[domain.COIID]*COI)}
}

func (s *InMemoryStore) Create(_ context.Context, c *COI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cois[c.ID]; exists {
		return sentinel.ErrConflict
	}
	s.cois[c.ID] = cloneCOI(c)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.COIID) (*COI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cois[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCOI(c), nil
}

func (s *InMemoryStore) ListByProject(_ context.Context, projectID domain.ProjectID) ([]*COI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*COI
	for _, c := range s.cois {
		if c.ProjectID == projectID {
			out = append(out, cloneCOI(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, id domain.COIID, validate func(*COI) error, mutate func(*COI)) (*COI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.cois[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneCOI(stored)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.cois[id] = working
	return cloneCOI(working), nil
}

func cloneCOI(c *COI) *COI {
	copied := *c
	copied.Policies = make(map[PolicyType]Policy, len(c.Policies))
	for pt, p := range c.Policies {
		copied.Policies[pt] = p
	}
	copied.ReviewNotes = append([]ReviewNote(nil), c.ReviewNotes...)
	copied.AdditionalInsured = append([]string(nil), c.AdditionalInsured...)
	if c.Broker != nil {
		broker := *c.Broker
		if c.Broker.Global != nil {
			contact := *c.Broker.Global
			broker.Global = &contact
		}
		if c.Broker.PerPolicy != nil {
			perPolicy := make(map[PolicyType]BrokerContact, len(c.Broker.PerPolicy))
			for pt, contact := range c.Broker.PerPolicy {
				perPolicy[pt] = contact
			}
			broker.PerPolicy = perPolicy
		}
		copied.Broker = &broker
	}
	return &copied
}
