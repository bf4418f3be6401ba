package project

import (
	"context"
	"sync"

	"coitrack/pkg/domain"
	"coitrack/pkg/platform/sentinel"
)

// InMemoryStore keeps projects in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	projects map[domain.ProjectID]*Project
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{projects: make(map[domain.ProjectID]*Project)}
}

func (s *InMemoryStore) Create(_ context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return sentinel.ErrConflict
	}
	s.projects[p.ID] = clone(p)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.ProjectID) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(p), nil
}

func clone(p *Project) *Project {
	copied := *p
	copied.AdditionalInsured = append([]string(nil), p.AdditionalInsured...)
	return &copied
}
