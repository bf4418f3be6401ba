package holdharmless

import (
	"context"
	"sync"

	"coitrack/pkg/domain"
	"coitrack/pkg/platform/sentinel"
)

// InMemoryStore keeps agreements in process memory, indexed by both the
// agreement ID and the owning COI.
type InMemoryStore struct {
	mu         sync.RWMutex
	agreements map[domain.HoldHarmlessID]*Agreement
	byCOI      map[domain.COIID]domain.HoldHarmlessID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		agreements: make(map[domain.HoldHarmlessID]*Agreement),
		byCOI:      make(map[domain.COIID]domain.HoldHarmlessID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, a *Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agreements[a.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byCOI[a.COIID]; exists {
		return sentinel.ErrConflict
	}
	s.agreements[a.ID] = cloneAgreement(a)
	s.byCOI[a.COIID] = a.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.HoldHarmlessID) (*Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agreements[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAgreement(a), nil
}

func (s *InMemoryStore) FindByCOI(_ context.Context, coiID domain.COIID) (*Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCOI[coiID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAgreement(s.agreements[id]), nil
}

func (s *InMemoryStore) Execute(_ context.Context, id domain.HoldHarmlessID, validate func(*Agreement) error, mutate func(*Agreement)) (*Agreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.agreements[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneAgreement(stored)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.agreements[id] = working
	return cloneAgreement(working), nil
}

func cloneAgreement(a *Agreement) *Agreement {
	copied := *a
	if a.SubcontractorSignature != nil {
		sig := *a.SubcontractorSignature
		copied.SubcontractorSignature = &sig
	}
	if a.GCSignature != nil {
		sig := *a.GCSignature
		copied.GCSignature = &sig
	}
	return &copied
}
