package contractor

import (
	"context"
	"errors"
	"strings"

	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/platform/sentinel"
	"coitrack/pkg/requestcontext"
)

// Service orchestrates contractor registration.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateContractorInput carries the registration request. Trades is ordered;
// the first entry becomes the primary trade.
type CreateContractorInput struct {
	Name   string
	Trades []string
}

func (s *Service) CreateContractor(ctx context.Context, input CreateContractorInput) (*Contractor, error) {
	trades := make([]domain.Trade, 0, len(input.Trades))
	for _, raw := range input.Trades {
		trade, err := domain.ParseTrade(raw)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	c, err := New(domain.NewContractorID(), strings.TrimSpace(input.Name), trades, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "contractor already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create contractor")
	}
	return c, nil
}

func (s *Service) GetContractor(ctx context.Context, id domain.ContractorID) (*Contractor, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "contractor not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contractor")
	}
	return c, nil
}

// FindByID satisfies directory lookups from other packages.
func (s *Service) FindByID(ctx context.Context, id domain.ContractorID) (*Contractor, error) {
	return s.store.FindByID(ctx, id)
}
