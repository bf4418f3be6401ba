package program

import (
	"context"
	"errors"
	"strings"

	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/platform/sentinel"
	"coitrack/pkg/requestcontext"
)

// Service orchestrates program authoring. Tier invariants are enforced here,
// at authoring time, so the resolver can assume a validated program.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateProgramInput carries the authoring request.
type CreateProgramInput struct {
	Name                      string
	Minimums                  RequirementSet
	RequiresHoldHarmless      bool
	RequiresAdditionalInsured bool
	RequiresWaiverSubrogation bool
	Tiers                     []Tier
}

func (s *Service) CreateProgram(ctx context.Context, input CreateProgramInput) (*Program, error) {
	name := strings.TrimSpace(input.Name)
	p, err := New(domain.NewProgramID(), name, input.Minimums, input.Tiers, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	p.RequiresHoldHarmless = input.RequiresHoldHarmless
	p.RequiresAdditionalInsured = input.RequiresAdditionalInsured
	p.RequiresWaiverSubrogation = input.RequiresWaiverSubrogation

	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "program already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create program")
	}
	return p, nil
}

func (s *Service) GetProgram(ctx context.Context, id domain.ProgramID) (*Program, error) {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "program not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load program")
	}
	return p, nil
}

func (s *Service) ListPrograms(ctx context.Context) ([]*Program, error) {
	programs, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list programs")
	}
	return programs, nil
}

// RequirementsFor resolves the coverage minimums for a trade under an
// optional program. A zero program ID means no program is attached and the
// platform defaults apply.
func (s *Service) RequirementsFor(ctx context.Context, programID domain.ProgramID, trade domain.Trade) (RequirementSet, error) {
	if programID.IsZero() {
		return Resolve(nil, trade), nil
	}
	p, err := s.GetProgram(ctx, programID)
	if err != nil {
		return RequirementSet{}, err
	}
	return Resolve(p, trade), nil
}
