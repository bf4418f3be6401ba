package project

import (
	"context"
	"errors"
	"strings"

	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/platform/sentinel"
	"coitrack/pkg/requestcontext"
)

// Service orchestrates project registration.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateProjectInput carries the registration request.
type CreateProjectInput struct {
	Name              string
	GCID              domain.ActorID
	ProgramID         domain.ProgramID
	Location          string
	AdditionalInsured []string
}

func (s *Service) CreateProject(ctx context.Context, input CreateProjectInput) (*Project, error) {
	p, err := New(domain.NewProjectID(), strings.TrimSpace(input.Name), input.GCID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	p.ProgramID = input.ProgramID
	p.Location = strings.TrimSpace(input.Location)
	p.AdditionalInsured = input.AdditionalInsured

	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "project already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create project")
	}
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, id domain.ProjectID) (*Project, error) {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load project")
	}
	return p, nil
}
