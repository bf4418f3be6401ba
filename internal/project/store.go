package project

import (
	"context"

	"coitrack/pkg/domain"
)

// Store persists projects.
type Store interface {
	Create(ctx context.Context, p *Project) error
	FindByID(ctx context.Context, id domain.ProjectID) (*Project, error)
}
