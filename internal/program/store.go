package program

import (
	"context"

	"coitrack/pkg/domain"
)

// Store persists programs. Implementations return sentinel errors for
// infrastructure facts; the service translates them.
type Store interface {
	Create(ctx context.Context, p *Program) error
	FindByID(ctx context.Context, id domain.ProgramID) (*Program, error)
	List(ctx context.Context) ([]*Program, error)
}
