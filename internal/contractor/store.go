package contractor

import (
	"context"

	"coitrack/pkg/domain"
)

// Store persists contractors.
type Store interface {
	Create(ctx context.Context, c *Contractor) error
	FindByID(ctx context.Context, id domain.ContractorID) (*Contractor, error)
}
