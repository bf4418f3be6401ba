package holdharmless

import (
	"context"

	"coitrack/pkg/domain"
)

// Store persists hold-harmless agreements.
//
// Create must fail with sentinel.ErrConflict when an agreement already exists
// for the COI; generation is idempotent on top of that guarantee. Execute
// follows the same contract as the COI store: validate and mutate run while
// the record is locked, and a concurrent writer surfaces as
// sentinel.ErrStaleState rather than a lost update.
type Store interface {
	Create(ctx context.Context, a *Agreement) error
	FindByID(ctx context.Context, id domain.HoldHarmlessID) (*Agreement, error)
	FindByCOI(ctx context.Context, coiID domain.COIID) (*Agreement, error)
	Execute(ctx context.Context, id domain.HoldHarmlessID, validate func(*Agreement) error, mutate func(*Agreement)) (*Agreement, error)
}
