package coi

import (
	"context"

	"coitrack/pkg/domain"
)

// Store persists COI records.
//
// Execute is the concurrency discipline for every state transition: the
// implementation loads the record, holds its lock (mutex or SELECT FOR
// UPDATE) across validate and mutate, and writes back with an
// expected-prior-state check. Two concurrent transitions on one COI cannot
// both succeed; the loser's validate sees the winner's committed state and
// fails with a state conflict, or the write itself returns
// sentinel.ErrStaleState.
type Store interface {
	Create(ctx context.Context, c *COI) error
	FindByID(ctx context.Context, id domain.COIID) (*COI, error)
	ListByProject(ctx context.Context, projectID domain.ProjectID) ([]*COI, error)

	// Execute atomically runs validate then mutate against the current
	// record, returning the updated COI. When validate fails nothing is
	// written and its error is returned unwrapped.
	Execute(ctx context.Context, id domain.COIID, validate func(*COI) error, mutate func(*COI)) (*COI, error)
}
