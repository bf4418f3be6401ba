package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: unique constraint or optimistic-concurrency loss
// - ErrStaleState: expected-prior-state check failed during a transition write
// - ErrAlreadyUsed: resource already consumed (e.g. hold-harmless already generated)
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrStaleState  = errors.New("stale state")
	ErrAlreadyUsed = errors.New("already used")
)
