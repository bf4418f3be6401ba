// Package project tracks construction jobs: who the general contractor is,
// which program governs insurance requirements, and the project facts that
// renewal must recompute rather than copy forward.
package project

import (
	"time"

	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
)

// Project is a construction job owned by a GC. ProgramID is zero when no
// program is attached, in which case platform default minimums apply.
type Project struct {
	ID                domain.ProjectID `json:"id"`
	Name              string           `json:"name"`
	GCID              domain.ActorID   `json:"gc_id"`
	ProgramID         domain.ProgramID `json:"program_id,omitempty"`
	Location          string           `json:"location"`
	AdditionalInsured []string         `json:"additional_insured"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// New validates and constructs a Project.
func New(id domain.ProjectID, name string, gcID domain.ActorID, now time.Time) (*Project, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "project name cannot be empty")
	}
	if gcID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "project must have a general contractor")
	}
	return &Project{
		ID:        id,
		Name:      name,
		GCID:      gcID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
