// Package program models insurance program templates: the default coverage
// minimums a platform operator requires, plus ordered trade-scoped tiers that
// override them. Programs are referenced by projects, never copied.
package program

import (
	"time"

	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
)

// RequirementSet is the coverage a subcontractor must carry, in whole
// currency units. A zero Umbrella minimum means umbrella coverage is not
// required, not "required with zero limit".
type RequirementSet struct {
	GLEachOccurrence int64 `json:"gl_each_occurrence"`
	GLAggregate      int64 `json:"gl_aggregate"`
	WorkersComp      int64 `json:"workers_comp"`
	Auto             int64 `json:"auto"`
	Umbrella         int64 `json:"umbrella"`
}

// UmbrellaRequired reports whether umbrella coverage is required at all.
func (r RequirementSet) UmbrellaRequired() bool { return r.Umbrella > 0 }

func (r RequirementSet) validate() error {
	if r.GLEachOccurrence < 0 || r.GLAggregate < 0 || r.WorkersComp < 0 || r.Auto < 0 || r.Umbrella < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "coverage minimums cannot be negative")
	}
	return nil
}

// DefaultMinimums are the platform's hard-coded requirements for projects
// with no program attached.
func DefaultMinimums() RequirementSet {
	return RequirementSet{
		GLEachOccurrence: 1_000_000,
		GLAggregate:      2_000_000,
		WorkersComp:      1_000_000,
		Auto:             1_000_000,
		Umbrella:         0,
	}
}

// Tier is a named override of GL/Umbrella minimums scoped to an explicit set
// of trades, or marked IsRest to catch any trade not claimed by an earlier
// tier. Tier order is the authoring order and is significant: resolution
// never re-sorts.
type Tier struct {
	Name   string          `json:"name"`
	Trades domain.TradeSet `json:"trades,omitempty"`
	IsRest bool            `json:"is_rest"`

	// Overrides. Nil inherits the program minimum; a set value replaces it,
	// including an explicit zero (umbrella not required for this tier).
	GLEachOccurrence *int64 `json:"gl_each_occurrence,omitempty"`
	GLAggregate      *int64 `json:"gl_aggregate,omitempty"`
	Umbrella         *int64 `json:"umbrella,omitempty"`
}

// Program is the aggregate root for an insurance requirement template.
//
// Invariants:
//   - Name is non-empty
//   - At most one tier is marked IsRest, and it is never the first tier
//   - A trade is claimed by at most one non-rest tier
//   - All minimums are non-negative
//
// Tier invariants are enforced here at authoring time; the resolver assumes
// a validated program.
type Program struct {
	ID                        domain.ProgramID `json:"id"`
	Name                      string           `json:"name"`
	Minimums                  RequirementSet   `json:"minimums"`
	RequiresHoldHarmless      bool             `json:"requires_hold_harmless"`
	RequiresAdditionalInsured bool             `json:"requires_additional_insured"`
	RequiresWaiverSubrogation bool             `json:"requires_waiver_subrogation"`
	Tiers                     []Tier           `json:"tiers"`
	CreatedAt                 time.Time        `json:"created_at"`
	UpdatedAt                 time.Time        `json:"updated_at"`
}

// New validates and constructs a Program.
func New(id domain.ProgramID, name string, minimums RequirementSet, tiers []Tier, now time.Time) (*Program, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "program name cannot be empty")
	}
	if err := minimums.validate(); err != nil {
		return nil, err
	}
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}
	return &Program{
		ID:        id,
		Name:      name,
		Minimums:  minimums,
		Tiers:     tiers,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateTiers enforces the tier authoring invariants.
func ValidateTiers(tiers []Tier) error {
	restSeen := false
	claimed := make(map[domain.Trade]string)
	for i, tier := range tiers {
		if tier.Name == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "tier name cannot be empty")
		}
		if tier.IsRest {
			if i == 0 {
				return dErrors.New(dErrors.CodeInvariantViolation, "catch-all tier cannot be the first tier")
			}
			if restSeen {
				return dErrors.New(dErrors.CodeInvariantViolation, "program can have at most one catch-all tier")
			}
			if len(tier.Trades) > 0 {
				return dErrors.New(dErrors.CodeInvariantViolation, "catch-all tier cannot list trades")
			}
			restSeen = true
			continue
		}
		if len(tier.Trades) == 0 {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "tier %q must claim at least one trade", tier.Name)
		}
		for trade := range tier.Trades {
			if owner, ok := claimed[trade]; ok {
				return dErrors.Newf(dErrors.CodeInvariantViolation,
					"trade %q is already claimed by tier %q", trade, owner)
			}
			claimed[trade] = tier.Name
		}
		for _, override := range []*int64{tier.GLEachOccurrence, tier.GLAggregate, tier.Umbrella} {
			if override != nil && *override < 0 {
				return dErrors.Newf(dErrors.CodeInvariantViolation, "tier %q override cannot be negative", tier.Name)
			}
		}
	}
	return nil
}
