package handler

import (
	"strings"

	"coitrack/internal/program"
	id "coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
)

// TierRequest is one tier in the authoring request. Trade names are
// normalized during validation; override fields are pointers so an explicit
// zero survives.
type TierRequest struct {
	Name             string   `json:"name"`
	Trades           []string `json:"trades,omitempty"`
	IsRest           bool     `json:"is_rest,omitempty"`
	GLEachOccurrence *int64   `json:"gl_each_occurrence,omitempty"`
	GLAggregate      *int64   `json:"gl_aggregate,omitempty"`
	Umbrella         *int64   `json:"umbrella,omitempty"`
}

// CreateProgramRequest is the HTTP request body for POST /programs.
type CreateProgramRequest struct {
	Name                      string                 `json:"name"`
	Minimums                  program.RequirementSet `json:"minimums"`
	RequiresHoldHarmless      bool                   `json:"requires_hold_harmless,omitempty"`
	RequiresAdditionalInsured bool                   `json:"requires_additional_insured,omitempty"`
	RequiresWaiverSubrogation bool                   `json:"requires_waiver_subrogation,omitempty"`
	Tiers                     []TierRequest          `json:"tiers,omitempty"`

	parsedTiers []program.Tier
}

func (r *CreateProgramRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	tiers := make([]program.Tier, 0, len(r.Tiers))
	for _, tr := range r.Tiers {
		tier := program.Tier{
			Name:             strings.TrimSpace(tr.Name),
			IsRest:           tr.IsRest,
			GLEachOccurrence: tr.GLEachOccurrence,
			GLAggregate:      tr.GLAggregate,
			Umbrella:         tr.Umbrella,
		}
		if len(tr.Trades) > 0 {
			tier.Trades = make(id.TradeSet, len(tr.Trades))
			for _, raw := range tr.Trades {
				trade, err := id.ParseTrade(raw)
				if err != nil {
					return err
				}
				tier.Trades[trade] = struct{}{}
			}
		}
		tiers = append(tiers, tier)
	}
	// Full tier invariants run in the service; this catches them early for a
	// better error position.
	if err := program.ValidateTiers(tiers); err != nil {
		return err
	}
	r.parsedTiers = tiers
	return nil
}

// ToInput converts the validated request into the service input.
func (r *CreateProgramRequest) ToInput() program.CreateProgramInput {
	return program.CreateProgramInput{
		Name:                      r.Name,
		Minimums:                  r.Minimums,
		RequiresHoldHarmless:      r.RequiresHoldHarmless,
		RequiresAdditionalInsured: r.RequiresAdditionalInsured,
		RequiresWaiverSubrogation: r.RequiresWaiverSubrogation,
		Tiers:                     r.parsedTiers,
	}
}
