package program

import "coitrack/pkg/domain"

// Resolve determines the coverage a subcontractor with the given trade must
// carry. Pure and deterministic: no storage or clock access.
//
// Resolution order:
//  1. nil program: platform default minimums
//  2. first non-rest tier (in authoring order) whose trade set contains the
//     trade
//  3. the catch-all tier, if any
//  4. the program's own top-level minimums
//
// Earlier tiers claim trades first; the slice order is exactly the authoring
// order and is never re-sorted here.
func Resolve(p *Program, trade domain.Trade) RequirementSet {
	if p == nil {
		return DefaultMinimums()
	}
	var rest *Tier
	for i := range p.Tiers {
		tier := &p.Tiers[i]
		if tier.IsRest {
			if rest == nil {
				rest = tier
			}
			continue
		}
		if tier.Trades.Contains(trade) {
			return applyTier(p.Minimums, tier)
		}
	}
	if rest != nil {
		return applyTier(p.Minimums, rest)
	}
	return p.Minimums
}

func applyTier(base RequirementSet, tier *Tier) RequirementSet {
	if tier.GLEachOccurrence != nil {
		base.GLEachOccurrence = *tier.GLEachOccurrence
	}
	if tier.GLAggregate != nil {
		base.GLAggregate = *tier.GLAggregate
	}
	if tier.Umbrella != nil {
		base.Umbrella = *tier.Umbrella
	}
	return base
}
