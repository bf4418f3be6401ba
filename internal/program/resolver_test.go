package program

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coitrack/pkg/domain"
)

func int64ptr(v int64) *int64 { return &v }

func testProgram(t *testing.T, minimums RequirementSet, tiers []Tier) *Program {
	t.Helper()
	p, err := New(domain.NewProgramID(), "test program", minimums, tiers, time.Now())
	require.NoError(t, err)
	return p
}

func Test_Resolve_NilProgram_UsesDefaults(t *testing.T) {
	reqs := Resolve(nil, "roofing")
	assert.Equal(t, DefaultMinimums(), reqs)
	assert.False(t, reqs.UmbrellaRequired())
}

func Test_Resolve_NoTiers_UsesProgramMinimums(t *testing.T) {
	minimums := RequirementSet{
		GLEachOccurrence: 2_000_000,
		GLAggregate:      4_000_000,
		WorkersComp:      1_000_000,
		Auto:             1_000_000,
		Umbrella:         5_000_000,
	}
	p := testProgram(t, minimums, nil)

	assert.Equal(t, minimums, Resolve(p, "roofing"))
}

func Test_Resolve_TierMatch_OverridesApply(t *testing.T) {
	p := testProgram(t, DefaultMinimums(), []Tier{
		{
			Name:             "high hazard",
			Trades:           domain.NewTradeSet("roofing", "demolition"),
			GLEachOccurrence: int64ptr(2_000_000),
			Umbrella:         int64ptr(5_000_000),
		},
	})

	reqs := Resolve(p, "roofing")
	assert.Equal(t, int64(2_000_000), reqs.GLEachOccurrence)
	assert.Equal(t, int64(5_000_000), reqs.Umbrella)
	assert.True(t, reqs.UmbrellaRequired())
	// Untouched fields inherit the program minimums.
	assert.Equal(t, DefaultMinimums().GLAggregate, reqs.GLAggregate)
	assert.Equal(t, DefaultMinimums().WorkersComp, reqs.WorkersComp)
}

func Test_Resolve_FirstMatchingTierWins(t *testing.T) {
	p := testProgram(t, DefaultMinimums(), []Tier{
		{
			Name:     "first",
			Trades:   domain.NewTradeSet("plumbing"),
			Umbrella: int64ptr(3_000_000),
		},
		{
			Name:   "rest",
			IsRest: true,
		},
	})

	// Authoring order decides; the catch-all never shadows an explicit tier.
	assert.Equal(t, int64(3_000_000), Resolve(p, "plumbing").Umbrella)
}

func Test_Resolve_UnmatchedTrade_FallsToRestTier(t *testing.T) {
	p := testProgram(t, DefaultMinimums(), []Tier{
		{
			Name:     "high hazard",
			Trades:   domain.NewTradeSet("roofing"),
			Umbrella: int64ptr(5_000_000),
		},
		{
			Name:     "everyone else",
			IsRest:   true,
			Umbrella: int64ptr(1_000_000),
		},
	})

	reqs := Resolve(p, "painting")
	assert.Equal(t, int64(1_000_000), reqs.Umbrella)
}

func Test_Resolve_UnmatchedTrade_NoRestTier_UsesMinimums(t *testing.T) {
	p := testProgram(t, DefaultMinimums(), []Tier{
		{
			Name:     "high hazard",
			Trades:   domain.NewTradeSet("roofing"),
			Umbrella: int64ptr(5_000_000),
		},
	})

	assert.Equal(t, p.Minimums, Resolve(p, "painting"))
}

func Test_Resolve_ExplicitZeroOverride_DisablesUmbrella(t *testing.T) {
	minimums := DefaultMinimums()
	minimums.Umbrella = 2_000_000
	p := testProgram(t, minimums, []Tier{
		{
			Name:     "low risk",
			Trades:   domain.NewTradeSet("painting"),
			Umbrella: int64ptr(0),
		},
	})

	reqs := Resolve(p, "painting")
	assert.Zero(t, reqs.Umbrella)
	assert.False(t, reqs.UmbrellaRequired())
	// A different trade still carries the program-level umbrella minimum.
	assert.True(t, Resolve(p, "roofing").UmbrellaRequired())
}

// Mirrors the canonical program shape: a high-hazard tier with raised GL and
// umbrella, and a catch-all for every other trade.
func Test_Resolve_TieredProgramScenario(t *testing.T) {
	p := testProgram(t, RequirementSet{
		GLEachOccurrence: 1_000_000,
		GLAggregate:      2_000_000,
		WorkersComp:      1_000_000,
		Auto:             1_000_000,
	}, []Tier{
		{
			Name:             "hazardous trades",
			Trades:           domain.NewTradeSet("roofing", "scaffolding", "demolition"),
			GLEachOccurrence: int64ptr(2_000_000),
			GLAggregate:      int64ptr(4_000_000),
			Umbrella:         int64ptr(5_000_000),
		},
		{
			Name:   "standard trades",
			IsRest: true,
		},
	})

	roofing := Resolve(p, "roofing")
	assert.Equal(t, int64(2_000_000), roofing.GLEachOccurrence)
	assert.Equal(t, int64(4_000_000), roofing.GLAggregate)
	assert.Equal(t, int64(5_000_000), roofing.Umbrella)

	plumbing := Resolve(p, "plumbing")
	assert.Equal(t, int64(1_000_000), plumbing.GLEachOccurrence)
	assert.Equal(t, int64(2_000_000), plumbing.GLAggregate)
	assert.False(t, plumbing.UmbrellaRequired())

	// Workers comp and auto are never tier-overridden.
	assert.Equal(t, roofing.WorkersComp, plumbing.WorkersComp)
	assert.Equal(t, roofing.Auto, plumbing.Auto)
}
