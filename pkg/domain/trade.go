package domain

import (
	"encoding/json"
	"sort"
	"strings"

	dErrors "coitrack/pkg/domain-errors"
)

// Trade is a normalized trade name ("Roofing", "Plumbing"). Tier membership
// and resolution compare trades case-insensitively, so all trades are folded
// at construction time.
type Trade string

// ParseTrade normalizes external input into a Trade.
func ParseTrade(s string) (Trade, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "trade cannot be empty")
	}
	return Trade(strings.ToLower(trimmed)), nil
}

func (t Trade) String() string { return string(t) }

// TradeSet is explicit set membership for tier authoring and resolution.
type TradeSet map[Trade]struct{}

// NewTradeSet builds a set from the given trades.
func NewTradeSet(trades ...Trade) TradeSet {
	set := make(TradeSet, len(trades))
	for _, t := range trades {
		set[t] = struct{}{}
	}
	return set
}

// Contains reports membership.
func (s TradeSet) Contains(t Trade) bool {
	_, ok := s[t]
	return ok
}

// Slice returns the members sorted for stable output.
func (s TradeSet) Slice() []Trade {
	out := make([]Trade, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted array of trade names.
func (s TradeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array of trade names, normalizing each.
func (s *TradeSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set := make(TradeSet, len(names))
	for _, name := range names {
		trade, err := ParseTrade(name)
		if err != nil {
			return err
		}
		set[trade] = struct{}{}
	}
	*s = set
	return nil
}
