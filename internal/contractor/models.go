// Package contractor tracks trade-tagged subcontractor entities. The primary
// trade drives tier resolution.
package contractor

import (
	"time"

	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
)

// Contractor is a subcontractor entity. Trades is ordered; the first entry
// is the primary trade used for tier resolution.
type Contractor struct {
	ID        domain.ContractorID `json:"id"`
	Name      string              `json:"name"`
	Trades    []domain.Trade      `json:"trades"`
	CreatedAt time.Time           `json:"created_at"`
}

// New validates and constructs a Contractor.
func New(id domain.ContractorID, name string, trades []domain.Trade, now time.Time) (*Contractor, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "contractor name cannot be empty")
	}
	if len(trades) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "contractor must have at least one trade")
	}
	return &Contractor{ID: id, Name: name, Trades: trades, CreatedAt: now}, nil
}

// PrimaryTrade is the first listed trade; it decides which tier applies.
func (c *Contractor) PrimaryTrade() domain.Trade {
	return c.Trades[0]
}
