package domain

import dErrors "coitrack/pkg/domain-errors"

// Party is the closed set of roles acting on a COI. The platform routes by
// this sum type with exhaustive handling at the API boundary; there is no
// free-form role string anywhere downstream.
type Party string

const (
	PartyAdmin         Party = "admin"
	PartyGC            Party = "gc"
	PartySubcontractor Party = "subcontractor"
	PartyBroker        Party = "broker"
)

var validParties = map[Party]bool{
	PartyAdmin:         true,
	PartyGC:            true,
	PartySubcontractor: true,
	PartyBroker:        true,
}

// ParseParty constructs a Party from external input (JWT claims, requests).
func ParseParty(s string) (Party, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "party cannot be empty")
	}
	p := Party(s)
	if !validParties[p] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown party %q", s)
	}
	return p, nil
}

// IsValid checks the party against the closed set.
func (p Party) IsValid() bool { return validParties[p] }

func (p Party) String() string { return string(p) }

// AllParties returns the full recipient universe for notification fan-out.
func AllParties() []Party {
	return []Party{PartyGC, PartySubcontractor, PartyBroker, PartyAdmin}
}
