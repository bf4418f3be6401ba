// Package domain holds shared value types: typed IDs, the party sum type,
// and trade names. Typed IDs prevent cross-entity assignment at compile time;
// parse at trust boundaries, never cast raw input.
package domain

import (
	"github.com/google/uuid"

	dErrors "coitrack/pkg/domain-errors"
)

type (
	// ProgramID identifies an insurance program template.
	ProgramID uuid.UUID
	// ProjectID identifies a construction project.
	ProjectID uuid.UUID
	// ContractorID identifies a subcontractor entity.
	ContractorID uuid.UUID
	// COIID identifies a certificate-of-insurance record.
	COIID uuid.UUID
	// HoldHarmlessID identifies a hold-harmless agreement.
	HoldHarmlessID uuid.UUID
	// ActorID identifies the authenticated actor behind a request. It is not
	// entity-typed because admins, GCs, subcontractors and brokers all act.
	ActorID uuid.UUID
)

func (i ProgramID) String() string      { return uuid.UUID(i).String() }
func (i ProjectID) String() string      { return uuid.UUID(i).String() }
func (i ContractorID) String() string   { return uuid.UUID(i).String() }
func (i COIID) String() string          { return uuid.UUID(i).String() }
func (i HoldHarmlessID) String() string { return uuid.UUID(i).String() }
func (i ActorID) String() string        { return uuid.UUID(i).String() }

func (i ProgramID) IsZero() bool      { return uuid.UUID(i) == uuid.Nil }
func (i ProjectID) IsZero() bool      { return uuid.UUID(i) == uuid.Nil }
func (i ContractorID) IsZero() bool   { return uuid.UUID(i) == uuid.Nil }
func (i COIID) IsZero() bool          { return uuid.UUID(i) == uuid.Nil }
func (i HoldHarmlessID) IsZero() bool { return uuid.UUID(i) == uuid.Nil }
func (i ActorID) IsZero() bool        { return uuid.UUID(i) == uuid.Nil }

// AsActor views a contractor identity as an authenticated actor identity,
// for comparing a session's actor against a COI's subcontractor reference.
func (i ContractorID) AsActor() ActorID { return ActorID(i) }

func NewProgramID() ProgramID           { return ProgramID(uuid.New()) }
func NewProjectID() ProjectID           { return ProjectID(uuid.New()) }
func NewContractorID() ContractorID     { return ContractorID(uuid.New()) }
func NewCOIID() COIID                   { return COIID(uuid.New()) }
func NewHoldHarmlessID() HoldHarmlessID { return HoldHarmlessID(uuid.New()) }

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id cannot be empty", kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s id", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id cannot be nil", kind)
	}
	return parsed, nil
}

// ParseProgramID validates external input into a ProgramID.
func ParseProgramID(s string) (ProgramID, error) {
	u, err := parseUUID(s, "program")
	return ProgramID(u), err
}

// ParseProjectID validates external input into a ProjectID.
func ParseProjectID(s string) (ProjectID, error) {
	u, err := parseUUID(s, "project")
	return ProjectID(u), err
}

// ParseContractorID validates external input into a ContractorID.
func ParseContractorID(s string) (ContractorID, error) {
	u, err := parseUUID(s, "contractor")
	return ContractorID(u), err
}

// ParseCOIID validates external input into a COIID.
func ParseCOIID(s string) (COIID, error) {
	u, err := parseUUID(s, "coi")
	return COIID(u), err
}

// ParseHoldHarmlessID validates external input into a HoldHarmlessID.
func ParseHoldHarmlessID(s string) (HoldHarmlessID, error) {
	u, err := parseUUID(s, "hold-harmless")
	return HoldHarmlessID(u), err
}

// ParseActorID validates external input into an ActorID.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor")
	return ActorID(u), err
}
