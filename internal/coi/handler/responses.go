package handler

import (
	"time"

	"coitrack/internal/coi"
)

// PolicyResponse is one coverage sub-record in a COI response.
type PolicyResponse struct {
	DocumentRef  string     `json:"document_ref,omitempty"`
	PolicyNumber string     `json:"policy_number,omitempty"`
	Expiration   *time.Time `json:"expiration,omitempty"`
	Limit        int64      `json:"limit"`
	Aggregate    int64      `json:"aggregate,omitempty"`
	Signed       bool       `json:"signed"`
	SignedBy     string     `json:"signed_by,omitempty"`
	SignedAt     *time.Time `json:"signed_at,omitempty"`
}

// ReviewNoteResponse is one audit-trail entry.
type ReviewNoteResponse struct {
	Action   string    `json:"action"`
	Notes    string    `json:"notes"`
	ActorID  string    `json:"actor_id"`
	Override bool      `json:"override,omitempty"`
	At       time.Time `json:"at"`
}

// COIResponse is the HTTP representation of a COI.
type COIResponse struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	SubcontractorID string `json:"subcontractor_id"`
	ProgramID       string `json:"program_id,omitempty"`
	Trade           string `json:"trade"`
	Status          string `json:"status"`

	Broker   *coi.BrokerInfo           `json:"broker,omitempty"`
	Policies map[string]PolicyResponse `json:"policies"`

	AdditionalInsured []string `json:"additional_insured"`
	ProjectLocation   string   `json:"project_location"`

	ReviewNotes []ReviewNoteResponse `json:"review_notes,omitempty"`

	HoldHarmlessStatus string `json:"hold_harmless_status"`

	RenewedFrom string     `json:"renewed_from,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FromCOI converts a domain COI to its HTTP representation.
func FromCOI(c *coi.COI) *COIResponse {
	resp := &COIResponse{
		ID:                 c.ID.String(),
		ProjectID:          c.ProjectID.String(),
		SubcontractorID:    c.SubcontractorID.String(),
		Trade:              c.Trade.String(),
		Status:             string(c.Status),
		Broker:             c.Broker,
		Policies:           make(map[string]PolicyResponse, len(c.Policies)),
		AdditionalInsured:  c.AdditionalInsured,
		ProjectLocation:    c.ProjectLocation,
		HoldHarmlessStatus: string(c.HoldHarmless),
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
	if !c.ProgramID.IsZero() {
		resp.ProgramID = c.ProgramID.String()
	}
	if !c.RenewedFrom.IsZero() {
		resp.RenewedFrom = c.RenewedFrom.String()
	}
	if !c.ApprovedAt.IsZero() {
		approvedAt := c.ApprovedAt
		resp.ApprovedAt = &approvedAt
	}
	for pt, p := range c.Policies {
		resp.Policies[string(pt)] = fromPolicy(p)
	}
	for _, note := range c.ReviewNotes {
		resp.ReviewNotes = append(resp.ReviewNotes, ReviewNoteResponse{
			Action:   string(note.Action),
			Notes:    note.Notes,
			ActorID:  note.ActorID.String(),
			Override: note.Override,
			At:       note.At,
		})
	}
	return resp
}

func fromPolicy(p coi.Policy) PolicyResponse {
	resp := PolicyResponse{
		DocumentRef:  p.DocumentRef,
		PolicyNumber: p.PolicyNumber,
		Limit:        p.Limit,
		Aggregate:    p.Aggregate,
		Signed:       p.Signed(),
		SignedBy:     p.SignedBy,
	}
	if !p.Expiration.IsZero() {
		expiration := p.Expiration
		resp.Expiration = &expiration
	}
	if !p.SignedAt.IsZero() {
		signedAt := p.SignedAt
		resp.SignedAt = &signedAt
	}
	return resp
}

// COIListResponse wraps a project's COIs.
type COIListResponse struct {
	COIs []*COIResponse `json:"cois"`
}

// FromCOIs converts a list of COIs.
func FromCOIs(cois []*coi.COI) *COIListResponse {
	resp := &COIListResponse{COIs: make([]*COIResponse, 0, len(cois))}
	for _, c := range cois {
		resp.COIs = append(resp.COIs, FromCOI(c))
	}
	return resp
}
