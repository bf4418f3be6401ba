// Package holdharmless implements the dual-signature agreement that follows a
// COI approval: generated from the approved COI's facts, signed by the
// subcontractor first and the general contractor second, then merged into a
// single completed document.
package holdharmless

import (
	"time"

	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
)

// Status is the agreement lifecycle state. Signing order is strict:
// subcontractor first, then GC.
type Status string

const (
	StatusPendingSubcontractor Status = "PENDING_SUBCONTRACTOR_SIGNATURE"
	StatusPendingGC            Status = "PENDING_GC_SIGNATURE"
	StatusCompleted            Status = "COMPLETED"
)

func (s Status) String() string { return string(s) }

// Signature is one party's signature on the agreement.
type Signature struct {
	SignatureRef string         `json:"signature_ref"`
	SignedBy     domain.ActorID `json:"signed_by"`
	SignedAt     time.Time      `json:"signed_at"`
}

// Agreement is a hold-harmless record. It is generated once per approved COI;
// the COI ID is the natural uniqueness key.
type Agreement struct {
	ID              domain.HoldHarmlessID `json:"id"`
	COIID           domain.COIID          `json:"coi_id"`
	ProjectID       domain.ProjectID      `json:"project_id"`
	SubcontractorID domain.ContractorID   `json:"subcontractor_id"`
	GCID            domain.ActorID        `json:"gc_id"`

	Status Status `json:"status"`

	// DocumentRef is the generated agreement document. MergedDocumentRef is
	// produced at completion: the agreement plus both signature pages.
	DocumentRef       string `json:"document_ref"`
	MergedDocumentRef string `json:"merged_document_ref,omitempty"`

	SubcontractorSignature *Signature `json:"subcontractor_signature,omitempty"`
	GCSignature            *Signature `json:"gc_signature,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAgreement constructs an agreement awaiting the subcontractor's
// signature.
func NewAgreement(id domain.HoldHarmlessID, coiID domain.COIID, projectID domain.ProjectID,
	subID domain.ContractorID, gcID domain.ActorID, documentRef string, now time.Time) *Agreement {
	return &Agreement{
		ID:              id,
		COIID:           coiID,
		ProjectID:       projectID,
		SubcontractorID: subID,
		GCID:            gcID,
		Status:          StatusPendingSubcontractor,
		DocumentRef:     documentRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (a *Agreement) stateConflict(verb string) error {
	return dErrors.Newf(dErrors.CodeStateConflict, "cannot %s an agreement in %s", verb, a.Status).
		WithDetail("status", string(a.Status))
}

// CanSignSubcontractor guards the first signature.
func (a *Agreement) CanSignSubcontractor(sig Signature) error {
	if a.Status != StatusPendingSubcontractor {
		return a.stateConflict("record a subcontractor signature on")
	}
	if sig.SignatureRef == "" {
		return dErrors.New(dErrors.CodeValidation, "signature reference is required")
	}
	return nil
}

// ApplySignSubcontractor records the first signature and hands the agreement
// to the GC.
func (a *Agreement) ApplySignSubcontractor(sig Signature, now time.Time) {
	sig.SignedAt = now
	a.SubcontractorSignature = &sig
	a.Status = StatusPendingGC
	a.UpdatedAt = now
}

// CanSignGC guards the second signature. The GC cannot sign before the
// subcontractor has.
func (a *Agreement) CanSignGC(sig Signature) error {
	if a.Status != StatusPendingGC {
		return a.stateConflict("record a GC signature on")
	}
	if sig.SignatureRef == "" {
		return dErrors.New(dErrors.CodeValidation, "signature reference is required")
	}
	return nil
}

// ApplySignGC records the second signature and completes the agreement.
func (a *Agreement) ApplySignGC(sig Signature, now time.Time) {
	sig.SignedAt = now
	a.GCSignature = &sig
	a.Status = StatusCompleted
	a.UpdatedAt = now
}

// AttachMergedDocument records the combined document produced from the
// completed agreement.
func (a *Agreement) AttachMergedDocument(ref string) {
	a.MergedDocumentRef = ref
}
