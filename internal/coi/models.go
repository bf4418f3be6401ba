// Package coi implements the certificate-of-insurance lifecycle: the document
// state machine, the renewal and deficiency-correction loops, and the guards
// evaluated on every transition.
package coi

import (
	"fmt"
	"time"

	"github.com/asaskevich/govalidator"

	"coitrack/internal/program"
	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
)

// Status is the COI lifecycle state. ACTIVE and REJECTED are terminal for a
// given COI instance; a rejected COI is superseded by a new one, never
// revived.
type Status string

const (
	StatusAwaitingBrokerInfo      Status = "AWAITING_BROKER_INFO"
	StatusAwaitingBrokerUpload    Status = "AWAITING_BROKER_UPLOAD"
	StatusAwaitingBrokerSignature Status = "AWAITING_BROKER_SIGNATURE"
	StatusAwaitingAdminReview     Status = "AWAITING_ADMIN_REVIEW"
	StatusActive                  Status = "ACTIVE"
	StatusDeficiencyPending       Status = "DEFICIENCY_PENDING"
	StatusRejected                Status = "REJECTED"
)

// legalTransitions is the complete transition relation. Everything else is a
// state conflict.
var legalTransitions = map[Status][]Status{
	StatusAwaitingBrokerInfo:      {StatusAwaitingBrokerUpload},
	StatusAwaitingBrokerUpload:    {StatusAwaitingBrokerSignature},
	StatusAwaitingBrokerSignature: {StatusAwaitingAdminReview},
	StatusAwaitingAdminReview:     {StatusActive, StatusDeficiencyPending, StatusRejected},
	StatusDeficiencyPending:       {StatusAwaitingBrokerUpload, StatusAwaitingBrokerSignature},
	StatusActive:                  nil,
	StatusRejected:                nil,
}

// CanTransitionTo reports whether the move is in the transition relation.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are legal.
func (s Status) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

func (s Status) String() string { return string(s) }

// PolicyType is one of the four tracked coverage types.
type PolicyType string

const (
	PolicyGL       PolicyType = "gl"
	PolicyAuto     PolicyType = "auto"
	PolicyUmbrella PolicyType = "umbrella"
	PolicyWC       PolicyType = "wc"
)

// AllPolicyTypes returns the four coverage types in display order.
func AllPolicyTypes() []PolicyType {
	return []PolicyType{PolicyGL, PolicyAuto, PolicyUmbrella, PolicyWC}
}

// ParsePolicyType validates external input.
func ParsePolicyType(s string) (PolicyType, error) {
	switch PolicyType(s) {
	case PolicyGL, PolicyAuto, PolicyUmbrella, PolicyWC:
		return PolicyType(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown policy type %q", s)
}

// Policy is one coverage sub-record. Documents are opaque references; the
// engine never reads file contents. Limit is the per-occurrence (or primary)
// limit; Aggregate is only meaningful for GL.
type Policy struct {
	DocumentRef  string    `json:"document_ref,omitempty"`
	PolicyNumber string    `json:"policy_number,omitempty"`
	Expiration   time.Time `json:"expiration,omitzero"`
	Limit        int64     `json:"limit"`
	Aggregate    int64     `json:"aggregate,omitempty"`

	SignatureRef string    `json:"signature_ref,omitempty"`
	SignedBy     string    `json:"signed_by,omitempty"`
	SignedAt     time.Time `json:"signed_at,omitzero"`
}

// Signed reports whether the broker has signed this policy.
func (p Policy) Signed() bool { return p.SignatureRef != "" }

// Uploaded reports whether the policy document and a usable expiration are
// present. now is the request time; an expiration before it is stale.
func (p Policy) Uploaded(now time.Time) bool {
	return p.DocumentRef != "" && !p.Expiration.IsZero() && !p.Expiration.Before(now)
}

// BrokerType distinguishes one global broker from four per-policy brokers.
type BrokerType string

const (
	BrokerGlobal    BrokerType = "GLOBAL"
	BrokerPerPolicy BrokerType = "PER_POLICY"
)

// BrokerContact is one broker's contact details.
type BrokerContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// BrokerInfo is a tagged variant: exactly one of Global or PerPolicy is
// populated, selected by Type. This replaces the legacy "four sets of
// optional fields" shape that allowed present-but-wrong-type states.
type BrokerInfo struct {
	Type      BrokerType                   `json:"type"`
	Global    *BrokerContact               `json:"global,omitempty"`
	PerPolicy map[PolicyType]BrokerContact `json:"per_policy,omitempty"`
}

// Validate enforces the variant shape and email syntax.
func (b BrokerInfo) Validate() error {
	switch b.Type {
	case BrokerGlobal:
		if b.Global == nil {
			return dErrors.New(dErrors.CodeValidation, "broker contact is required")
		}
		if b.PerPolicy != nil {
			return dErrors.New(dErrors.CodeValidation, "per-policy brokers not allowed with a global broker")
		}
		return validateContact(*b.Global, "broker")
	case BrokerPerPolicy:
		if b.Global != nil {
			return dErrors.New(dErrors.CodeValidation, "global broker not allowed with per-policy brokers")
		}
		for _, pt := range AllPolicyTypes() {
			contact, ok := b.PerPolicy[pt]
			if !ok {
				return dErrors.Newf(dErrors.CodeValidation, "missing %s broker", pt)
			}
			if err := validateContact(contact, fmt.Sprintf("%s broker", pt)); err != nil {
				return err
			}
		}
		return nil
	default:
		return dErrors.New(dErrors.CodeValidation, "broker type must be GLOBAL or PER_POLICY")
	}
}

// ForPolicy returns the broker responsible for the given policy.
func (b BrokerInfo) ForPolicy(pt PolicyType) (BrokerContact, bool) {
	switch b.Type {
	case BrokerGlobal:
		if b.Global == nil {
			return BrokerContact{}, false
		}
		return *b.Global, true
	case BrokerPerPolicy:
		contact, ok := b.PerPolicy[pt]
		return contact, ok
	}
	return BrokerContact{}, false
}

func validateContact(c BrokerContact, label string) error {
	if c.Email == "" {
		return dErrors.Newf(dErrors.CodeValidation, "%s email is required", label)
	}
	if !govalidator.IsEmail(c.Email) {
		return dErrors.Newf(dErrors.CodeValidation, "%s email %q is not valid", label, c.Email)
	}
	return nil
}

// ReviewAction is the admin's explicit decision. Whether a problem is a
// correctable deficiency or a terminal rejection is an operator call, not
// derived by the system.
type ReviewAction string

const (
	ReviewApprove   ReviewAction = "approve"
	ReviewDeficient ReviewAction = "deficient"
	ReviewReject    ReviewAction = "reject"
)

// ParseReviewAction validates external input.
func ParseReviewAction(s string) (ReviewAction, error) {
	switch ReviewAction(s) {
	case ReviewApprove, ReviewDeficient, ReviewReject:
		return ReviewAction(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown review action %q", s)
}

// ReviewNote is one entry in the review audit trail. Resubmissions append to
// this trail; nothing ever overwrites it.
type ReviewNote struct {
	Action   ReviewAction   `json:"action"`
	Notes    string         `json:"notes"`
	ActorID  domain.ActorID `json:"actor_id"`
	Override bool           `json:"override,omitempty"`
	At       time.Time      `json:"at"`
}

// HoldHarmlessState mirrors the dependent agreement's progress on the COI so
// dashboards read one record. Derived, never authoritative.
type HoldHarmlessState string

const (
	HoldHarmlessNotRequired HoldHarmlessState = "NOT_REQUIRED"
	HoldHarmlessPending     HoldHarmlessState = "PENDING"
	HoldHarmlessComplete    HoldHarmlessState = "COMPLETE"
)

// COI is the aggregate root for one certificate of insurance.
//
// Invariants:
//   - Status only moves along legalTransitions
//   - Policies always holds all four coverage types
//   - ReviewNotes is append-only
//   - A COI is never deleted, only transitioned to a terminal state or
//     superseded by a renewal (RenewedFrom links the chain)
type COI struct {
	ID              domain.COIID       `json:"id"`
	ProjectID       domain.ProjectID   `json:"project_id"`
	SubcontractorID domain.ContractorID `json:"subcontractor_id"`
	ProgramID       domain.ProgramID   `json:"program_id,omitempty"`
	Trade           domain.Trade       `json:"trade"`

	Status   Status                `json:"status"`
	Broker   *BrokerInfo           `json:"broker,omitempty"`
	Policies map[PolicyType]Policy `json:"policies"`

	// Project facts snapshotted at creation (and recomputed on renewal, never
	// copied forward): the additional-insured names and project location that
	// appear on the certificate.
	AdditionalInsured []string `json:"additional_insured"`
	ProjectLocation   string   `json:"project_location"`

	ReviewNotes []ReviewNote `json:"review_notes,omitempty"`

	HoldHarmless HoldHarmlessState `json:"hold_harmless_status"`

	RenewedFrom domain.COIID `json:"renewed_from,omitempty"`
	ApprovedAt  time.Time    `json:"approved_at,omitzero"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewCOI constructs a COI in AWAITING_BROKER_INFO with all four policy
// sub-records present and empty.
func NewCOI(id domain.COIID, projectID domain.ProjectID, subID domain.ContractorID,
	programID domain.ProgramID, trade domain.Trade, now time.Time) *COI {
	policies := make(map[PolicyType]Policy, 4)
	for _, pt := range AllPolicyTypes() {
		policies[pt] = Policy{}
	}
	return &COI{
		ID:              id,
		ProjectID:       projectID,
		SubcontractorID: subID,
		ProgramID:       programID,
		Trade:           trade,
		Status:          StatusAwaitingBrokerInfo,
		Policies:        policies,
		HoldHarmless:    HoldHarmlessNotRequired,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// stateConflict builds the canonical conflict error, carrying the current
// status so the caller can refresh instead of guessing.
func (c *COI) stateConflict(verb string) error {
	return dErrors.Newf(dErrors.CodeStateConflict, "cannot %s a COI in %s", verb, c.Status).
		WithDetail("status", string(c.Status))
}

// CanSubmitBrokerInfo guards AWAITING_BROKER_INFO → AWAITING_BROKER_UPLOAD.
func (c *COI) CanSubmitBrokerInfo(info BrokerInfo) error {
	if c.Status != StatusAwaitingBrokerInfo {
		return c.stateConflict("submit broker info for")
	}
	return info.Validate()
}

// ApplySubmitBrokerInfo records the broker and advances the state.
func (c *COI) ApplySubmitBrokerInfo(info BrokerInfo, now time.Time) {
	c.Broker = &info
	c.Status = StatusAwaitingBrokerUpload
	c.UpdatedAt = now
}

// PolicyUpload is the broker's submission for one coverage type.
type PolicyUpload struct {
	DocumentRef  string    `json:"document_ref"`
	PolicyNumber string    `json:"policy_number"`
	Expiration   time.Time `json:"expiration"`
	Limit        int64     `json:"limit"`
	Aggregate    int64     `json:"aggregate,omitempty"`
}

// CanUploadPolicies guards AWAITING_BROKER_UPLOAD → AWAITING_BROKER_SIGNATURE.
// Every policy must carry a document reference and a present-or-future
// expiration after the uploads are applied. No coverage-amount check happens
// here; documents are unstructured until reviewed.
func (c *COI) CanUploadPolicies(uploads map[PolicyType]PolicyUpload, now time.Time) error {
	if c.Status != StatusAwaitingBrokerUpload && c.Status != StatusDeficiencyPending {
		return c.stateConflict("upload policies for")
	}
	for pt := range uploads {
		if _, err := ParsePolicyType(string(pt)); err != nil {
			return err
		}
	}
	merged := c.mergedPolicies(uploads)
	for _, pt := range AllPolicyTypes() {
		p := merged[pt]
		if p.DocumentRef == "" {
			return dErrors.Newf(dErrors.CodeValidation, "%s policy document is required", pt)
		}
		if p.Expiration.IsZero() {
			return dErrors.Newf(dErrors.CodeValidation, "%s policy expiration date is required", pt)
		}
		if p.Expiration.Before(now) {
			return dErrors.Newf(dErrors.CodeValidation, "%s policy expired %s", pt, p.Expiration.Format("2006-01-02"))
		}
	}
	return nil
}

// ApplyUploadPolicies merges the uploads and advances to
// AWAITING_BROKER_SIGNATURE. Fresh uploads clear any prior signature: a
// changed document invalidates the signature that covered it.
func (c *COI) ApplyUploadPolicies(uploads map[PolicyType]PolicyUpload, now time.Time) {
	c.Policies = c.mergedPolicies(uploads)
	c.Status = StatusAwaitingBrokerSignature
	c.UpdatedAt = now
}

func (c *COI) mergedPolicies(uploads map[PolicyType]PolicyUpload) map[PolicyType]Policy {
	merged := make(map[PolicyType]Policy, 4)
	for _, pt := range AllPolicyTypes() {
		p := c.Policies[pt]
		if upload, ok := uploads[pt]; ok {
			p.DocumentRef = upload.DocumentRef
			p.PolicyNumber = upload.PolicyNumber
			p.Expiration = upload.Expiration
			p.Limit = upload.Limit
			p.Aggregate = upload.Aggregate
			p.SignatureRef = ""
			p.SignedBy = ""
			p.SignedAt = time.Time{}
		}
		merged[pt] = p
	}
	return merged
}

// Signature is the broker's signature submission for one policy.
type Signature struct {
	SignatureRef string `json:"signature_ref"`
	SignedBy     string `json:"signed_by"`
}

// CanSignPolicy guards an individual policy signature.
func (c *COI) CanSignPolicy(pt PolicyType, sig Signature) error {
	if c.Status != StatusAwaitingBrokerSignature {
		return c.stateConflict("sign policies for")
	}
	if sig.SignatureRef == "" {
		return dErrors.New(dErrors.CodeValidation, "signature reference is required")
	}
	if c.Policies[pt].Signed() {
		return dErrors.Newf(dErrors.CodeConflict, "%s policy is already signed", pt)
	}
	return nil
}

// ApplySignPolicy records the signature; when every required policy is
// signed the COI advances to AWAITING_ADMIN_REVIEW. Umbrella is exempt when
// the resolved requirements carry no umbrella minimum for this trade.
func (c *COI) ApplySignPolicy(pt PolicyType, sig Signature, reqs program.RequirementSet, now time.Time) {
	p := c.Policies[pt]
	p.SignatureRef = sig.SignatureRef
	p.SignedBy = sig.SignedBy
	p.SignedAt = now
	c.Policies[pt] = p
	if c.SignaturesComplete(reqs) {
		c.Status = StatusAwaitingAdminReview
	}
	c.UpdatedAt = now
}

// SignaturesComplete reports whether every required policy carries a broker
// signature.
func (c *COI) SignaturesComplete(reqs program.RequirementSet) bool {
	for _, pt := range AllPolicyTypes() {
		if pt == PolicyUmbrella && !reqs.UmbrellaRequired() {
			continue
		}
		if !c.Policies[pt].Signed() {
			return false
		}
	}
	return true
}

// CoverageGaps lists every policy whose limits fall below the resolved
// minimums. Empty means the COI meets requirements.
func (c *COI) CoverageGaps(reqs program.RequirementSet) []string {
	var gaps []string
	gl := c.Policies[PolicyGL]
	if gl.Limit < reqs.GLEachOccurrence {
		gaps = append(gaps, fmt.Sprintf("gl each-occurrence limit %d below required %d", gl.Limit, reqs.GLEachOccurrence))
	}
	if gl.Aggregate < reqs.GLAggregate {
		gaps = append(gaps, fmt.Sprintf("gl aggregate limit %d below required %d", gl.Aggregate, reqs.GLAggregate))
	}
	if auto := c.Policies[PolicyAuto]; auto.Limit < reqs.Auto {
		gaps = append(gaps, fmt.Sprintf("auto limit %d below required %d", auto.Limit, reqs.Auto))
	}
	if wc := c.Policies[PolicyWC]; wc.Limit < reqs.WorkersComp {
		gaps = append(gaps, fmt.Sprintf("workers-comp limit %d below required %d", wc.Limit, reqs.WorkersComp))
	}
	if reqs.UmbrellaRequired() {
		if umb := c.Policies[PolicyUmbrella]; umb.Limit < reqs.Umbrella {
			gaps = append(gaps, fmt.Sprintf("umbrella limit %d below required %d", umb.Limit, reqs.Umbrella))
		}
	}
	return gaps
}

// CanReview guards AWAITING_ADMIN_REVIEW → {ACTIVE, DEFICIENCY_PENDING,
// REJECTED}. Notes are mandatory for deficient and reject: the note trail is
// the broker's only guidance for correction. Validation runs before any
// state change.
func (c *COI) CanReview(action ReviewAction, notes string) error {
	if c.Status != StatusAwaitingAdminReview {
		return c.stateConflict("review")
	}
	if (action == ReviewDeficient || action == ReviewReject) && notes == "" {
		return dErrors.Newf(dErrors.CodeValidation, "notes are required when marking a COI %s", action)
	}
	return nil
}

// ApplyReview commits the admin decision and appends to the review trail.
func (c *COI) ApplyReview(action ReviewAction, notes string, actorID domain.ActorID, override bool, now time.Time) {
	c.ReviewNotes = append(c.ReviewNotes, ReviewNote{
		Action:   action,
		Notes:    notes,
		ActorID:  actorID,
		Override: override,
		At:       now,
	})
	switch action {
	case ReviewApprove:
		c.Status = StatusActive
		c.ApprovedAt = now
	case ReviewDeficient:
		c.Status = StatusDeficiencyPending
	case ReviewReject:
		c.Status = StatusRejected
	}
	c.UpdatedAt = now
}

// CanResubmit guards the deficiency-correction loop.
func (c *COI) CanResubmit() error {
	if c.Status != StatusDeficiencyPending {
		return c.stateConflict("resubmit")
	}
	return nil
}

// ApplyResubmit applies corrections to policy sub-records only and re-runs
// the full upload-completeness guard rather than trusting the caller: when
// everything required is present the COI moves straight to the signature
// step, otherwise it returns to AWAITING_BROKER_UPLOAD. The admin's review
// trail is untouched; ReviewNotes is append-only.
func (c *COI) ApplyResubmit(corrections map[PolicyType]PolicyUpload, now time.Time) {
	c.Policies = c.mergedPolicies(corrections)
	if c.uploadComplete(now) {
		c.Status = StatusAwaitingBrokerSignature
	} else {
		c.Status = StatusAwaitingBrokerUpload
	}
	c.UpdatedAt = now
}

func (c *COI) uploadComplete(now time.Time) bool {
	for _, pt := range AllPolicyTypes() {
		if !c.Policies[pt].Uploaded(now) {
			return false
		}
	}
	return true
}

// NewRenewal derives a fresh COI from an existing one. Broker identity and
// policy metadata copy forward verbatim so brokers do not retype contacts,
// with two deliberate exceptions that would otherwise go silently stale:
// expiration dates are cleared (the broker must supply fresh ones, which
// also forces re-upload through the standard guard) and the
// additional-insured list and project location are recomputed from the
// target project, never copied. Signatures are cleared; a renewal is a new
// signature round.
func NewRenewal(source *COI, id domain.COIID, additionalInsured []string, location string, now time.Time) *COI {
	renewed := NewCOI(id, source.ProjectID, source.SubcontractorID, source.ProgramID, source.Trade, now)
	renewed.Status = StatusAwaitingBrokerUpload
	renewed.RenewedFrom = source.ID
	renewed.AdditionalInsured = append([]string(nil), additionalInsured...)
	renewed.ProjectLocation = location

	if source.Broker != nil {
		broker := *source.Broker
		if broker.Global != nil {
			contact := *broker.Global
			broker.Global = &contact
		}
		if broker.PerPolicy != nil {
			perPolicy := make(map[PolicyType]BrokerContact, len(broker.PerPolicy))
			for pt, contact := range broker.PerPolicy {
				perPolicy[pt] = contact
			}
			broker.PerPolicy = perPolicy
		}
		renewed.Broker = &broker
	}

	for _, pt := range AllPolicyTypes() {
		prior := source.Policies[pt]
		renewed.Policies[pt] = Policy{
			DocumentRef:  prior.DocumentRef,
			PolicyNumber: prior.PolicyNumber,
			Limit:        prior.Limit,
			Aggregate:    prior.Aggregate,
		}
	}
	return renewed
}
