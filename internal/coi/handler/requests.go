package handler

import (
	"strings"
	"time"

	"coitrack/internal/coi"
	id "coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
)

// CreateCOIRequest is the HTTP request body for POST /cois.
type CreateCOIRequest struct {
	ProjectID       string `json:"project_id"`
	SubcontractorID string `json:"subcontractor_id"`

	parsedProjectID id.ProjectID
	parsedSubID     id.ContractorID
}

func (r *CreateCOIRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	projectID, err := id.ParseProjectID(strings.TrimSpace(r.ProjectID))
	if err != nil {
		return err
	}
	subID, err := id.ParseContractorID(strings.TrimSpace(r.SubcontractorID))
	if err != nil {
		return err
	}
	r.parsedProjectID = projectID
	r.parsedSubID = subID
	return nil
}

func (r *CreateCOIRequest) ParsedProjectID() id.ProjectID { return r.parsedProjectID }
func (r *CreateCOIRequest) ParsedSubID() id.ContractorID  { return r.parsedSubID }

// BrokerContactRequest is one broker's contact details.
type BrokerContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// BrokerInfoRequest is the HTTP request body for POST /cois/{id}/broker-info.
// Structural validation (variant shape, email syntax) lives on the domain
// type; the DTO only normalizes and converts.
type BrokerInfoRequest struct {
	Type      string                          `json:"type"`
	Global    *BrokerContactRequest           `json:"global,omitempty"`
	PerPolicy map[string]BrokerContactRequest `json:"per_policy,omitempty"`

	parsed coi.BrokerInfo
}

func (r *BrokerInfoRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	info := coi.BrokerInfo{Type: coi.BrokerType(strings.ToUpper(strings.TrimSpace(r.Type)))}
	if r.Global != nil {
		info.Global = &coi.BrokerContact{
			Name:  strings.TrimSpace(r.Global.Name),
			Email: strings.TrimSpace(r.Global.Email),
			Phone: strings.TrimSpace(r.Global.Phone),
		}
	}
	if r.PerPolicy != nil {
		info.PerPolicy = make(map[coi.PolicyType]coi.BrokerContact, len(r.PerPolicy))
		for raw, contact := range r.PerPolicy {
			pt, err := coi.ParsePolicyType(strings.ToLower(strings.TrimSpace(raw)))
			if err != nil {
				return err
			}
			info.PerPolicy[pt] = coi.BrokerContact{
				Name:  strings.TrimSpace(contact.Name),
				Email: strings.TrimSpace(contact.Email),
				Phone: strings.TrimSpace(contact.Phone),
			}
		}
	}
	if err := info.Validate(); err != nil {
		return err
	}
	r.parsed = info
	return nil
}

func (r *BrokerInfoRequest) ParsedInfo() coi.BrokerInfo { return r.parsed }

// PolicyUploadRequest is one coverage type's upload.
type PolicyUploadRequest struct {
	DocumentRef  string    `json:"document_ref"`
	PolicyNumber string    `json:"policy_number"`
	Expiration   time.Time `json:"expiration"`
	Limit        int64     `json:"limit"`
	Aggregate    int64     `json:"aggregate,omitempty"`
}

// UploadPoliciesRequest is the HTTP request body for POST
// /cois/{id}/policies and POST /cois/{id}/resubmit.
type UploadPoliciesRequest struct {
	Policies map[string]PolicyUploadRequest `json:"policies"`

	parsed map[coi.PolicyType]coi.PolicyUpload
}

func (r *UploadPoliciesRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Policies) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one policy is required")
	}
	parsed := make(map[coi.PolicyType]coi.PolicyUpload, len(r.Policies))
	for raw, upload := range r.Policies {
		pt, err := coi.ParsePolicyType(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return err
		}
		if upload.Limit < 0 || upload.Aggregate < 0 {
			return dErrors.Newf(dErrors.CodeValidation, "%s policy limits cannot be negative", pt)
		}
		parsed[pt] = coi.PolicyUpload{
			DocumentRef:  strings.TrimSpace(upload.DocumentRef),
			PolicyNumber: strings.TrimSpace(upload.PolicyNumber),
			Expiration:   upload.Expiration,
			Limit:        upload.Limit,
			Aggregate:    upload.Aggregate,
		}
	}
	r.parsed = parsed
	return nil
}

func (r *UploadPoliciesRequest) ParsedUploads() map[coi.PolicyType]coi.PolicyUpload { return r.parsed }

// SignPolicyRequest is the HTTP request body for POST
// /cois/{id}/signatures/{policy}.
type SignPolicyRequest struct {
	SignatureRef string `json:"signature_ref"`
	SignedBy     string `json:"signed_by"`
}

func (r *SignPolicyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.SignatureRef = strings.TrimSpace(r.SignatureRef)
	if r.SignatureRef == "" {
		return dErrors.New(dErrors.CodeValidation, "signature_ref is required")
	}
	r.SignedBy = strings.TrimSpace(r.SignedBy)
	return nil
}

// ReviewRequest is the HTTP request body for POST /admin/cois/{id}/review.
type ReviewRequest struct {
	Action   string `json:"action"`
	Notes    string `json:"notes,omitempty"`
	Override bool   `json:"override,omitempty"`

	parsedAction coi.ReviewAction
}

func (r *ReviewRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	action, err := coi.ParseReviewAction(strings.ToLower(strings.TrimSpace(r.Action)))
	if err != nil {
		return err
	}
	if r.Override && action != coi.ReviewApprove {
		return dErrors.New(dErrors.CodeValidation, "override only applies to approvals")
	}
	r.parsedAction = action
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

func (r *ReviewRequest) ParsedAction() coi.ReviewAction { return r.parsedAction }
