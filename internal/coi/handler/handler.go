package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"coitrack/internal/coi"
	id "coitrack/pkg/domain"
	"coitrack/pkg/platform/httputil"
	"coitrack/pkg/requestcontext"
)

// Service defines the COI operations the handler needs.
type Service interface {
	Create(ctx context.Context, projectID id.ProjectID, subID id.ContractorID) (*coi.COI, error)
	Get(ctx context.Context, coiID id.COIID) (*coi.COI, error)
	ListByProject(ctx context.Context, projectID id.ProjectID) ([]*coi.COI, error)
	SubmitBrokerInfo(ctx context.Context, coiID id.COIID, info coi.BrokerInfo) (*coi.COI, error)
	UploadPolicies(ctx context.Context, coiID id.COIID, uploads map[coi.PolicyType]coi.PolicyUpload) (*coi.COI, error)
	SignPolicy(ctx context.Context, coiID id.COIID, pt coi.PolicyType, sig coi.Signature) (*coi.COI, error)
	Review(ctx context.Context, coiID id.COIID, input coi.ReviewInput) (*coi.COI, error)
	Renew(ctx context.Context, coiID id.COIID) (*coi.COI, error)
	Resubmit(ctx context.Context, coiID id.COIID, corrections map[coi.PolicyType]coi.PolicyUpload) (*coi.COI, error)
}

// Handler wires COI endpoints to the COI service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a COI handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts COI endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/cois", h.HandleCreate)
	r.Get("/cois/{coiID}", h.HandleGet)
	r.Get("/projects/{projectID}/cois", h.HandleListByProject)
	r.Post("/cois/{coiID}/broker-info", h.HandleSubmitBrokerInfo)
	r.Post("/cois/{coiID}/policies", h.HandleUploadPolicies)
	r.Post("/cois/{coiID}/signatures/{policyType}", h.HandleSignPolicy)
	r.Post("/cois/{coiID}/review", h.HandleReview)
	r.Post("/cois/{coiID}/renew", h.HandleRenew)
	r.Post("/cois/{coiID}/resubmit", h.HandleResubmit)
}

// HandleCreate handles POST /cois requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateCOIRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.Create(ctx, req.ParsedProjectID(), req.ParsedSubID())
	if err != nil {
		h.logger.ErrorContext(ctx, "coi creation failed",
			"request_id", requestID,
			"project_id", req.ProjectID,
			"subcontractor_id", req.SubcontractorID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "coi created",
		"request_id", requestID,
		"coi_id", c.ID,
		"project_id", c.ProjectID,
		"trade", c.Trade,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromCOI(c))
}

// HandleGet handles GET /cois/{coiID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	coiID, err := id.ParseCOIID(chi.URLParam(r, "coiID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.Get(ctx, coiID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromCOI(c))
}

// HandleListByProject handles GET /projects/{projectID}/cois requests.
func (h *Handler) HandleListByProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cois, err := h.service.ListByProject(ctx, projectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromCOIs(cois))
}

// HandleSubmitBrokerInfo handles POST /cois/{coiID}/broker-info requests.
func (h *Handler) HandleSubmitBrokerInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	coiID, err := id.ParseCOIID(chi.URLParam(r, "coiID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[BrokerInfoRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.SubmitBrokerInfo(ctx, coiID, req.ParsedInfo())
	if err != nil {
		h.logger.ErrorContext(ctx, "broker info submission failed",
			"request_id", requestID, "coi_id", coiID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "broker info submitted",
		"request_id", requestID, "coi_id", c.ID, "status", c.Status)
	httputil.WriteJSON(w, http.StatusOK, FromCOI(c))
}

// HandleUploadPolicies handles POST /cois/{coiID}/policies requests.
func (h *Handler) HandleUploadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	coiID, err := id.ParseCOIID(chi.URLParam(r, "coiID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UploadPoliciesRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.UploadPolicies(ctx, coiID, req.ParsedUploads())
	if err != nil {
		h.logger.ErrorContext(ctx, "policy upload failed",
			"request_id", requestID, "coi_id", coiID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "policies uploaded",
		"request_id", requestID, "coi_id", c.ID, "status", c.Status)
	httputil.WriteJSON(w, http.StatusOK, FromCOI(c))
}

// HandleSignPolicy handles POST /cois/{coiID}/signatures/{policyType} requests.
func (h *Handler) HandleSignPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	coiID, err := id.ParseCOIID(chi.URLParam(r, "coiID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pt, err := coi.ParsePolicyType(chi.URLParam(r, "policyType"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SignPolicyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.SignPolicy(ctx, coiID, pt, coi.Signature{
		SignatureRef: req.SignatureRef,
		SignedBy:     req.SignedBy,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "policy signature failed",
			"request_id", requestID, "coi_id", coiID, "policy_type", pt, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "policy signed",
		"request_id", requestID, "coi_id", c.ID, "policy_type", pt, "status", c.Status)
	httputil.WriteJSON(w, http.StatusOK, FromCOI(c))
}

// HandleReview handles POST /cois/{coiID}/review requests.
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	coiID, err := id.ParseCOIID(chi.URLParam(r, "coiID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviewRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.Review(ctx, coiID, coi.ReviewInput{
		Action:   req.ParsedAction(),
		Notes:    req.Notes,
		Override: req.Override,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "coi review failed",
			"request_id", requestID, "coi_id", coiID, "action", req.Action, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "coi reviewed",
		"request_id", requestID,
		"coi_id", c.ID,
		"action", req.Action,
		"override", req.Override,
		"status", c.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromCOI(c))
}

// HandleRenew handles POST /cois/{coiID}/renew requests.
func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	coiID, err := id.ParseCOIID(chi.URLParam(r, "coiID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	renewed, err := h.service.Renew(ctx, coiID)
	if err != nil {
		h.logger.ErrorContext(ctx, "coi renewal failed",
			"request_id", requestID, "coi_id", coiID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "coi renewed",
		"request_id", requestID, "coi_id", coiID, "renewal_id", renewed.ID)
	httputil.WriteJSON(w, http.StatusCreated, FromCOI(renewed))
}

// HandleResubmit handles POST /cois/{coiID}/resubmit requests.
func (h *Handler) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	coiID, err := id.ParseCOIID(chi.URLParam(r, "coiID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UploadPoliciesRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.Resubmit(ctx, coiID, req.ParsedUploads())
	if err != nil {
		h.logger.ErrorContext(ctx, "coi resubmission failed",
			"request_id", requestID, "coi_id", coiID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "coi resubmitted",
		"request_id", requestID, "coi_id", c.ID, "status", c.Status)
	httputil.WriteJSON(w, http.StatusOK, FromCOI(c))
}
