package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"coitrack/internal/holdharmless"
	id "coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/platform/httputil"
	"coitrack/pkg/requestcontext"
)

// Service defines the hold-harmless operations the handler needs.
type Service interface {
	Get(ctx context.Context, agreementID id.HoldHarmlessID) (*holdharmless.Agreement, error)
	GetByCOI(ctx context.Context, coiID id.COIID) (*holdharmless.Agreement, error)
	GenerateForCOI(ctx context.Context, coiID id.COIID) (*holdharmless.Agreement, error)
	SignSubcontractor(ctx context.Context, agreementID id.HoldHarmlessID, input holdharmless.SignInput) (*holdharmless.Agreement, error)
	SignGC(ctx context.Context, agreementID id.HoldHarmlessID, input holdharmless.SignInput) (*holdharmless.Agreement, error)
}

// Handler wires hold-harmless endpoints to the agreement service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a hold-harmless handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts hold-harmless endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/hold-harmless/{agreementID}", h.HandleGet)
	r.Get("/cois/{coiID}/hold-harmless", h.HandleGetByCOI)
	r.Post("/cois/{coiID}/hold-harmless", h.HandleGenerate)
	r.Post("/hold-harmless/{agreementID}/signatures/subcontractor", h.HandleSignSubcontractor)
	r.Post("/hold-harmless/{agreementID}/signatures/gc", h.HandleSignGC)
}

// SignRequest is the HTTP request body for signature endpoints.
type SignRequest struct {
	SignatureRef string `json:"signature_ref"`
}

func (r *SignRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.SignatureRef = strings.TrimSpace(r.SignatureRef)
	if r.SignatureRef == "" {
		return dErrors.New(dErrors.CodeValidation, "signature_ref is required")
	}
	return nil
}

// HandleGet handles GET /hold-harmless/{agreementID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	agreementID, err := id.ParseHoldHarmlessID(chi.URLParam(r, "agreementID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.Get(r.Context(), agreementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// HandleGetByCOI handles GET /cois/{coiID}/hold-harmless requests.
func (h *Handler) HandleGetByCOI(w http.ResponseWriter, r *http.Request) {
	coiID, err := id.ParseCOIID(chi.URLParam(r, "coiID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.GetByCOI(r.Context(), coiID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// HandleGenerate handles POST /cois/{coiID}/hold-harmless requests. Returns
// the existing agreement when one was already generated for the COI.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	coiID, err := id.ParseCOIID(chi.URLParam(r, "coiID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.GenerateForCOI(ctx, coiID)
	if err != nil {
		h.logger.ErrorContext(ctx, "agreement generation failed",
			"request_id", requestID, "coi_id", coiID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "agreement generated",
		"request_id", requestID, "coi_id", coiID, "agreement_id", a.ID)
	httputil.WriteJSON(w, http.StatusOK, a)
}

// HandleSignSubcontractor handles POST
// /hold-harmless/{agreementID}/signatures/subcontractor requests.
func (h *Handler) HandleSignSubcontractor(w http.ResponseWriter, r *http.Request) {
	h.handleSign(w, r, "subcontractor", h.service.SignSubcontractor)
}

// HandleSignGC handles POST /hold-harmless/{agreementID}/signatures/gc
// requests.
func (h *Handler) HandleSignGC(w http.ResponseWriter, r *http.Request) {
	h.handleSign(w, r, "gc", h.service.SignGC)
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request, party string,
	sign func(context.Context, id.HoldHarmlessID, holdharmless.SignInput) (*holdharmless.Agreement, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	agreementID, err := id.ParseHoldHarmlessID(chi.URLParam(r, "agreementID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	a, err := sign(ctx, agreementID, holdharmless.SignInput{SignatureRef: req.SignatureRef})
	if err != nil {
		h.logger.ErrorContext(ctx, "agreement signature failed",
			"request_id", requestID, "agreement_id", agreementID, "party", party, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "agreement signed",
		"request_id", requestID,
		"agreement_id", a.ID,
		"party", party,
		"status", a.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, a)
}
