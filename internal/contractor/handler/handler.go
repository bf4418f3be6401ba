package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"coitrack/internal/contractor"
	id "coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/platform/httputil"
	"coitrack/pkg/requestcontext"
)

// Service defines the contractor operations the handler needs.
type Service interface {
	CreateContractor(ctx context.Context, input contractor.CreateContractorInput) (*contractor.Contractor, error)
	GetContractor(ctx context.Context, contractorID id.ContractorID) (*contractor.Contractor, error)
}

// Handler wires contractor-registry endpoints to the contractor service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a contractor handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts contractor endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/contractors", h.HandleCreate)
	r.Get("/contractors/{contractorID}", h.HandleGet)
}

// CreateContractorRequest is the HTTP request body for POST /contractors.
// Trades is ordered; the first entry becomes the primary trade.
type CreateContractorRequest struct {
	Name   string   `json:"name"`
	Trades []string `json:"trades"`
}

func (r *CreateContractorRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Trades) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one trade is required")
	}
	return nil
}

// HandleCreate handles POST /contractors requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateContractorRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.CreateContractor(ctx, contractor.CreateContractorInput{
		Name:   req.Name,
		Trades: req.Trades,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "contractor creation failed",
			"request_id", requestID, "name", req.Name, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "contractor created",
		"request_id", requestID, "contractor_id", c.ID, "primary_trade", c.PrimaryTrade())
	httputil.WriteJSON(w, http.StatusCreated, c)
}

// HandleGet handles GET /contractors/{contractorID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	contractorID, err := id.ParseContractorID(chi.URLParam(r, "contractorID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.GetContractor(r.Context(), contractorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}
