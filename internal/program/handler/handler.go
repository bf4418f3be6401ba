package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"coitrack/internal/program"
	id "coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/platform/httputil"
	"coitrack/pkg/requestcontext"
)

// Service defines the program operations the handler needs.
type Service interface {
	CreateProgram(ctx context.Context, input program.CreateProgramInput) (*program.Program, error)
	GetProgram(ctx context.Context, programID id.ProgramID) (*program.Program, error)
	ListPrograms(ctx context.Context) ([]*program.Program, error)
	RequirementsFor(ctx context.Context, programID id.ProgramID, trade id.Trade) (program.RequirementSet, error)
}

// Handler wires program-authoring endpoints to the program service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a program handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts program endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/programs", h.HandleCreate)
	r.Get("/programs", h.HandleList)
	r.Get("/programs/{programID}", h.HandleGet)
	r.Get("/programs/{programID}/requirements", h.HandleRequirements)
}

// HandleCreate handles POST /programs requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateProgramRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	p, err := h.service.CreateProgram(ctx, req.ToInput())
	if err != nil {
		h.logger.ErrorContext(ctx, "program creation failed",
			"request_id", requestID, "name", req.Name, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "program created",
		"request_id", requestID, "program_id", p.ID, "tiers", len(p.Tiers))
	httputil.WriteJSON(w, http.StatusCreated, p)
}

// HandleList handles GET /programs requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	programs, err := h.service.ListPrograms(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"programs": programs})
}

// HandleGet handles GET /programs/{programID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	programID, err := id.ParseProgramID(chi.URLParam(r, "programID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.GetProgram(r.Context(), programID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// HandleRequirements handles GET /programs/{programID}/requirements?trade=x
// requests: a dry run of tier resolution for one trade.
func (h *Handler) HandleRequirements(w http.ResponseWriter, r *http.Request) {
	programID, err := id.ParseProgramID(chi.URLParam(r, "programID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	raw := r.URL.Query().Get("trade")
	if raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "trade query parameter is required"))
		return
	}
	trade, err := id.ParseTrade(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqs, err := h.service.RequirementsFor(r.Context(), programID, trade)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reqs)
}
