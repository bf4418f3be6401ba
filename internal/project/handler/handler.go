package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"coitrack/internal/project"
	id "coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/platform/httputil"
	"coitrack/pkg/requestcontext"
)

// Service defines the project operations the handler needs.
type Service interface {
	CreateProject(ctx context.Context, input project.CreateProjectInput) (*project.Project, error)
	GetProject(ctx context.Context, projectID id.ProjectID) (*project.Project, error)
}

// Handler wires project-registry endpoints to the project service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a project handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts project endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/projects", h.HandleCreate)
	r.Get("/projects/{projectID}", h.HandleGet)
}

// CreateProjectRequest is the HTTP request body for POST /projects.
type CreateProjectRequest struct {
	Name              string   `json:"name"`
	GCID              string   `json:"gc_id"`
	ProgramID         string   `json:"program_id,omitempty"`
	Location          string   `json:"location,omitempty"`
	AdditionalInsured []string `json:"additional_insured,omitempty"`

	parsedGCID      id.ActorID
	parsedProgramID id.ProgramID
}

func (r *CreateProjectRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	gcID, err := id.ParseActorID(strings.TrimSpace(r.GCID))
	if err != nil {
		return err
	}
	r.parsedGCID = gcID
	if raw := strings.TrimSpace(r.ProgramID); raw != "" {
		programID, err := id.ParseProgramID(raw)
		if err != nil {
			return err
		}
		r.parsedProgramID = programID
	}
	return nil
}

// HandleCreate handles POST /projects requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateProjectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	p, err := h.service.CreateProject(ctx, project.CreateProjectInput{
		Name:              req.Name,
		GCID:              req.parsedGCID,
		ProgramID:         req.parsedProgramID,
		Location:          req.Location,
		AdditionalInsured: req.AdditionalInsured,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "project creation failed",
			"request_id", requestID, "name", req.Name, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "project created",
		"request_id", requestID, "project_id", p.ID)
	httputil.WriteJSON(w, http.StatusCreated, p)
}

// HandleGet handles GET /projects/{projectID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.GetProject(r.Context(), projectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
