package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dejobratic/opsapi/internal/agents/app"
	"github.com/dejobratic/opsapi/internal/agents/app/commands"
	"github.com/dejobratic/opsapi/internal/agents/app/queries"
	"github.com/dejobratic/opsapi/internal/agents/domain"
	"github.com/dejobratic/opsapi/internal/agents/ports"
	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/httpx"
	"github.com/dejobratic/opsapi/internal/pagination"
)

const idParam = "agent_uuid"

type Handler struct {
	service      *app.Service
	pipeline     *httpx.Pipeline
	logger       *slog.Logger
	defaultLimit int
	maxLimit     int
}

func NewHandler(service *app.Service, pipeline *httpx.Pipeline, logger *slog.Logger, defaultLimit, maxLimit int) *Handler {
	return &Handler{
		service:      service,
		pipeline:     pipeline,
		logger:       logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Register mounts the agent routes. Check-ins come from agents themselves
// and only need an authenticated identity.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/agents", func(r chi.Router) {
		r.With(auth.RequireRole(auth.RoleOperator)).Post("/", h.pipeline.Write(h.enroll))

		r.Route("/{"+idParam+"}", func(r chi.Router) {
			r.With(auth.RequireRole(auth.RoleAnalyst)).Get("/", h.pipeline.Read(h.get))
			r.Post("/check-ins", h.pipeline.Write(h.checkIn))
			r.With(auth.RequireRole(auth.RoleOperator)).Post("/uninstall", h.pipeline.Write(h.uninstall))
			r.With(auth.RequireRole(auth.RoleOperator)).Post("/tasks", h.pipeline.Write(h.issueTask))
			r.With(auth.RequireRole(auth.RoleAnalyst)).Get("/tasks", h.pipeline.Read(h.listTasks))
		})
	})
}

func (h *Handler) enroll(r *http.Request) (httpx.Result, error) {
	var input app.EnrollAgentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	agent, created, err := h.service.EnrollAgent(r.Context(), auth.SubjectOf(r), input)
	if err = h.tolerateUnpublished(r, agent != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return httpx.Result{Status: status, Body: agent}, nil
}

func (h *Handler) get(r *http.Request) (httpx.Result, error) {
	id, err := agentID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	agent, err := h.service.GetAgent(r.Context(), id)
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: agent}, nil
}

func (h *Handler) checkIn(r *http.Request) (httpx.Result, error) {
	id, err := agentID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	agent, err := h.service.CheckIn(r.Context(), auth.SubjectOf(r), id)
	if err = h.tolerateUnpublished(r, agent != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Status: http.StatusCreated, Body: map[string]any{"ok": true}}, nil
}

func (h *Handler) uninstall(r *http.Request) (httpx.Result, error) {
	id, err := agentID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	agent, err := h.service.UninstallAgent(r.Context(), auth.SubjectOf(r), id)
	if err = h.tolerateUnpublished(r, agent != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: agent}, nil
}

func (h *Handler) issueTask(r *http.Request) (httpx.Result, error) {
	id, err := agentID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	var input app.IssueTaskInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	operator, _ := auth.FromContext(r.Context())
	issued, err := h.service.IssueTask(r.Context(), operator, id, input)
	if err = h.tolerateUnpublished(r, issued != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Status: http.StatusCreated, Body: issued}, nil
}

func (h *Handler) listTasks(r *http.Request) (httpx.Result, error) {
	id, err := agentID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	plan, err := httpx.ParsePage(r, h.defaultLimit, h.maxLimit)
	if err != nil {
		return httpx.Result{}, err
	}
	if plan.Cursor != nil {
		if _, err := uuid.Parse(plan.Cursor.ID); err != nil {
			return httpx.Result{}, pagination.ErrInvalidCursor
		}
	}

	page, err := h.service.ListIssuedTasks(r.Context(), queries.ListIssuedTasksQuery{AgentID: id, Plan: plan})
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: page}, nil
}

func (h *Handler) tolerateUnpublished(r *http.Request, persisted bool, err error) error {
	if persisted && errors.Is(err, commands.ErrEventNotPublished) {
		h.logger.WarnContext(r.Context(), "agent event not published", "error", err)
		return nil
	}
	return err
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return httpx.NotFound("agent not found")
	case errors.Is(err, commands.ErrTaskNotFound):
		return httpx.NotFound("task not found")
	case errors.Is(err, commands.ErrConfigurationMismatch):
		return httpx.Conflict("agent_exists", err.Error())
	case errors.Is(err, commands.ErrAgentUninstalled):
		return httpx.Conflict("agent_uninstalled", err.Error())
	case errors.Is(err, commands.ErrTaskForbidden):
		return httpx.Forbidden("task_forbidden", err.Error())
	case errors.Is(err, domain.ErrTaskRequired):
		return httpx.BadRequest("task_required", err.Error())
	case errors.Is(err, domain.ErrInvalid):
		return httpx.BadRequest("invalid_request", err.Error())
	default:
		return err
	}
}

func agentID(r *http.Request) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, idParam))
	if err != nil {
		return "", httpx.BadRequest("invalid_request", "agent_uuid must be a UUID")
	}
	return id.String(), nil
}
