package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/httpx"
	"github.com/dejobratic/opsapi/internal/pagination"
	"github.com/dejobratic/opsapi/internal/tasking/app"
	"github.com/dejobratic/opsapi/internal/tasking/app/commands"
	"github.com/dejobratic/opsapi/internal/tasking/app/queries"
	"github.com/dejobratic/opsapi/internal/tasking/domain"
	"github.com/dejobratic/opsapi/internal/tasking/ports"
)

const idParam = "task_uuid"

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

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/tasking", func(r chi.Router) {
		r.With(auth.RequireRole(auth.RoleOperator)).Post("/", h.pipeline.Write(h.create))
		r.With(auth.RequireRole(auth.RoleAnalyst)).Get("/", h.pipeline.Read(h.list))
		r.With(auth.RequireRole(auth.RoleAnalyst)).Get("/{"+idParam+"}", h.pipeline.Read(h.get))
		r.With(auth.RequireRole(auth.RoleOperator)).Patch("/{"+idParam+"}", h.pipeline.Write(h.update))
		r.With(auth.RequireRole(auth.RoleAdmin)).Delete("/{"+idParam+"}", h.pipeline.Write(h.delete))
	})
}

func (h *Handler) create(r *http.Request) (httpx.Result, error) {
	var input app.CreateTaskInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	task, err := h.service.CreateTask(r.Context(), subject(r), input)
	if err = h.tolerateUnpublished(r, task != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Status: http.StatusCreated, Body: task}, nil
}

func (h *Handler) list(r *http.Request) (httpx.Result, error) {
	plan, err := httpx.ParsePage(r, h.defaultLimit, h.maxLimit)
	if err != nil {
		return httpx.Result{}, err
	}
	if plan.Cursor != nil {
		if _, err := uuid.Parse(plan.Cursor.ID); err != nil {
			return httpx.Result{}, pagination.ErrInvalidCursor
		}
	}

	minRole, err := app.ParseMinRole(r.URL.Query().Get("min_role"))
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	page, err := h.service.ListTasks(r.Context(), queries.ListTasksQuery{MinRole: minRole, Plan: plan})
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: page}, nil
}

func (h *Handler) get(r *http.Request) (httpx.Result, error) {
	id, err := taskID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	task, err := h.service.GetTask(r.Context(), id)
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: task}, nil
}

func (h *Handler) update(r *http.Request) (httpx.Result, error) {
	id, err := taskID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	var input app.UpdateTaskInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	task, err := h.service.UpdateTask(r.Context(), subject(r), id, input)
	if err = h.tolerateUnpublished(r, task != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: task}, nil
}

func (h *Handler) delete(r *http.Request) (httpx.Result, error) {
	id, err := taskID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	err = h.service.DeleteTask(r.Context(), subject(r), id)
	if err = h.tolerateUnpublished(r, true, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: map[string]any{idParam: id, "deleted": true}}, nil
}

func (h *Handler) tolerateUnpublished(r *http.Request, persisted bool, err error) error {
	if persisted && errors.Is(err, commands.ErrEventNotPublished) {
		h.logger.WarnContext(r.Context(), "task event not published", "error", err)
		return nil
	}
	return err
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return httpx.NotFound("task not found")
	case errors.Is(err, ports.ErrLongNameTaken):
		return httpx.Conflict("name_taken", "task name already in use")
	case errors.Is(err, domain.ErrInvalid):
		return httpx.BadRequest("invalid_request", err.Error())
	default:
		return err
	}
}

func taskID(r *http.Request) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, idParam))
	if err != nil {
		return "", httpx.BadRequest("invalid_request", "task_uuid must be a UUID")
	}
	return id.String(), nil
}

func subject(r *http.Request) string {
	p, _ := auth.FromContext(r.Context())
	return p.Subject
}
