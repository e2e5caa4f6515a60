package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/engagements/app"
	"github.com/dejobratic/opsapi/internal/engagements/app/commands"
	"github.com/dejobratic/opsapi/internal/engagements/app/queries"
	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/httpx"
	"github.com/dejobratic/opsapi/internal/pagination"
)

const idParam = "engagement_uuid"

// Handler exposes HTTP endpoints for engagement operations.
type Handler struct {
	service  *app.Service
	pipeline *httpx.Pipeline
	logger   *slog.Logger
	pageSize PageLimits
}

// PageLimits bounds the list endpoint page size.
type PageLimits struct {
	Default int
	Max     int
}

func NewHandler(service *app.Service, pipeline *httpx.Pipeline, logger *slog.Logger, limits PageLimits) *Handler {
	return &Handler{service: service, pipeline: pipeline, logger: logger, pageSize: limits}
}

// Register mounts the engagement routes. The router must already carry the
// authentication middleware.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/engagements", func(r chi.Router) {
		r.With(auth.RequireRole(auth.RoleOperator)).Post("/", h.pipeline.Write(h.create))
		r.With(auth.RequireRole(auth.RoleAnalyst)).Get("/", h.pipeline.Read(h.list))

		r.Route("/{"+idParam+"}", func(r chi.Router) {
			r.Use(auth.RequireEngagementAccess(idParam))
			r.With(auth.RequireRole(auth.RoleAnalyst)).Get("/", h.pipeline.Read(h.get))
			r.With(auth.RequireRole(auth.RoleOperator)).Patch("/", h.pipeline.Write(h.update))
			r.With(auth.RequireRole(auth.RoleAdmin)).Delete("/", h.pipeline.Write(h.delete))
		})
	})
}

func (h *Handler) create(r *http.Request) (httpx.Result, error) {
	var input app.CreateEngagementInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	engagement, err := h.service.CreateEngagement(r.Context(), actor(r), input)
	if err = h.tolerateUnpublished(r, engagement != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Status: http.StatusCreated, Body: engagement}, nil
}

func (h *Handler) list(r *http.Request) (httpx.Result, error) {
	plan, err := httpx.ParsePage(r, h.pageSize.Default, h.pageSize.Max)
	if err != nil {
		return httpx.Result{}, err
	}
	if err := requireUUIDCursor(plan); err != nil {
		return httpx.Result{}, err
	}

	activeOnly, err := httpx.QueryBool(r, "active_only")
	if err != nil {
		return httpx.Result{}, err
	}

	page, err := h.service.ListEngagements(r.Context(), queries.ListEngagementsQuery{
		ActiveOnly:   activeOnly,
		NameContains: r.URL.Query().Get("name"),
		Plan:         plan,
	})
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: page}, nil
}

func (h *Handler) get(r *http.Request) (httpx.Result, error) {
	id, err := pathID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	engagement, err := h.service.GetEngagement(r.Context(), id)
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: engagement}, nil
}

func (h *Handler) update(r *http.Request) (httpx.Result, error) {
	id, err := pathID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	var input app.UpdateEngagementInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	engagement, err := h.service.UpdateEngagement(r.Context(), actor(r), id, input)
	if err = h.tolerateUnpublished(r, engagement != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: engagement}, nil
}

func (h *Handler) delete(r *http.Request) (httpx.Result, error) {
	id, err := pathID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	err = h.service.DeleteEngagement(r.Context(), actor(r), id)
	if err = h.tolerateUnpublished(r, true, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: map[string]any{idParam: id, "deleted": true}}, nil
}

// tolerateUnpublished drops an event delivery failure once the write itself
// is durable, so the client sees the state that was actually stored.
func (h *Handler) tolerateUnpublished(r *http.Request, persisted bool, err error) error {
	if persisted && errors.Is(err, commands.ErrEventNotPublished) {
		h.logger.WarnContext(r.Context(), "engagement event not published", "error", err)
		return nil
	}
	return err
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return httpx.NotFound("engagement not found")
	case errors.Is(err, ports.ErrNameTaken):
		return httpx.Conflict("name_taken", "engagement name already in use")
	case errors.Is(err, domain.ErrInvalid):
		return httpx.BadRequest("invalid_request", err.Error())
	default:
		return err
	}
}

func pathID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, idParam)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", httpx.BadRequest("invalid_request", "engagement_uuid must be a UUID")
	}
	return id.String(), nil
}

func requireUUIDCursor(plan pagination.Plan) error {
	if plan.Cursor == nil {
		return nil
	}
	if _, err := uuid.Parse(plan.Cursor.ID); err != nil {
		return pagination.ErrInvalidCursor
	}
	return nil
}

func actor(r *http.Request) string {
	p, _ := auth.FromContext(r.Context())
	return p.Subject
}
