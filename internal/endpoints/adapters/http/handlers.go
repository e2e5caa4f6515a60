package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/endpoints/app"
	"github.com/dejobratic/opsapi/internal/endpoints/app/commands"
	"github.com/dejobratic/opsapi/internal/endpoints/app/queries"
	"github.com/dejobratic/opsapi/internal/endpoints/domain"
	"github.com/dejobratic/opsapi/internal/endpoints/ports"
	"github.com/dejobratic/opsapi/internal/httpx"
	"github.com/dejobratic/opsapi/internal/pagination"
)

const idParam = "endpoint_uuid"

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

// Register mounts the endpoint routes. Every route is limited to the
// engagements the caller is scoped to.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/endpoints", func(r chi.Router) {
		r.With(auth.RequireRole(auth.RoleOperator)).Post("/", h.pipeline.Write(h.create))
		r.With(auth.RequireRole(auth.RoleAnalyst)).Get("/", h.pipeline.Read(h.list))
		r.With(auth.RequireRole(auth.RoleAnalyst)).Get("/{"+idParam+"}", h.pipeline.Read(h.get))
		r.With(auth.RequireRole(auth.RoleOperator)).Patch("/{"+idParam+"}", h.pipeline.Write(h.update))
		r.With(auth.RequireRole(auth.RoleOperator)).Post("/{"+idParam+"}/inventory", h.pipeline.Write(h.uploadInventory))
	})
}

func (h *Handler) create(r *http.Request) (httpx.Result, error) {
	var input app.CreateEndpointInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	endpoint, err := h.service.CreateEndpoint(r.Context(), auth.SubjectOf(r), access(r), input)
	if err = h.tolerateUnpublished(r, endpoint != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Status: http.StatusCreated, Body: endpoint}, nil
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

	q := r.URL.Query()
	query := queries.ListEndpointsQuery{
		Scope:      scope(r),
		OSContains: q.Get("os"),
		Plan:       plan,
	}
	if query.EngagementID, err = optionalUUID(q.Get("engagement_uuid"), "engagement_uuid"); err != nil {
		return httpx.Result{}, err
	}
	if query.AgentID, err = optionalUUID(q.Get("agent_uuid"), "agent_uuid"); err != nil {
		return httpx.Result{}, err
	}
	if raw := q.Get("ip"); raw != "" {
		if query.IP, err = domain.ParseAddress(raw); err != nil {
			return httpx.Result{}, mapError(err)
		}
	}

	page, err := h.service.ListEndpoints(r.Context(), query)
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: page}, nil
}

func (h *Handler) get(r *http.Request) (httpx.Result, error) {
	id, err := endpointID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	endpoint, err := h.service.GetEndpoint(r.Context(), access(r), id)
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: endpoint}, nil
}

func (h *Handler) update(r *http.Request) (httpx.Result, error) {
	id, err := endpointID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	var input app.UpdateEndpointInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	endpoint, err := h.service.UpdateEndpoint(r.Context(), auth.SubjectOf(r), access(r), id, input)
	if err = h.tolerateUnpublished(r, endpoint != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: endpoint}, nil
}

func (h *Handler) uploadInventory(r *http.Request) (httpx.Result, error) {
	id, err := endpointID(r)
	if err != nil {
		return httpx.Result{}, err
	}

	var inventory domain.Inventory
	if err := httpx.DecodeJSON(r, &inventory); err != nil {
		return httpx.Result{}, err
	}

	err = h.service.UploadInventory(r.Context(), auth.SubjectOf(r), access(r), id, inventory)
	if err = h.tolerateUnpublished(r, true, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Status: http.StatusNoContent}, nil
}

func (h *Handler) tolerateUnpublished(r *http.Request, persisted bool, err error) error {
	if persisted && errors.Is(err, commands.ErrEventNotPublished) {
		h.logger.WarnContext(r.Context(), "endpoint event not published", "error", err)
		return nil
	}
	return err
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return httpx.NotFound("endpoint not found")
	case errors.Is(err, ports.ErrEngagementNotFound):
		return httpx.NotFound("engagement not found")
	case errors.Is(err, commands.ErrEngagementForbidden):
		return httpx.Forbidden("engagement_forbidden", "no access to engagement")
	case errors.Is(err, domain.ErrInvalid):
		return httpx.BadRequest("invalid_request", err.Error())
	default:
		return err
	}
}

// access is the caller's engagement guard.
func access(r *http.Request) commands.Access {
	p, _ := auth.FromContext(r.Context())
	return p.CanAccessEngagement
}

// scope lists the engagements the caller may search, or nil for admins.
// Entries that are not UUIDs cannot name an engagement and are dropped.
func scope(r *http.Request) []string {
	p, _ := auth.FromContext(r.Context())
	if p.Satisfies(auth.RoleAdmin) {
		return nil
	}
	ids := []string{}
	for _, raw := range p.Engagements {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id.String())
		}
	}
	return ids
}

func optionalUUID(value, name string) (string, error) {
	if value == "" {
		return "", nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return "", httpx.BadRequest("invalid_request", name+" must be a UUID")
	}
	return id.String(), nil
}

func endpointID(r *http.Request) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, idParam))
	if err != nil {
		return "", httpx.BadRequest("invalid_request", "endpoint_uuid must be a UUID")
	}
	return id.String(), nil
}
