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
	"github.com/dejobratic/opsapi/internal/users/app"
	"github.com/dejobratic/opsapi/internal/users/app/commands"
	"github.com/dejobratic/opsapi/internal/users/app/queries"
	"github.com/dejobratic/opsapi/internal/users/domain"
	"github.com/dejobratic/opsapi/internal/users/ports"
)

const (
	idParam         = "user_uuid"
	engagementParam = "engagement_uuid"
)

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

// Register mounts the user administration routes. All of them are Admin
// only.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/admin/users", func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Post("/", h.pipeline.Write(h.create))
		r.Route("/{"+idParam+"}", func(r chi.Router) {
			r.Get("/", h.pipeline.Read(h.get))
			r.Patch("/", h.pipeline.Write(h.update))
			r.Delete("/", h.pipeline.Write(h.delete))
			r.Post("/disable", h.pipeline.Write(h.setStatus(domain.StatusDisabled)))
			r.Post("/enable", h.pipeline.Write(h.setStatus(domain.StatusEnabled)))
			r.Get("/engagements", h.pipeline.Read(h.listEngagements))
			r.Post("/engagements", h.pipeline.Write(h.addEngagements))
			r.Delete("/engagements/{"+engagementParam+"}", h.pipeline.Write(h.removeEngagement))
		})
	})
}

func (h *Handler) create(r *http.Request) (httpx.Result, error) {
	var input app.CreateUserInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	user, err := h.service.CreateUser(r.Context(), auth.SubjectOf(r), input)
	if err = h.tolerateUnpublished(r, user != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Status: http.StatusCreated, Body: user}, nil
}

func (h *Handler) get(r *http.Request) (httpx.Result, error) {
	id, err := pathUUID(r, idParam)
	if err != nil {
		return httpx.Result{}, err
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: user}, nil
}

func (h *Handler) update(r *http.Request) (httpx.Result, error) {
	id, err := pathUUID(r, idParam)
	if err != nil {
		return httpx.Result{}, err
	}

	var input app.UpdateUserInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	user, err := h.service.UpdateUser(r.Context(), auth.SubjectOf(r), id, input)
	if err = h.tolerateUnpublished(r, user != nil, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: user}, nil
}

func (h *Handler) setStatus(status domain.Status) httpx.Handler {
	return func(r *http.Request) (httpx.Result, error) {
		id, err := pathUUID(r, idParam)
		if err != nil {
			return httpx.Result{}, err
		}

		user, err := h.service.SetStatus(r.Context(), auth.SubjectOf(r), id, status)
		if err = h.tolerateUnpublished(r, user != nil, err); err != nil {
			return httpx.Result{}, mapError(err)
		}

		return httpx.Result{Body: map[string]any{idParam: id, "status": status}}, nil
	}
}

func (h *Handler) delete(r *http.Request) (httpx.Result, error) {
	id, err := pathUUID(r, idParam)
	if err != nil {
		return httpx.Result{}, err
	}

	err = h.service.DeleteUser(r.Context(), auth.SubjectOf(r), id)
	if err = h.tolerateUnpublished(r, true, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: map[string]any{idParam: id, "deleted": true}}, nil
}

func (h *Handler) listEngagements(r *http.Request) (httpx.Result, error) {
	id, err := pathUUID(r, idParam)
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

	page, err := h.service.ListEngagements(r.Context(), queries.ListEngagementsQuery{UserID: id, Plan: plan})
	if err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Body: page}, nil
}

func (h *Handler) addEngagements(r *http.Request) (httpx.Result, error) {
	id, err := pathUUID(r, idParam)
	if err != nil {
		return httpx.Result{}, err
	}

	var input app.AddEngagementsInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		return httpx.Result{}, err
	}

	err = h.service.AddEngagements(r.Context(), auth.SubjectOf(r), id, input)
	if err = h.tolerateUnpublished(r, true, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Status: http.StatusNoContent}, nil
}

func (h *Handler) removeEngagement(r *http.Request) (httpx.Result, error) {
	id, err := pathUUID(r, idParam)
	if err != nil {
		return httpx.Result{}, err
	}
	engagementID, err := pathUUID(r, engagementParam)
	if err != nil {
		return httpx.Result{}, err
	}

	err = h.service.RemoveEngagement(r.Context(), auth.SubjectOf(r), id, engagementID)
	if err = h.tolerateUnpublished(r, true, err); err != nil {
		return httpx.Result{}, mapError(err)
	}

	return httpx.Result{Status: http.StatusNoContent}, nil
}

func (h *Handler) tolerateUnpublished(r *http.Request, persisted bool, err error) error {
	if persisted && errors.Is(err, commands.ErrEventNotPublished) {
		h.logger.WarnContext(r.Context(), "user event not published", "error", err)
		return nil
	}
	return err
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return httpx.NotFound("user not found")
	case errors.Is(err, ports.ErrEngagementNotFound):
		return httpx.NotFound(err.Error())
	case errors.Is(err, ports.ErrUsernameTaken):
		return httpx.Conflict("username_taken", "username already exists")
	case errors.Is(err, commands.ErrEngagementsRequired):
		return httpx.BadRequest("engagement_uuids_required", "engagement_uuids must not be empty")
	case errors.Is(err, domain.ErrInvalid):
		return httpx.BadRequest("invalid_request", err.Error())
	default:
		return err
	}
}

func pathUUID(r *http.Request, param string) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return "", httpx.BadRequest("invalid_request", param+" must be a UUID")
	}
	return id.String(), nil
}
