package http_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/opsapi/internal/auth"
	engagementhttp "github.com/dejobratic/opsapi/internal/engagements/adapters/http"
	"github.com/dejobratic/opsapi/internal/engagements/adapters/memory"
	"github.com/dejobratic/opsapi/internal/engagements/app"
	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/etag"
	"github.com/dejobratic/opsapi/internal/events"
	"github.com/dejobratic/opsapi/internal/httpx"
	"github.com/dejobratic/opsapi/internal/idempotency"
	idemmemory "github.com/dejobratic/opsapi/internal/idempotency/memory"
	"github.com/dejobratic/opsapi/internal/pagination"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newServer(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	service := app.NewService(memory.NewRepository(), events.NewLogPublisher(logger), logger, nil, c.Now)
	pipeline := httpx.NewPipeline(idempotency.NewCoordinator(idemmemory.NewStore(), logger, nil), logger, nil)
	handler := engagementhttp.NewHandler(service, pipeline, logger, engagementhttp.PageLimits{Default: 50, Max: 200})

	r := chi.NewRouter()
	r.Use(auth.NewHeaderAuthenticator("X-Auth-Subject", "X-Auth-Roles", logger).Middleware)
	handler.Register(r)
	return r
}

type request struct {
	method string
	path   string
	body   string
	role   auth.Role
	header map[string]string
}

func do(h http.Handler, req request) *httptest.ResponseRecorder {
	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	r.Header.Set("X-Auth-Subject", "tester")
	r.Header.Set("X-Auth-Roles", string(req.role))
	for k, v := range req.header {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func create(t *testing.T, h http.Handler, name string) domain.Engagement {
	t.Helper()
	rec := do(h, request{
		method: http.MethodPost,
		path:   "/api/v1/engagements",
		body:   `{"engagement_name":"` + name + `","start_ts":"2025-01-01T00:00:00Z"}`,
		role:   auth.RoleOperator,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var e domain.Engagement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestCreateEngagement(t *testing.T) {
	h := newServer(t)

	t.Run("analyst is forbidden", func(t *testing.T) {
		rec := do(h, request{method: http.MethodPost, path: "/api/v1/engagements", body: `{}`, role: auth.RoleAnalyst})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		rec := do(h, request{
			method: http.MethodPost,
			path:   "/api/v1/engagements",
			body:   `{"engagement_name":"x","start_ts":"2025-02-01T00:00:00Z","end_ts":"2025-01-01T00:00:00Z"}`,
			role:   auth.RoleOperator,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "end_ts must not be before start_ts")
	})

	t.Run("created with validator", func(t *testing.T) {
		rec := do(h, request{
			method: http.MethodPost,
			path:   "/api/v1/engagements",
			body:   `{"engagement_name":"Alpha","start_ts":"2025-01-01T00:00:00Z"}`,
			role:   auth.RoleOperator,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(etag.Header))
		assert.Contains(t, rec.Body.String(), `"end_ts":null`)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		rec := do(h, request{
			method: http.MethodPost,
			path:   "/api/v1/engagements",
			body:   `{"engagement_name":"Alpha","start_ts":"2025-01-01T00:00:00Z"}`,
			role:   auth.RoleAdmin,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "name_taken")
	})
}

func TestCreateEngagement_IdempotentReplay(t *testing.T) {
	h := newServer(t)
	key := map[string]string{httpx.IdempotencyKeyHeader: "abc"}

	first := do(h, request{
		method: http.MethodPost,
		path:   "/api/v1/engagements",
		body:   `{"engagement_name":"x","start_ts":"2025-01-01T00:00:00Z"}`,
		role:   auth.RoleOperator,
		header: key,
	})
	require.Equal(t, http.StatusCreated, first.Code)

	// Key order and whitespace do not make a different request.
	second := do(h, request{
		method: http.MethodPost,
		path:   "/api/v1/engagements",
		body:   `{ "start_ts": "2025-01-01T00:00:00Z", "engagement_name": "x" }`,
		role:   auth.RoleOperator,
		header: key,
	})
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(httpx.ReplayedHeader))
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, first.Header().Get(etag.Header), second.Header().Get(etag.Header))

	reused := do(h, request{
		method: http.MethodPost,
		path:   "/api/v1/engagements",
		body:   `{"engagement_name":"y","start_ts":"2025-01-01T00:00:00Z"}`,
		role:   auth.RoleOperator,
		header: key,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)
	assert.Contains(t, reused.Body.String(), "idempotency_key_reused")

	list := do(h, request{method: http.MethodGet, path: "/api/v1/engagements", role: auth.RoleAnalyst})
	var page pagination.Page[domain.Engagement]
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &page))
	assert.Len(t, page.Items, 1)
}

func TestListEngagements_Pagination(t *testing.T) {
	h := newServer(t)
	e1 := create(t, h, "one")
	e2 := create(t, h, "two")
	e3 := create(t, h, "three")

	first := do(h, request{method: http.MethodGet, path: "/api/v1/engagements?limit=2", role: auth.RoleAnalyst})
	require.Equal(t, http.StatusOK, first.Code)

	var page pagination.Page[domain.Engagement]
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, e3.ID, page.Items[0].ID)
	assert.Equal(t, e2.ID, page.Items[1].ID)
	require.NotNil(t, page.NextCursor)

	second := do(h, request{method: http.MethodGet, path: "/api/v1/engagements?limit=2&cursor=" + *page.NextCursor, role: auth.RoleAnalyst})
	require.Equal(t, http.StatusOK, second.Code)

	var last pagination.Page[domain.Engagement]
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &last))
	require.Len(t, last.Items, 1)
	assert.Equal(t, e1.ID, last.Items[0].ID)
	assert.Nil(t, last.NextCursor)
	assert.NotContains(t, second.Body.String(), "nextCursor")
}

func TestListEngagements_EmptyAndInvalid(t *testing.T) {
	h := newServer(t)

	empty := do(h, request{method: http.MethodGet, path: "/api/v1/engagements", role: auth.RoleAnalyst})
	require.Equal(t, http.StatusOK, empty.Code)
	assert.JSONEq(t, `{"items":[]}`, empty.Body.String())

	bad := do(h, request{method: http.MethodGet, path: "/api/v1/engagements?cursor=garbage!", role: auth.RoleAnalyst})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Contains(t, bad.Body.String(), "invalid_cursor")

	nonUUID := pagination.EncodeCursor(pagination.Cursor{Timestamp: time.Now(), ID: "not|a|uuid"})
	rec := do(h, request{method: http.MethodGet, path: "/api/v1/engagements?cursor=" + nonUUID, role: auth.RoleAnalyst})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEngagement_Conditional(t *testing.T) {
	h := newServer(t)
	e := create(t, h, "cached")
	path := "/api/v1/engagements/" + e.ID

	first := do(h, request{method: http.MethodGet, path: path, role: auth.RoleAdmin})
	require.Equal(t, http.StatusOK, first.Code)
	tag := first.Header().Get(etag.Header)
	require.NotEmpty(t, tag)

	second := do(h, request{method: http.MethodGet, path: path, role: auth.RoleAdmin, header: map[string]string{etag.IfNoneMatchHeader: tag}})
	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.Bytes())

	name := "renamed"
	patch := do(h, request{method: http.MethodPatch, path: path, body: `{"engagement_name":"` + name + `"}`, role: auth.RoleAdmin})
	require.Equal(t, http.StatusOK, patch.Code)

	third := do(h, request{method: http.MethodGet, path: path, role: auth.RoleAdmin, header: map[string]string{etag.IfNoneMatchHeader: tag}})
	assert.Equal(t, http.StatusOK, third.Code)
	assert.NotEqual(t, tag, third.Header().Get(etag.Header))
}

func TestGetEngagement_AccessAndErrors(t *testing.T) {
	h := newServer(t)
	e := create(t, h, "scoped")

	rec := do(h, request{method: http.MethodGet, path: "/api/v1/engagements/" + e.ID, role: auth.RoleAnalyst})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, request{
		method: http.MethodGet,
		path:   "/api/v1/engagements/" + e.ID,
		role:   auth.RoleAnalyst,
		header: map[string]string{"X-Auth-Engagements": e.ID},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, request{method: http.MethodGet, path: "/api/v1/engagements/00000000-0000-0000-0000-000000000000", role: auth.RoleAdmin})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, request{method: http.MethodGet, path: "/api/v1/engagements/nope", role: auth.RoleAdmin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateEngagement_Validation(t *testing.T) {
	h := newServer(t)
	e := create(t, h, "window")
	path := "/api/v1/engagements/" + e.ID

	rec := do(h, request{method: http.MethodPatch, path: path, body: `{}`, role: auth.RoleAdmin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, request{method: http.MethodPatch, path: path, body: `{"end_ts":"2024-01-01T00:00:00Z"}`, role: auth.RoleAdmin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, request{method: http.MethodPatch, path: path, body: `{"end_ts":"2026-01-01T00:00:00Z"}`, role: auth.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"end_ts":"2026-01-01T00:00:00Z"`)
}

func TestDeleteEngagement(t *testing.T) {
	h := newServer(t)
	e := create(t, h, "doomed")
	path := "/api/v1/engagements/" + e.ID

	rec := do(h, request{method: http.MethodDelete, path: path, role: auth.RoleOperator})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, request{method: http.MethodDelete, path: path, role: auth.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"engagement_uuid":"`+e.ID+`","deleted":true}`, rec.Body.String())

	rec = do(h, request{method: http.MethodGet, path: path, role: auth.RoleAdmin})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
