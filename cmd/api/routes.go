package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	agentadapters "github.com/dejobratic/opsapi/internal/agents/adapters"
	agenthttp "github.com/dejobratic/opsapi/internal/agents/adapters/http"
	agentmemory "github.com/dejobratic/opsapi/internal/agents/adapters/memory"
	agentpostgres "github.com/dejobratic/opsapi/internal/agents/adapters/postgres"
	agentapp "github.com/dejobratic/opsapi/internal/agents/app"
	agentmetrics "github.com/dejobratic/opsapi/internal/agents/metrics"
	agentports "github.com/dejobratic/opsapi/internal/agents/ports"
	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/config"
	"github.com/dejobratic/opsapi/internal/database"
	endpointadapters "github.com/dejobratic/opsapi/internal/endpoints/adapters"
	endpointhttp "github.com/dejobratic/opsapi/internal/endpoints/adapters/http"
	endpointmemory "github.com/dejobratic/opsapi/internal/endpoints/adapters/memory"
	endpointpostgres "github.com/dejobratic/opsapi/internal/endpoints/adapters/postgres"
	endpointapp "github.com/dejobratic/opsapi/internal/endpoints/app"
	endpointmetrics "github.com/dejobratic/opsapi/internal/endpoints/metrics"
	endpointports "github.com/dejobratic/opsapi/internal/endpoints/ports"
	engagementadapters "github.com/dejobratic/opsapi/internal/engagements/adapters"
	engagementhttp "github.com/dejobratic/opsapi/internal/engagements/adapters/http"
	engagementmemory "github.com/dejobratic/opsapi/internal/engagements/adapters/memory"
	engagementpostgres "github.com/dejobratic/opsapi/internal/engagements/adapters/postgres"
	engagementapp "github.com/dejobratic/opsapi/internal/engagements/app"
	engagementmetrics "github.com/dejobratic/opsapi/internal/engagements/metrics"
	engagementports "github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/events"
	"github.com/dejobratic/opsapi/internal/httpx"
	"github.com/dejobratic/opsapi/internal/idempotency"
	idemmemory "github.com/dejobratic/opsapi/internal/idempotency/memory"
	idempostgres "github.com/dejobratic/opsapi/internal/idempotency/postgres"
	taskadapters "github.com/dejobratic/opsapi/internal/tasking/adapters"
	taskhttp "github.com/dejobratic/opsapi/internal/tasking/adapters/http"
	taskmemory "github.com/dejobratic/opsapi/internal/tasking/adapters/memory"
	taskpostgres "github.com/dejobratic/opsapi/internal/tasking/adapters/postgres"
	taskapp "github.com/dejobratic/opsapi/internal/tasking/app"
	taskmetrics "github.com/dejobratic/opsapi/internal/tasking/metrics"
	taskports "github.com/dejobratic/opsapi/internal/tasking/ports"
	useradapters "github.com/dejobratic/opsapi/internal/users/adapters"
	userhttp "github.com/dejobratic/opsapi/internal/users/adapters/http"
	usermemory "github.com/dejobratic/opsapi/internal/users/adapters/memory"
	userpostgres "github.com/dejobratic/opsapi/internal/users/adapters/postgres"
	userapp "github.com/dejobratic/opsapi/internal/users/app"
	usermetrics "github.com/dejobratic/opsapi/internal/users/metrics"
	userports "github.com/dejobratic/opsapi/internal/users/ports"
)

// routerDeps carries what newRouter needs. A nil pool selects the in-memory
// adapters.
type routerDeps struct {
	cfg    *config.Config
	logger *slog.Logger
	meter  metric.Meter
	pool   *pgxpool.Pool
}

func newRouter(deps routerDeps) (http.Handler, error) {
	cfg, logger := deps.cfg, deps.logger

	dbMetrics, err := database.NewMetrics(deps.meter)
	if err != nil {
		return nil, fmt.Errorf("database metrics: %w", err)
	}
	httpMetrics, err := httpx.NewMetrics(deps.meter)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}
	idemMetrics, err := idempotency.NewMetrics(deps.meter)
	if err != nil {
		return nil, fmt.Errorf("idempotency metrics: %w", err)
	}
	eventMetrics, err := events.NewMetrics(deps.meter)
	if err != nil {
		return nil, fmt.Errorf("event metrics: %w", err)
	}
	engMetrics, err := engagementmetrics.NewMetrics(deps.meter)
	if err != nil {
		return nil, fmt.Errorf("engagement metrics: %w", err)
	}
	tMetrics, err := taskmetrics.NewMetrics(deps.meter)
	if err != nil {
		return nil, fmt.Errorf("tasking metrics: %w", err)
	}
	aMetrics, err := agentmetrics.NewMetrics(deps.meter)
	if err != nil {
		return nil, fmt.Errorf("agent metrics: %w", err)
	}
	epMetrics, err := endpointmetrics.NewMetrics(deps.meter)
	if err != nil {
		return nil, fmt.Errorf("endpoint metrics: %w", err)
	}
	uMetrics, err := usermetrics.NewMetrics(deps.meter)
	if err != nil {
		return nil, fmt.Errorf("user metrics: %w", err)
	}

	var (
		idemStore      idempotency.Store
		engagementRepo engagementports.Repository
		taskRepo       taskports.Repository
		agentRepo      agentports.Repository
		endpointRepo   endpointports.Repository
		userRepo       userports.Repository
		ready          = func(*http.Request) error { return nil }
	)
	if deps.pool != nil {
		idemStore = idempostgres.NewStore(deps.pool)
		engagementRepo = engagementpostgres.NewRepository(deps.pool)
		taskRepo = taskpostgres.NewRepository(deps.pool)
		agentRepo = agentpostgres.NewRepository(deps.pool)
		endpointRepo = endpointpostgres.NewRepository(deps.pool)
		userRepo = userpostgres.NewRepository(deps.pool)
		ready = func(r *http.Request) error { return database.CheckHealth(r.Context(), deps.pool) }
	} else {
		idemStore = idemmemory.NewStore()
		engagementRepo = engagementmemory.NewRepository()
		taskRepo = taskmemory.NewRepository()
		agentRepo = agentmemory.NewRepository()
		endpointRepo = endpointmemory.NewRepository()
		userRepo = usermemory.NewRepository(engagementRepo)
	}

	publisher := events.NewObservablePublisher(events.NewLogPublisher(logger), eventMetrics)
	coordinator := idempotency.NewCoordinator(idempotency.NewObservableStore(idemStore, dbMetrics), logger, idemMetrics)
	pipeline := httpx.NewPipeline(coordinator, logger, httpMetrics, httpx.WithKeyScope(auth.SubjectOf))

	engagements := engagementadapters.NewObservableRepository(engagementRepo, dbMetrics)
	tasks := taskadapters.NewObservableRepository(taskRepo, dbMetrics)

	engagementService := engagementapp.NewService(engagements, publisher, logger, engMetrics, nil)
	taskService := taskapp.NewService(tasks, publisher, tMetrics, nil)
	agentService := agentapp.NewService(
		agentadapters.NewObservableRepository(agentRepo, dbMetrics),
		tasks, publisher, aMetrics, nil,
	)
	endpointService := endpointapp.NewService(
		endpointadapters.NewObservableRepository(endpointRepo, dbMetrics),
		engagements, publisher, epMetrics, nil,
	)
	userService := userapp.NewService(
		useradapters.NewObservableRepository(userRepo, dbMetrics),
		engagements, publisher, uMetrics, nil,
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.Recoverer(logger))
	r.Use(httpx.RequestLogger(logger))
	r.Use(httpx.WithMetrics(httpMetrics))
	r.Use(middleware.GetHead)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r); err != nil {
			logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{
			"name":        cfg.Service.Name,
			"version":     cfg.Service.Version,
			"environment": cfg.Service.Environment,
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.NewHeaderAuthenticator(cfg.Auth.SubjectHeader, cfg.Auth.RolesHeader, logger).Middleware)

		engagementhttp.NewHandler(engagementService, pipeline, logger, engagementhttp.PageLimits{
			Default: cfg.Pagination.DefaultLimit,
			Max:     cfg.Pagination.MaxLimit,
		}).Register(r)
		taskhttp.NewHandler(taskService, pipeline, logger, cfg.Pagination.DefaultLimit, cfg.Pagination.MaxLimit).Register(r)
		agenthttp.NewHandler(agentService, pipeline, logger, cfg.Pagination.DefaultLimit, cfg.Pagination.MaxLimit).Register(r)
		endpointhttp.NewHandler(endpointService, pipeline, logger, cfg.Pagination.DefaultLimit, cfg.Pagination.MaxLimit).Register(r)
		userhttp.NewHandler(userService, pipeline, logger, cfg.Pagination.DefaultLimit, cfg.Pagination.MaxLimit).Register(r)
	})

	return r, nil
}
