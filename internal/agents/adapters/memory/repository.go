package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/opsapi/internal/agents/domain"
	"github.com/dejobratic/opsapi/internal/agents/ports"
	"github.com/dejobratic/opsapi/internal/pagination"
)

// Repository keeps agents, their check-in log and task history in memory.
type Repository struct {
	mu       sync.RWMutex
	agents   map[string]domain.Agent
	checkIns map[string][]time.Time
	history  map[string][]domain.IssuedTask
}

func NewRepository() *Repository {
	return &Repository{
		agents:   make(map[string]domain.Agent),
		checkIns: make(map[string][]time.Time),
		history:  make(map[string][]domain.IssuedTask),
	}
}

func (r *Repository) Create(_ context.Context, agent domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agent.ID]; ok {
		return ports.ErrAlreadyEnrolled
	}
	r.agents[agent.ID] = agent
	return nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &agent, nil
}

func (r *Repository) RecordCheckIn(_ context.Context, id string, at time.Time) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	agent = agent.SeenAt(at)
	r.agents[id] = agent
	r.checkIns[id] = append(r.checkIns[id], at)
	return &agent, nil
}

// CheckIns returns the recorded check-in times of an agent.
func (r *Repository) CheckIns(id string) []time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]time.Time(nil), r.checkIns[id]...)
}

func (r *Repository) MarkUninstalled(_ context.Context, id string, at time.Time) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	agent.UninstallDate = &at
	r.agents[id] = agent
	return &agent, nil
}

func (r *Repository) CreateIssuedTask(_ context.Context, task domain.IssuedTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[task.AgentID]; !ok {
		return ports.ErrNotFound
	}
	r.history[task.AgentID] = append(r.history[task.AgentID], task)
	return nil
}

func (r *Repository) ListIssuedTasks(_ context.Context, filter ports.TaskHistoryFilter) ([]domain.IssuedTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := append([]domain.IssuedTask(nil), r.history[filter.AgentID]...)
	return pagination.Apply(rows, filter.Plan, domain.IssuedTask.Key), nil
}
