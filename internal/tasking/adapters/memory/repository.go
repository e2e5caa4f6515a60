package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/opsapi/internal/pagination"
	"github.com/dejobratic/opsapi/internal/tasking/domain"
	"github.com/dejobratic/opsapi/internal/tasking/ports"
)

// Repository provides an in-memory tasking catalog for local runs and tests.
type Repository struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
}

func NewRepository() *Repository {
	return &Repository{tasks: make(map[string]domain.Task)}
}

func (r *Repository) Create(_ context.Context, task domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nameTaken(task.LongName, "") {
		return ports.ErrLongNameTaken
	}
	r.tasks[task.ID] = task
	return nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &task, nil
}

func (r *Repository) GetByLongName(_ context.Context, name string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tasks {
		if t.LongName == name {
			return &t, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if filter.MinRole != "" && t.Permission.Rank() < filter.MinRole.Rank() {
			continue
		}
		result = append(result, t)
	}

	return pagination.Apply(result, filter.Plan, domain.Task.Key), nil
}

func (r *Repository) Update(_ context.Context, id string, patch domain.Patch) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tasks[id]
	if !ok {
		return nil, ports.ErrNotFound
	}

	updated := patch.Apply(current)
	if patch.LongName != nil && r.nameTaken(updated.LongName, id) {
		return nil, ports.ErrLongNameTaken
	}

	r.tasks[id] = updated
	return &updated, nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return ports.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *Repository) nameTaken(name, exceptID string) bool {
	for id, t := range r.tasks {
		if id != exceptID && t.LongName == name {
			return true
		}
	}
	return false
}
