package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/opsapi/internal/agents/domain"
	"github.com/dejobratic/opsapi/internal/agents/ports"
	"github.com/dejobratic/opsapi/internal/database"
)

const (
	agentColumns   = `agent_uuid, agent_configuration_uuid, created_at, last_seen, uninstall_date`
	historyColumns = `task_history_uuid, agent_uuid, task_uuid, operator, parameters, issued_at`
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, agent domain.Agent) error {
	query := `
		INSERT INTO agents (agent_uuid, agent_configuration_uuid, created_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.pool.Exec(ctx, query, agent.ID, agent.ConfigurationID, agent.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ports.ErrAlreadyEnrolled
		}
		return fmt.Errorf("insert agent: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE agent_uuid = $1`

	agent, err := scanAgent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select agent: %w", err)
	}

	return agent, nil
}

// RecordCheckIn logs the check-in and advances last_seen in one statement.
func (r *Repository) RecordCheckIn(ctx context.Context, id string, at time.Time) (*domain.Agent, error) {
	query := `
		WITH seen AS (
			UPDATE agents SET last_seen = GREATEST(COALESCE(last_seen, $2), $2)
			WHERE agent_uuid = $1
			RETURNING ` + agentColumns + `
		), logged AS (
			INSERT INTO agent_check_ins (agent_uuid, checked_in_at)
			SELECT agent_uuid, $2 FROM seen
		)
		SELECT ` + agentColumns + ` FROM seen
	`

	agent, err := scanAgent(r.pool.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("record check-in: %w", err)
	}

	return agent, nil
}

func (r *Repository) MarkUninstalled(ctx context.Context, id string, at time.Time) (*domain.Agent, error) {
	query := `
		UPDATE agents SET uninstall_date = $2
		WHERE agent_uuid = $1
		RETURNING ` + agentColumns

	agent, err := scanAgent(r.pool.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("uninstall agent: %w", err)
	}

	return agent, nil
}

func (r *Repository) CreateIssuedTask(ctx context.Context, task domain.IssuedTask) error {
	query := `
		INSERT INTO agent_task_history (task_history_uuid, agent_uuid, task_uuid, operator, parameters, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	var params []byte
	if len(task.Parameters) > 0 {
		params = task.Parameters
	}

	_, err := r.pool.Exec(ctx, query, task.ID, task.AgentID, task.TaskID, task.Operator, params, task.IssuedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err, "") {
			return ports.ErrNotFound
		}
		return fmt.Errorf("insert issued task: %w", err)
	}

	return nil
}

func (r *Repository) ListIssuedTasks(ctx context.Context, filter ports.TaskHistoryFilter) ([]domain.IssuedTask, error) {
	args := []any{filter.AgentID}
	where := "WHERE agent_uuid = $1"
	if clause, keysetArgs := filter.Plan.Predicate("issued_at", "task_history_uuid", len(args)+1); clause != "" {
		where += " AND " + clause
		args = append(args, keysetArgs...)
	}

	args = append(args, filter.Plan.FetchLimit())
	query := fmt.Sprintf(`SELECT %s FROM agent_task_history %s ORDER BY %s LIMIT $%d`,
		historyColumns, where, filter.Plan.OrderBy("issued_at", "task_history_uuid"), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query issued tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.IssuedTask{}
	for rows.Next() {
		var (
			t      domain.IssuedTask
			params []byte
		)
		if err := rows.Scan(&t.ID, &t.AgentID, &t.TaskID, &t.Operator, &params, &t.IssuedAt); err != nil {
			return nil, fmt.Errorf("scan issued task: %w", err)
		}
		if len(params) > 0 {
			t.Parameters = json.RawMessage(params)
		}
		t.IssuedAt = t.IssuedAt.UTC()
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issued tasks: %w", err)
	}

	return tasks, nil
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var a domain.Agent
	if err := row.Scan(&a.ID, &a.ConfigurationID, &a.CreatedAt, &a.LastSeen, &a.UninstallDate); err != nil {
		return nil, err
	}

	a.CreatedAt = a.CreatedAt.UTC()
	a.LastSeen = utc(a.LastSeen)
	a.UninstallDate = utc(a.UninstallDate)
	return &a, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
