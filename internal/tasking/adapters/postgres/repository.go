package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/database"
	"github.com/dejobratic/opsapi/internal/tasking/domain"
	"github.com/dejobratic/opsapi/internal/tasking/ports"
)

const selectColumns = `task_uuid, task_long_name, task_permission, created_at`

// Repository persists the catalog. task_permission is stored as the role
// rank so min_role filters compare with >=.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, task domain.Task) error {
	query := `
		INSERT INTO tasking (task_uuid, task_long_name, task_permission, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, task.ID, task.LongName, task.Permission.Rank(), task.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ports.ErrLongNameTaken
		}
		return fmt.Errorf("insert task: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + selectColumns + ` FROM tasking WHERE task_uuid = $1`

	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select task: %w", err)
	}

	return task, nil
}

func (r *Repository) GetByLongName(ctx context.Context, name string) (*domain.Task, error) {
	query := `SELECT ` + selectColumns + ` FROM tasking WHERE task_long_name = $1`

	task, err := scanTask(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select task by name: %w", err)
	}

	return task, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Task, error) {
	var (
		conds []string
		args  []any
	)

	if filter.MinRole != "" {
		args = append(args, filter.MinRole.Rank())
		conds = append(conds, fmt.Sprintf("task_permission >= $%d", len(args)))
	}
	if clause, keysetArgs := filter.Plan.Predicate("created_at", "task_uuid", len(args)+1); clause != "" {
		conds = append(conds, clause)
		args = append(args, keysetArgs...)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, filter.Plan.FetchLimit())
	query := fmt.Sprintf(`SELECT %s FROM tasking %s ORDER BY %s LIMIT $%d`,
		selectColumns, where, filter.Plan.OrderBy("created_at", "task_uuid"), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

func (r *Repository) Update(ctx context.Context, id string, patch domain.Patch) (*domain.Task, error) {
	query := `
		UPDATE tasking SET
			task_long_name  = COALESCE($2, task_long_name),
			task_permission = COALESCE($3, task_permission)
		WHERE task_uuid = $1
		RETURNING ` + selectColumns

	var name *string
	if patch.LongName != nil {
		trimmed := strings.TrimSpace(*patch.LongName)
		name = &trimmed
	}
	var rank *int16
	if patch.Permission != nil {
		v := int16(patch.Permission.Rank())
		rank = &v
	}

	task, err := scanTask(r.pool.QueryRow(ctx, query, id, name, rank))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
			return nil, ports.ErrNotFound
		}
		if database.IsUniqueViolation(err) {
			return nil, ports.ErrLongNameTaken
		}
		return nil, fmt.Errorf("update task: %w", err)
	}

	return task, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM tasking WHERE task_uuid = $1`, id)
	if err != nil {
		if database.IsInvalidText(err) {
			return ports.ErrNotFound
		}
		return fmt.Errorf("delete task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t    domain.Task
		rank int16
	)
	if err := row.Scan(&t.ID, &t.LongName, &rank, &t.CreatedAt); err != nil {
		return nil, err
	}

	role, err := auth.RoleFromRank(int(rank))
	if err != nil {
		return nil, err
	}
	t.Permission = role
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}
