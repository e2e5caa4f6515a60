package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/opsapi/internal/database"
	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/engagements/ports"
)

const selectColumns = `engagement_uuid, engagement_name, start_ts, end_ts, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, engagement domain.Engagement) error {
	query := `
		INSERT INTO engagements (engagement_uuid, engagement_name, start_ts, end_ts, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		engagement.ID,
		engagement.Name,
		engagement.StartTS,
		engagement.EndTS,
		engagement.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ports.ErrNameTaken
		}
		return fmt.Errorf("insert engagement: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Engagement, error) {
	query := `SELECT ` + selectColumns + ` FROM engagements WHERE engagement_uuid = $1`

	engagement, err := scanEngagement(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select engagement: %w", err)
	}

	return engagement, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Engagement, error) {
	var (
		conds []string
		args  []any
	)

	if filter.ActiveOnly {
		args = append(args, filter.Now)
		conds = append(conds, fmt.Sprintf("(end_ts IS NULL OR end_ts > $%d)", len(args)))
	}
	if filter.NameContains != "" {
		args = append(args, "%"+escapeLike(filter.NameContains)+"%")
		conds = append(conds, fmt.Sprintf("engagement_name ILIKE $%d", len(args)))
	}
	if clause, keysetArgs := filter.Plan.Predicate("created_at", "engagement_uuid", len(args)+1); clause != "" {
		conds = append(conds, clause)
		args = append(args, keysetArgs...)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, filter.Plan.FetchLimit())
	query := fmt.Sprintf(`SELECT %s FROM engagements %s ORDER BY %s LIMIT $%d`,
		selectColumns, where, filter.Plan.OrderBy("created_at", "engagement_uuid"), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query engagements: %w", err)
	}
	defer rows.Close()

	engagements := []domain.Engagement{}
	for rows.Next() {
		engagement, err := scanEngagement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan engagement: %w", err)
		}
		engagements = append(engagements, *engagement)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate engagements: %w", err)
	}

	return engagements, nil
}

func (r *Repository) Update(ctx context.Context, id string, patch domain.Patch) (*domain.Engagement, error) {
	query := `
		UPDATE engagements SET
			engagement_name = COALESCE($2, engagement_name),
			start_ts        = COALESCE($3, start_ts),
			end_ts          = COALESCE($4, end_ts)
		WHERE engagement_uuid = $1
		RETURNING ` + selectColumns

	var name *string
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		name = &trimmed
	}

	var start, end *time.Time
	if patch.StartTS != nil {
		ts := domain.Timestamp(*patch.StartTS)
		start = &ts
	}
	if patch.EndTS != nil {
		ts := domain.Timestamp(*patch.EndTS)
		end = &ts
	}

	engagement, err := scanEngagement(r.pool.QueryRow(ctx, query, id, name, start, end))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
			return nil, ports.ErrNotFound
		}
		if database.IsUniqueViolation(err) {
			return nil, ports.ErrNameTaken
		}
		return nil, fmt.Errorf("update engagement: %w", err)
	}

	return engagement, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM engagements WHERE engagement_uuid = $1`, id)
	if err != nil {
		if database.IsInvalidText(err) {
			return ports.ErrNotFound
		}
		return fmt.Errorf("delete engagement: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func scanEngagement(row pgx.Row) (*domain.Engagement, error) {
	var e domain.Engagement
	if err := row.Scan(&e.ID, &e.Name, &e.StartTS, &e.EndTS, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.StartTS = e.StartTS.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	if e.EndTS != nil {
		end := e.EndTS.UTC()
		e.EndTS = &end
	}
	return &e, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
