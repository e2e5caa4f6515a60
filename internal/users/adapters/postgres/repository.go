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
	engdomain "github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/users/domain"
	"github.com/dejobratic/opsapi/internal/users/ports"
)

const (
	userColumns = `user_uuid, username, password_hash, account_status, global_role, created_at`

	userFK       = "engagement_users_user_fk"
	engagementFK = "engagement_users_engagement_fk"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, user domain.User) error {
	query := `
		INSERT INTO users (user_uuid, username, password_hash, account_status, global_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		string(user.AccountStatus),
		user.GlobalRole.Rank(),
		user.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ports.ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_uuid = $1`
	return r.one(ctx, "select user", query, id)
}

func (r *Repository) SetStatus(ctx context.Context, id string, status domain.Status) (*domain.User, error) {
	query := `UPDATE users SET account_status = $2 WHERE user_uuid = $1 RETURNING ` + userColumns
	return r.one(ctx, "update user status", query, id, string(status))
}

func (r *Repository) SetRole(ctx context.Context, id string, role auth.Role) (*domain.User, error) {
	query := `UPDATE users SET global_role = $2 WHERE user_uuid = $1 RETURNING ` + userColumns
	return r.one(ctx, "update user role", query, id, role.Rank())
}

func (r *Repository) one(ctx context.Context, op, query string, args ...any) (*domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE user_uuid = $1`, id)
	if err != nil {
		if database.IsInvalidText(err) {
			return ports.ErrNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func (r *Repository) ListEngagements(ctx context.Context, filter ports.MembershipFilter) ([]engdomain.Engagement, error) {
	args := []any{filter.UserID}
	conds := []string{"eu.user_uuid = $1"}
	if clause, keysetArgs := filter.Plan.Predicate("e.created_at", "e.engagement_uuid", len(args)+1); clause != "" {
		conds = append(conds, clause)
		args = append(args, keysetArgs...)
	}

	args = append(args, filter.Plan.FetchLimit())
	query := fmt.Sprintf(`
		SELECT e.engagement_uuid, e.engagement_name, e.start_ts, e.end_ts, e.created_at
		FROM engagement_users eu
		JOIN engagements e ON e.engagement_uuid = eu.engagement_uuid
		WHERE %s
		ORDER BY %s
		LIMIT $%d`,
		strings.Join(conds, " AND "), filter.Plan.OrderBy("e.created_at", "e.engagement_uuid"), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query user engagements: %w", err)
	}
	defer rows.Close()

	engagements := []engdomain.Engagement{}
	for rows.Next() {
		var e engdomain.Engagement
		if err := rows.Scan(&e.ID, &e.Name, &e.StartTS, &e.EndTS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user engagement: %w", err)
		}
		e.StartTS = e.StartTS.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		if e.EndTS != nil {
			end := e.EndTS.UTC()
			e.EndTS = &end
		}
		engagements = append(engagements, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user engagements: %w", err)
	}

	return engagements, nil
}

func (r *Repository) AddEngagements(ctx context.Context, userID string, engagementIDs []string) error {
	query := `
		INSERT INTO engagement_users (engagement_uuid, user_uuid)
		SELECT unnest($1::uuid[]), $2
		ON CONFLICT DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, engagementIDs, userID); err != nil {
		switch {
		case database.IsForeignKeyViolation(err, userFK):
			return ports.ErrNotFound
		case database.IsForeignKeyViolation(err, engagementFK):
			return ports.ErrEngagementNotFound
		}
		return fmt.Errorf("insert engagement memberships: %w", err)
	}

	return nil
}

func (r *Repository) RemoveEngagement(ctx context.Context, userID, engagementID string) error {
	query := `DELETE FROM engagement_users WHERE user_uuid = $1 AND engagement_uuid = $2`

	if _, err := r.pool.Exec(ctx, query, userID, engagementID); err != nil {
		if database.IsInvalidText(err) {
			return nil
		}
		return fmt.Errorf("delete engagement membership: %w", err)
	}

	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u      domain.User
		status string
		rank   int16
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &status, &rank, &u.CreatedAt); err != nil {
		return nil, err
	}

	role, err := auth.RoleFromRank(int(rank))
	if err != nil {
		return nil, err
	}
	u.GlobalRole = role
	u.AccountStatus = domain.Status(status)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
