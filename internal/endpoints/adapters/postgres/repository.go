package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/opsapi/internal/database"
	"github.com/dejobratic/opsapi/internal/endpoints/domain"
	"github.com/dejobratic/opsapi/internal/endpoints/ports"
)

const engagementFK = "endpoints_engagement_fk"

// inet[] columns are read through host() so addresses come back without a
// netmask, in the same form domain.ParseAddress produces.
var (
	summaryColumns = `endpoint_uuid, engagement_uuid, agent_uuid, os_version, ` +
		hosts("ip") + `, ` + hosts("gateway") + `, created_at`
	fullColumns = `endpoint_uuid, engagement_uuid, agent_uuid, os_version, ` +
		hosts("ip") + `, ` + hosts("gateway") + `, ` +
		`system_info, routing_table, arp, installed_applications, drivers, patch_history, created_at`
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, e domain.Endpoint) error {
	query := `
		INSERT INTO endpoints (
			endpoint_uuid, engagement_uuid, agent_uuid, os_version, ip, gateway,
			system_info, routing_table, arp, installed_applications, drivers, patch_history, created_at
		)
		VALUES ($1, $2, $3, $4, $5::text[]::inet[], $6::text[]::inet[], $7, $8, $9, $10, $11, $12, $13)
	`

	args := []any{e.ID, e.EngagementID, e.AgentID, e.OSVersion, e.IP, e.Gateway}
	args = append(args, inventoryArgs(e.Inventory)...)
	args = append(args, e.CreatedAt)

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		if database.IsForeignKeyViolation(err, engagementFK) {
			return ports.ErrEngagementNotFound
		}
		return fmt.Errorf("insert endpoint: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Endpoint, error) {
	query := `SELECT ` + fullColumns + ` FROM endpoints WHERE endpoint_uuid = $1`

	endpoint, err := scanEndpoint(r.pool.QueryRow(ctx, query, id), true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select endpoint: %w", err)
	}

	return endpoint, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Endpoint, error) {
	var (
		conds []string
		args  []any
	)

	if filter.EngagementScope != nil {
		args = append(args, filter.EngagementScope)
		conds = append(conds, fmt.Sprintf("engagement_uuid = ANY($%d::uuid[])", len(args)))
	}
	if filter.EngagementID != "" {
		args = append(args, filter.EngagementID)
		conds = append(conds, fmt.Sprintf("engagement_uuid = $%d", len(args)))
	}
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		conds = append(conds, fmt.Sprintf("agent_uuid = $%d", len(args)))
	}
	if filter.OSContains != "" {
		args = append(args, "%"+escapeLike(filter.OSContains)+"%")
		conds = append(conds, fmt.Sprintf("os_version ILIKE $%d", len(args)))
	}
	if filter.IP != "" {
		args = append(args, filter.IP)
		conds = append(conds, fmt.Sprintf("$%d::inet = ANY(ip)", len(args)))
	}
	if clause, keysetArgs := filter.Plan.Predicate("created_at", "endpoint_uuid", len(args)+1); clause != "" {
		conds = append(conds, clause)
		args = append(args, keysetArgs...)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, filter.Plan.FetchLimit())
	query := fmt.Sprintf(`SELECT %s FROM endpoints %s ORDER BY %s LIMIT $%d`,
		summaryColumns, where, filter.Plan.OrderBy("created_at", "endpoint_uuid"), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query endpoints: %w", err)
	}
	defer rows.Close()

	endpoints := []domain.Endpoint{}
	for rows.Next() {
		endpoint, err := scanEndpoint(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		endpoints = append(endpoints, *endpoint)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate endpoints: %w", err)
	}

	return endpoints, nil
}

func (r *Repository) Update(ctx context.Context, id string, patch domain.Patch) (*domain.Endpoint, error) {
	query := `
		UPDATE endpoints SET
			engagement_uuid        = COALESCE($2, engagement_uuid),
			agent_uuid             = COALESCE($3, agent_uuid),
			os_version             = COALESCE($4, os_version),
			ip                     = COALESCE($5::text[]::inet[], ip),
			gateway                = COALESCE($6::text[]::inet[], gateway),
			system_info            = COALESCE($7, system_info),
			routing_table          = COALESCE($8, routing_table),
			arp                    = COALESCE($9, arp),
			installed_applications = COALESCE($10, installed_applications),
			drivers                = COALESCE($11, drivers),
			patch_history          = COALESCE($12, patch_history)
		WHERE endpoint_uuid = $1
		RETURNING ` + fullColumns

	args := []any{id, patch.EngagementID, patch.AgentID, patch.OSVersion, list(patch.IP), list(patch.Gateway)}
	args = append(args, inventoryArgs(patch.Inventory)...)

	endpoint, err := scanEndpoint(r.pool.QueryRow(ctx, query, args...), true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
			return nil, ports.ErrNotFound
		}
		if database.IsForeignKeyViolation(err, engagementFK) {
			return nil, ports.ErrEngagementNotFound
		}
		return nil, fmt.Errorf("update endpoint: %w", err)
	}

	return endpoint, nil
}

func (r *Repository) UpdateInventory(ctx context.Context, id string, inventory domain.Inventory) error {
	query := `
		UPDATE endpoints SET
			system_info            = COALESCE($2, system_info),
			routing_table          = COALESCE($3, routing_table),
			arp                    = COALESCE($4, arp),
			installed_applications = COALESCE($5, installed_applications),
			drivers                = COALESCE($6, drivers),
			patch_history          = COALESCE($7, patch_history)
		WHERE endpoint_uuid = $1
	`

	result, err := r.pool.Exec(ctx, query, append([]any{id}, inventoryArgs(inventory)...)...)
	if err != nil {
		if database.IsInvalidText(err) {
			return ports.ErrNotFound
		}
		return fmt.Errorf("update inventory: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

// inventoryArgs orders the inventory as system_info, routing_table, arp,
// installed_applications, drivers, patch_history. Absent parts bind NULL.
func inventoryArgs(inv domain.Inventory) []any {
	parts := []json.RawMessage{inv.SystemInfo, inv.RoutingTable, inv.ARP, inv.InstalledApplications, inv.Drivers, inv.PatchHistory}
	args := make([]any, len(parts))
	for i, p := range parts {
		if p != nil {
			args[i] = []byte(p)
		}
	}
	return args
}

func list(values *[]string) any {
	if values == nil {
		return nil
	}
	return *values
}

func scanEndpoint(row pgx.Row, withInventory bool) (*domain.Endpoint, error) {
	var e domain.Endpoint
	dest := []any{&e.ID, &e.EngagementID, &e.AgentID, &e.OSVersion, &e.IP, &e.Gateway}

	var parts [6][]byte
	if withInventory {
		for i := range parts {
			dest = append(dest, &parts[i])
		}
	}
	dest = append(dest, &e.CreatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if withInventory {
		e.Inventory = domain.Inventory{
			SystemInfo:            raw(parts[0]),
			RoutingTable:          raw(parts[1]),
			ARP:                   raw(parts[2]),
			InstalledApplications: raw(parts[3]),
			Drivers:               raw(parts[4]),
			PatchHistory:          raw(parts[5]),
		}
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func raw(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

func hosts(column string) string {
	return fmt.Sprintf(`ARRAY(SELECT host(a) FROM unnest(%s) WITH ORDINALITY AS u(a, n) ORDER BY n)`, column)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
