package role

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

// PostgresRepository provides database operations for role definitions.
// Permissions are stored as a JSONB array.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new role repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// FindByID retrieves a role by ID.
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*Role, error) {
	query := `
		SELECT id, label, description, base_role, permissions, color, icon, is_system,
			created_at, updated_at
		FROM workflow.roles
		WHERE id = $1`

	role := &Role{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&role.ID, &role.Label, &role.Description, &role.BaseRole, &role.Permissions,
		&role.Color, &role.Icon, &role.IsSystem,
		&role.CreatedAt, &role.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("role", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get role")
	}

	return role, nil
}

// List lists roles, optionally filtered by base role family.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Role, error) {
	query := `
		SELECT id, label, description, base_role, permissions, color, icon, is_system,
			created_at, updated_at
		FROM workflow.roles`

	var args []interface{}
	if filter.BaseRole != nil {
		query += ` WHERE base_role = $1`
		args = append(args, *filter.BaseRole)
	}
	query += ` ORDER BY label`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list roles")
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		err := rows.Scan(
			&role.ID, &role.Label, &role.Description, &role.BaseRole, &role.Permissions,
			&role.Color, &role.Icon, &role.IsSystem,
			&role.CreatedAt, &role.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan role")
		}
		roles = append(roles, role)
	}

	return roles, nil
}

// Save inserts or updates a role definition.
func (r *PostgresRepository) Save(ctx context.Context, role *Role) error {
	query := `
		INSERT INTO workflow.roles (
			id, label, description, base_role, permissions, color, icon, is_system
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			description = EXCLUDED.description,
			base_role = EXCLUDED.base_role,
			permissions = EXCLUDED.permissions,
			color = EXCLUDED.color,
			icon = EXCLUDED.icon,
			updated_at = NOW()
		WHERE workflow.roles.is_system = FALSE`

	result, err := r.pool.Exec(ctx, query,
		role.ID, role.Label, role.Description, role.BaseRole, role.Permissions,
		role.Color, role.Icon, role.IsSystem,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.BadRequest("role with this label already exists")
		}
		return errors.Wrap(err, "failed to save role")
	}

	if result.RowsAffected() == 0 {
		return ErrSystemRole
	}

	return nil
}

// Delete removes a custom role. System roles are never deleted.
func (r *PostgresRepository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM workflow.roles WHERE id = $1 AND is_system = FALSE`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete role")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("role", id.String())
	}

	return nil
}
