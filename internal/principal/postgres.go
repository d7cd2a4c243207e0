package principal

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

// PostgresProfileRepository provides database operations for profiles.
type PostgresProfileRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresProfileRepository creates a new profile repository.
func NewPostgresProfileRepository(pool *pgxpool.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

// FindByUID retrieves a profile by user ID.
func (r *PostgresProfileRepository) FindByUID(ctx context.Context, uid types.ID) (*Profile, error) {
	query := `
		SELECT uid, email, display_name, base_role, COALESCE(role_id::text, ''),
			specialization, push_token, created_at, updated_at
		FROM workflow.profiles
		WHERE uid = $1`

	profile := &Profile{}
	err := r.pool.QueryRow(ctx, query, uid).Scan(
		&profile.UID, &profile.Email, &profile.DisplayName, &profile.BaseRole,
		&profile.RoleID, &profile.Specialization, &profile.PushToken,
		&profile.CreatedAt, &profile.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("profile", uid.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get profile")
	}

	return profile, nil
}

// List lists profiles with optional filters.
func (r *PostgresProfileRepository) List(ctx context.Context, filter ListProfilesFilter) ([]Profile, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.BaseRole != nil {
		conditions = append(conditions, fmt.Sprintf("base_role = $%d", argNum))
		args = append(args, *filter.BaseRole)
		argNum++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(display_name ILIKE $%d OR email ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT uid, email, display_name, base_role, COALESCE(role_id::text, ''),
			specialization, push_token, created_at, updated_at
		FROM workflow.profiles
		%s
		ORDER BY display_name, email`, whereClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list profiles")
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var profile Profile
		err := rows.Scan(
			&profile.UID, &profile.Email, &profile.DisplayName, &profile.BaseRole,
			&profile.RoleID, &profile.Specialization, &profile.PushToken,
			&profile.CreatedAt, &profile.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan profile")
		}
		profiles = append(profiles, profile)
	}

	return profiles, nil
}

// Save inserts or updates a profile.
func (r *PostgresProfileRepository) Save(ctx context.Context, profile *Profile) error {
	query := `
		INSERT INTO workflow.profiles (
			uid, email, display_name, base_role, role_id, specialization, push_token
		) VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7)
		ON CONFLICT (uid) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			base_role = EXCLUDED.base_role,
			role_id = EXCLUDED.role_id,
			specialization = EXCLUDED.specialization,
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query,
		profile.UID, profile.Email, profile.DisplayName, profile.BaseRole,
		profile.RoleID.String(), profile.Specialization, profile.PushToken,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save profile")
	}

	return nil
}

// SavePushToken stores the device push token for a user.
func (r *PostgresProfileRepository) SavePushToken(ctx context.Context, uid types.ID, token string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE workflow.profiles SET push_token = $2, updated_at = NOW() WHERE uid = $1`,
		uid, token)
	if err != nil {
		return errors.Wrap(err, "failed to save push token")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("profile", uid.String())
	}

	return nil
}
