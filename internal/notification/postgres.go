package notification

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

// PostgresRepository stores notifications in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new notification repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ListForUser returns the newest notifications for one user.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID types.ID, limit int) ([]Notification, error) {
	if limit <= 0 || limit > FeedLimit {
		limit = FeedLimit
	}

	query := `
		SELECT id, user_id, incident_id, title, message, kind, read, created_at
		FROM workflow.notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var incidentID *string
		err := rows.Scan(&n.ID, &n.UserID, &incidentID, &n.Title, &n.Message, &n.Kind, &n.Read, &n.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan notification")
		}
		if incidentID != nil {
			n.IncidentID = types.ID(*incidentID)
		}
		out = append(out, n)
	}

	return out, nil
}

// Save inserts a notification.
func (r *PostgresRepository) Save(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO workflow.notifications (id, user_id, incident_id, title, message, kind, read)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		n.ID, n.UserID, n.IncidentID.String(), n.Title, n.Message, n.Kind, n.Read,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save notification")
	}
	return nil
}

// MarkRead flags one notification as read. The user scope prevents
// marking someone else's notification.
func (r *PostgresRepository) MarkRead(ctx context.Context, id, userID types.ID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE workflow.notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return errors.Wrap(err, "failed to mark notification read")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("notification", id.String())
	}
	return nil
}
