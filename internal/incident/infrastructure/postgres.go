package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safetrack/platform/internal/incident/domain"
	"github.com/safetrack/platform/internal/shared/errors"
	"github.com/safetrack/platform/internal/shared/types"
)

// PostgresProjection stores the incident read model. The full history is
// embedded as JSONB; list queries never unpack it.
type PostgresProjection struct {
	pool *pgxpool.Pool
}

// NewPostgresProjection creates a new incident projection store.
func NewPostgresProjection(pool *pgxpool.Pool) *PostgresProjection {
	return &PostgresProjection{pool: pool}
}

const incidentColumns = `id, reporter_id, title, description,
	department, room, area, category, priority, status, status_history,
	COALESCE(assigned_responder_id::text, ''), version, created_at, updated_at`

// Get retrieves an incident by ID.
func (p *PostgresProjection) Get(ctx context.Context, id types.ID) (*domain.Incident, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow.incidents WHERE id = $1`, incidentColumns)

	incident := &domain.Incident{}
	err := p.pool.QueryRow(ctx, query, id).Scan(
		&incident.ID, &incident.ReporterID, &incident.Title, &incident.Description,
		&incident.Location.Department, &incident.Location.Room, &incident.Location.Area,
		&incident.Category, &incident.Priority, &incident.Status, &incident.StatusHistory,
		&incident.AssignedResponderID, &incident.Version,
		&incident.CreatedAt, &incident.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("incident", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get incident")
	}

	return incident, nil
}

// List lists incidents matching the filter, newest first.
func (p *PostgresProjection) List(ctx context.Context, filter domain.ListFilter) ([]domain.Incident, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.ReporterID != nil {
		conditions = append(conditions, fmt.Sprintf("reporter_id = $%d", argNum))
		args = append(args, *filter.ReporterID)
		argNum++
	}

	if filter.AssignedResponder != nil {
		conditions = append(conditions, fmt.Sprintf("assigned_responder_id = $%d", argNum))
		args = append(args, *filter.AssignedResponder)
		argNum++
	}

	if filter.AwaitingAssignment {
		conditions = append(conditions, "assigned_responder_id IS NULL AND status = 'Open'")
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s FROM workflow.incidents %s ORDER BY created_at DESC`,
		incidentColumns, whereClause)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list incidents")
	}
	defer rows.Close()

	var incidents []domain.Incident
	for rows.Next() {
		var incident domain.Incident
		err := rows.Scan(
			&incident.ID, &incident.ReporterID, &incident.Title, &incident.Description,
			&incident.Location.Department, &incident.Location.Room, &incident.Location.Area,
			&incident.Category, &incident.Priority, &incident.Status, &incident.StatusHistory,
			&incident.AssignedResponderID, &incident.Version,
			&incident.CreatedAt, &incident.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan incident")
		}
		incidents = append(incidents, incident)
	}

	return incidents, nil
}

// Upsert writes the current state of an incident to the projection.
func (p *PostgresProjection) Upsert(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO workflow.incidents (
			id, reporter_id, title, description,
			department, room, area, category, priority, status, status_history,
			assigned_responder_id, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			NULLIF($12, '')::uuid, $13, $14, $15
		)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			department = EXCLUDED.department,
			room = EXCLUDED.room,
			area = EXCLUDED.area,
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			status = EXCLUDED.status,
			status_history = EXCLUDED.status_history,
			assigned_responder_id = EXCLUDED.assigned_responder_id,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE workflow.incidents.version <= EXCLUDED.version`

	_, err := p.pool.Exec(ctx, query,
		incident.ID, incident.ReporterID, incident.Title, incident.Description,
		incident.Location.Department, incident.Location.Room, incident.Location.Area,
		incident.Category, incident.Priority, incident.Status, incident.StatusHistory,
		incident.AssignedResponderID.String(), incident.Version,
		incident.CreatedAt, incident.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert incident")
	}

	return nil
}
