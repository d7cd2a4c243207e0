// Package facilities reads the building-management directory over SQL
// Server. It is a read-only collaborator: incident locations are checked
// against it when reachable, and accepted as given when it is not.
package facilities

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/safetrack/platform/internal/incident/domain"
	"github.com/safetrack/platform/internal/shared/config"
	"github.com/safetrack/platform/internal/shared/errors"
)

// Directory validates incident locations against the estate database.
type Directory struct {
	db     *sql.DB
	config config.FacilitiesConfig
}

// New opens the directory connection. The database is external and may
// be down; Open only prepares the pool, connectivity is probed per call.
func New(cfg config.FacilitiesConfig) (*Directory, error) {
	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password)
	if cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open facilities database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	return &Directory{db: db, config: cfg}, nil
}

// Close releases the connection pool.
func (d *Directory) Close() error {
	return d.db.Close()
}

// Health checks directory connectivity.
func (d *Directory) Health(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// ValidateLocation checks the department, and the room within it when
// one is given. An unknown department is a validation failure; an
// unreachable directory is an external-service failure the caller may
// choose to tolerate.
func (d *Directory) ValidateLocation(ctx context.Context, loc domain.Location) error {
	department := strings.TrimSpace(loc.Department)
	if department == "" {
		return nil
	}

	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dbo.Departments WHERE Name = @name AND Active = 1`,
		sql.Named("name", department),
	).Scan(&count)
	if err != nil {
		return errors.ExternalService("facilities", err)
	}
	if count == 0 {
		return errors.Validation("unknown department", map[string]string{"department": department})
	}

	room := strings.TrimSpace(loc.Room)
	if room == "" {
		return nil
	}

	err = d.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM dbo.Rooms r
		 INNER JOIN dbo.Departments dep ON r.DepartmentID = dep.DepartmentID
		 WHERE dep.Name = @dep AND r.Label = @room`,
		sql.Named("dep", department),
		sql.Named("room", room),
	).Scan(&count)
	if err != nil {
		return errors.ExternalService("facilities", err)
	}
	if count == 0 {
		return errors.Validation("unknown room for department", map[string]string{
			"department": department,
			"room":       room,
		})
	}

	return nil
}

// Departments lists active department names for location pickers.
func (d *Directory) Departments(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT Name FROM dbo.Departments WHERE Active = 1 ORDER BY Name`)
	if err != nil {
		return nil, errors.ExternalService("facilities", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.ExternalService("facilities", err)
		}
		names = append(names, name)
	}
	return names, nil
}
