// Package repository stores completed applications in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives on its single connection.
	if cfg.Driver != "sqlite" || cfg.SQLitePath != memoryPath {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	repo := NewWithDB(db, cfg.Driver)
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// NewWithDB wraps an open connection without running migrations.
func NewWithDB(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{db: db, driver: driver}
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveApplication inserts app. IDs are unique; saving the same id twice fails.
func (r *SQLRepository) SaveApplication(ctx context.Context, app *domain.Application) error {
	if app == nil || app.ID == "" || app.Decision == nil {
		return fmt.Errorf("%w: application id and decision are required", ErrInvalidInput)
	}

	profile, err := json.Marshal(app.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	decision, err := json.Marshal(app.Decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	var score sql.NullInt64
	if app.Decision.CreditScore != nil {
		score = sql.NullInt64{Int64: int64(*app.Decision.CreditScore), Valid: true}
	}

	createdAt := app.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO applications (
			id, applicant, status, credit_score, profile, decision, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		app.ID, app.Applicant, app.Decision.Status, score,
		string(profile), string(decision), createdAt.UTC(),
	)
	return err
}

// GetApplication retrieves an application by id.
func (r *SQLRepository) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	query := `
		SELECT id, applicant, profile, decision, created_at
		FROM applications
		WHERE id = ?
	`

	var app domain.Application
	var profile, decision string

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&app.ID, &app.Applicant, &profile, &decision, &app.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(profile), &app.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(decision), &app.Decision); err != nil {
		return nil, fmt.Errorf("failed to decode decision for %s: %w", id, err)
	}

	return &app, nil
}

// CountApplicationsSince counts applications stored for applicant at or after since.
func (r *SQLRepository) CountApplicationsSince(ctx context.Context, applicant string, since time.Time) (int64, error) {
	if applicant == "" {
		return 0, fmt.Errorf("%w: applicant is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM applications
		WHERE applicant = ? AND created_at >= ?
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), applicant, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return count, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
