// Package postgres provides a Postgres-backed project registry.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const uniqueViolation = "23505"

// ProjectStoreConfig controls the Postgres connection pool used for project rows.
type ProjectStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ProjectStore implements scraping.ProjectStore on a Postgres table. Rows carry a
// bigserial sequence so listings come back most recent first.
type ProjectStore struct {
	pool  pool
	table string
}

// NewProjectStore connects to Postgres and ensures the projects table exists.
func NewProjectStore(ctx context.Context, cfg ProjectStoreConfig) (*ProjectStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewProjectStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewProjectStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProjectStoreWithPool(p pool, table string) (*ProjectStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "projects"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ProjectStore{pool: p, table: table}, nil
}

// EnsureSchema creates the projects table when missing.
func (s *ProjectStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	seq BIGSERIAL NOT NULL,
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	target_url TEXT NOT NULL,
	intent TEXT NOT NULL,
	status TEXT NOT NULL,
	health INTEGER NOT NULL,
	last_run TEXT NOT NULL,
	spider_code TEXT NOT NULL,
	google_drive_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create projects table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ProjectStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Add inserts a project row.
func (s *ProjectStore) Add(ctx context.Context, project scraping.Project) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	name,
	target_url,
	intent,
	status,
	health,
	last_run,
	spider_code,
	google_drive_enabled,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.table)
	_, err := s.pool.Exec(ctx, query,
		project.ID,
		project.Name,
		project.TargetURL,
		project.Intent,
		string(project.Status),
		project.Health,
		project.LastRun,
		project.SpiderCode,
		project.GoogleDriveEnabled,
		project.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("add %q: %w", project.ID, scraping.ErrDuplicateID)
	}
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// List returns every project, most recent first.
func (s *ProjectStore) List(ctx context.Context) ([]scraping.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY seq DESC`, columns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()
	out := []scraping.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// Get fetches a project by ID.
func (s *ProjectStore) Get(ctx context.Context, id string) (scraping.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, s.table)
	p, err := scanProject(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return scraping.Project{}, fmt.Errorf("get %q: %w", id, scraping.ErrProjectNotFound)
	}
	if err != nil {
		return scraping.Project{}, err
	}
	return p, nil
}

// UpdateStatus replaces the status column of the matching row.
func (s *ProjectStore) UpdateStatus(ctx context.Context, id string, status scraping.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("update status %q: %w", status, scraping.ErrInvalidStatus)
	}
	return s.update(ctx, "status", string(status), id)
}

// UpdateCode replaces the spider_code column of the matching row.
func (s *ProjectStore) UpdateCode(ctx context.Context, id string, code string) (bool, error) {
	return s.update(ctx, "spider_code", code, id)
}

// UpdateDriveSetting replaces the google_drive_enabled column of the matching row.
func (s *ProjectStore) UpdateDriveSetting(ctx context.Context, id string, enabled bool) (bool, error) {
	return s.update(ctx, "google_drive_enabled", enabled, id)
}

func (s *ProjectStore) update(ctx context.Context, column string, value any, id string) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2`, s.table, column)
	tag, err := s.pool.Exec(ctx, query, value, id)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", column, err)
	}
	return tag.RowsAffected() > 0, nil
}

const columns = `id, name, target_url, intent, status, health, last_run, spider_code, google_drive_enabled, created_at`

func scanProject(row pgx.Row) (scraping.Project, error) {
	var (
		p      scraping.Project
		status string
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.TargetURL,
		&p.Intent,
		&status,
		&p.Health,
		&p.LastRun,
		&p.SpiderCode,
		&p.GoogleDriveEnabled,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraping.Project{}, err
	}
	if err != nil {
		return scraping.Project{}, fmt.Errorf("scan project: %w", err)
	}
	p.Status = scraping.Status(status)
	return p, nil
}
