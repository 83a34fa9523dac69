// Package sqlite provides an embedded SQLite project registry for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	target_url TEXT NOT NULL,
	intent TEXT NOT NULL,
	status TEXT NOT NULL,
	health INTEGER NOT NULL,
	last_run TEXT NOT NULL,
	spider_code TEXT NOT NULL,
	google_drive_enabled INTEGER NOT NULL DEFAULT 0,
	created_at_ns INTEGER NOT NULL
)`

const columns = `id, name, target_url, intent, status, health, last_run, spider_code, google_drive_enabled, created_at_ns`

// ProjectStore implements scraping.ProjectStore on a SQLite file (or :memory:).
type ProjectStore struct {
	db        *sql.DB
	closeOnce sync.Once
}

// NewProjectStore opens path and creates the schema. A single connection is used
// so writes serialize and :memory: databases stay shared.
func NewProjectStore(ctx context.Context, path string) (*ProjectStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store.sqlite_path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	pragmas := []string{`PRAGMA busy_timeout=5000;`}
	if path != ":memory:" {
		pragmas = append(pragmas, `PRAGMA journal_mode=WAL;`)
	}
	for _, stmt := range append(pragmas, schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	return &ProjectStore{db: db}, nil
}

// Close releases the database handle.
func (s *ProjectStore) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.db.Close() })
	return err
}

// Add inserts a project row.
func (s *ProjectStore) Add(ctx context.Context, p scraping.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (`+columns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.TargetURL, p.Intent, string(p.Status), p.Health, p.LastRun,
		p.SpiderCode, p.GoogleDriveEnabled, p.CreatedAt.UnixNano(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("add %q: %w", p.ID, scraping.ErrDuplicateID)
	}
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// List returns every project, most recent first.
func (s *ProjectStore) List(ctx context.Context) ([]scraping.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM projects ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []scraping.Project{}
	for rows.Next() {
		p, err := scan(rows)
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
	p, err := scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return scraping.Project{}, fmt.Errorf("get %q: %w", id, scraping.ErrProjectNotFound)
	}
	return p, err
}

// UpdateStatus replaces the status of the matching row.
func (s *ProjectStore) UpdateStatus(ctx context.Context, id string, status scraping.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("update status %q: %w", status, scraping.ErrInvalidStatus)
	}
	return s.update(ctx, `UPDATE projects SET status = ? WHERE id = ?`, string(status), id)
}

// UpdateCode replaces the spider code of the matching row.
func (s *ProjectStore) UpdateCode(ctx context.Context, id string, code string) (bool, error) {
	return s.update(ctx, `UPDATE projects SET spider_code = ? WHERE id = ?`, code, id)
}

// UpdateDriveSetting replaces the drive flag of the matching row.
func (s *ProjectStore) UpdateDriveSetting(ctx context.Context, id string, enabled bool) (bool, error) {
	return s.update(ctx, `UPDATE projects SET google_drive_enabled = ? WHERE id = ?`, enabled, id)
}

func (s *ProjectStore) update(ctx context.Context, query string, value any, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return false, fmt.Errorf("update project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (scraping.Project, error) {
	var (
		p       scraping.Project
		status  string
		created int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.TargetURL, &p.Intent, &status, &p.Health,
		&p.LastRun, &p.SpiderCode, &p.GoogleDriveEnabled, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return scraping.Project{}, err
	}
	if err != nil {
		return scraping.Project{}, fmt.Errorf("scan project: %w", err)
	}
	p.Status = scraping.Status(status)
	p.CreatedAt = time.Unix(0, created).UTC()
	return p, nil
}
