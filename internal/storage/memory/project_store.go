// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

// ProjectStore keeps the registry in process memory. Every mutation replaces the
// backing slice wholesale, so readers holding an earlier listing never observe a
// partially applied write.
type ProjectStore struct {
	mu       sync.RWMutex
	projects []scraping.Project
}

// NewProjectStore constructs an empty ProjectStore.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{}
}

// Add prepends a project. The id must not already exist.
func (s *ProjectStore) Add(_ context.Context, project scraping.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.projects, project.ID) >= 0 {
		return fmt.Errorf("add %q: %w", project.ID, scraping.ErrDuplicateID)
	}
	next := make([]scraping.Project, 0, len(s.projects)+1)
	next = append(next, project)
	next = append(next, s.projects...)
	s.projects = next
	return nil
}

// List returns a copy of the registry, most recent first.
func (s *ProjectStore) List(_ context.Context) ([]scraping.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraping.Project, len(s.projects))
	copy(out, s.projects)
	return out, nil
}

// Get fetches a project by ID.
func (s *ProjectStore) Get(_ context.Context, id string) (scraping.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := indexOf(s.projects, id)
	if idx < 0 {
		return scraping.Project{}, fmt.Errorf("get %q: %w", id, scraping.ErrProjectNotFound)
	}
	return s.projects[idx], nil
}

// UpdateStatus replaces the status of the matching project.
func (s *ProjectStore) UpdateStatus(_ context.Context, id string, status scraping.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("update status %q: %w", status, scraping.ErrInvalidStatus)
	}
	return s.replace(id, func(p *scraping.Project) { p.Status = status }), nil
}

// UpdateCode replaces the spider code of the matching project.
func (s *ProjectStore) UpdateCode(_ context.Context, id string, code string) (bool, error) {
	return s.replace(id, func(p *scraping.Project) { p.SpiderCode = code }), nil
}

// UpdateDriveSetting replaces the drive flag of the matching project.
func (s *ProjectStore) UpdateDriveSetting(_ context.Context, id string, enabled bool) (bool, error) {
	return s.replace(id, func(p *scraping.Project) { p.GoogleDriveEnabled = enabled }), nil
}

// Close implements scraping.ProjectStore; there is nothing to release.
func (s *ProjectStore) Close() error {
	return nil
}

func (s *ProjectStore) replace(id string, mutate func(*scraping.Project)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := indexOf(s.projects, id)
	if idx < 0 {
		return false
	}
	next := make([]scraping.Project, len(s.projects))
	copy(next, s.projects)
	mutate(&next[idx])
	s.projects = next
	return true
}

func indexOf(projects []scraping.Project, id string) int {
	for i := range projects {
		if projects[i].ID == id {
			return i
		}
	}
	return -1
}
