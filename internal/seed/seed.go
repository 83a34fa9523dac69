// Package seed loads showcase projects into an empty registry at startup.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

//go:embed projects.yaml
var defaultProjects []byte

type file struct {
	Projects []scraping.Project `yaml:"projects"`
}

// Default returns the built-in showcase projects, newest first.
func Default() ([]scraping.Project, error) {
	return Parse(defaultProjects)
}

// LoadFile reads a seed fixture from disk.
func LoadFile(path string) ([]scraping.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML fixture and validates every record.
func Parse(data []byte) ([]scraping.Project, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Projects))
	for i := range f.Projects {
		p := &f.Projects[i]
		if p.ID == "" {
			return nil, fmt.Errorf("seed project %d: id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("seed project %q: %w", p.ID, scraping.ErrDuplicateID)
		}
		seen[p.ID] = struct{}{}
		if p.Status == "" {
			p.Status = scraping.StatusActive
		}
		if !p.Status.Valid() {
			return nil, fmt.Errorf("seed project %q: %w", p.ID, scraping.ErrInvalidStatus)
		}
		p.Health = scraping.ClampHealth(p.Health)
		if p.LastRun == "" {
			p.LastRun = "never"
		}
	}
	return f.Projects, nil
}

// Apply adds projects to store in reverse so the registry lists them in file order.
// Records whose id already exists are skipped, which makes reseeding a persistent store safe.
func Apply(ctx context.Context, store scraping.ProjectStore, clock scraping.Clock, projects []scraping.Project) (int, error) {
	added := 0
	for i := len(projects) - 1; i >= 0; i-- {
		p := projects[i]
		if p.CreatedAt.IsZero() && clock != nil {
			p.CreatedAt = clock.Now()
		}
		if _, err := store.Get(ctx, p.ID); err == nil {
			continue
		}
		if err := store.Add(ctx, p); err != nil {
			return added, fmt.Errorf("seed %q: %w", p.ID, err)
		}
		added++
	}
	return added, nil
}
