// Package view holds the per-session navigation state machine and the pure
// resolution of that state against the project registry.
package view

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

// ErrUnknownView is returned when navigation names a view that does not exist.
var ErrUnknownView = errors.New("unknown view")

// Name identifies one top-level view.
type Name string

// Views.
const (
	Dashboard     Name = "dashboard"
	Wizard        Name = "wizard"
	ProjectDetail Name = "project_detail"
	Insights      Name = "insights"
	Logs          Name = "logs"
	HowToUse      Name = "how_to_use"
	DriveExplorer Name = "drive_explorer"
)

// Names lists every view in sidebar order.
func Names() []Name {
	return []Name{Dashboard, DriveExplorer, Insights, Logs, HowToUse, Wizard, ProjectDetail}
}

// ParseName validates a view name from a URL or form.
func ParseName(raw string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Names() {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, raw)
}

// Router is the navigation state of one session. The zero value starts on the dashboard.
type Router struct {
	current  Name
	selected string
}

// Current returns the active view.
func (r *Router) Current() Name {
	if r.current == "" {
		return Dashboard
	}
	return r.current
}

// Selected returns the project id carried into the detail view, if any.
func (r *Router) Selected() string {
	return r.selected
}

// OpenWizard starts project creation.
func (r *Router) OpenWizard() {
	r.current = Wizard
}

// CompleteWizard returns to the dashboard after a project was created.
func (r *Router) CompleteWizard() {
	r.current = Dashboard
}

// CancelWizard abandons project creation.
func (r *Router) CancelWizard() {
	r.current = Dashboard
}

// SelectProject opens the detail view for id.
func (r *Router) SelectProject(id string) {
	r.selected = id
	r.current = ProjectDetail
}

// Back leaves the detail view for the dashboard.
func (r *Router) Back() {
	r.current = Dashboard
}

// Navigate jumps to any view. The selection is kept so returning to the
// detail view shows the same project.
func (r *Router) Navigate(name Name) error {
	n, err := ParseName(string(name))
	if err != nil {
		return err
	}
	r.current = n
	return nil
}

// Panel is what the current state renders.
type Panel struct {
	View     Name
	Project  scraping.Project
	NotFound bool
}

// Resolve maps navigation state onto the registry. A selection that no longer
// resolves yields NotFound rather than an error.
func Resolve(r Router, projects []scraping.Project) Panel {
	p := Panel{View: r.Current()}
	if p.View != ProjectDetail {
		return p
	}
	for _, project := range projects {
		if project.ID == r.selected {
			p.Project = project
			return p
		}
	}
	p.NotFound = true
	return p
}
