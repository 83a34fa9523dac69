package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/activity"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/view"
)

//go:embed templates/*.html
var templateFS embed.FS

var viewLabels = map[view.Name]string{
	view.Dashboard:     "Dashboard",
	view.DriveExplorer: "Drive Explorer",
	view.Insights:      "Insights",
	view.Logs:          "Logs",
	view.HowToUse:      "How to Use",
	view.Wizard:        "New Spider",
	view.ProjectDetail: "Project",
}

type navItem struct {
	Name   view.Name
	Label  string
	Active bool
}

// navItems lists the sidebar entries; the wizard and detail views are reached
// through their own buttons.
func navItems(current view.Name) []navItem {
	items := make([]navItem, 0, len(viewLabels))
	for _, n := range view.Names() {
		if n == view.Wizard || n == view.ProjectDetail {
			continue
		}
		items = append(items, navItem{Name: n, Label: viewLabels[n], Active: n == current})
	}
	return items
}

type messageView struct {
	Role    scraping.Role
	HTML    template.HTML
	Sources []scraping.Source
	Failed  bool
}

type detailData struct {
	Project       projectDTO
	Preview       scraping.PreviewTable
	HasPreview    bool
	RefactorBusy  bool
	PreviewBusy   bool
	RecentActions []activity.Event
}

type pageData struct {
	Nav          []navItem
	Flash        *view.Flash
	Panel        view.Panel
	Projects     []projectDTO
	Stats        scraping.Stats
	Statuses     []scraping.Status
	Detail       *detailData
	Wizard       view.WizardDraft
	ProbeEnabled bool
	Chat         []messageView
	LogAnalysis  *messageView
	Events       []activity.Event
	Files        []scraping.BlobObject
}

type renderer struct {
	tmpl     *template.Template
	md       goldmark.Markdown
	sanitize *bluemonday.Policy
}

func newRenderer() *renderer {
	rd := &renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		sanitize: bluemonday.UGCPolicy(),
	}
	rd.tmpl = template.Must(template.New("page").Funcs(template.FuncMap{
		"markdown":    rd.markdown,
		"statusClass": statusClass,
		"healthClass": healthClass,
		"join":        strings.Join,
		"viewLabel":   func(n view.Name) string { return viewLabels[n] },
		"pct": func(n, total int) int {
			if total == 0 {
				return 0
			}
			return n * 100 / total
		},
	}).ParseFS(templateFS, "templates/*.html"))
	return rd
}

// markdown renders model output. The text is untrusted, so the generated HTML
// is sanitized before it reaches the page.
func (rd *renderer) markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := rd.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(rd.sanitize.SanitizeBytes(buf.Bytes())) //nolint:gosec // sanitized above
}

func (rd *renderer) message(m scraping.ChatMessage) messageView {
	mv := messageView{Role: m.Role, Sources: m.Sources, Failed: m.Failed}
	if m.Role == scraping.RoleUser || m.Failed {
		mv.HTML = template.HTML("<p>" + template.HTMLEscapeString(m.Text) + "</p>")
		return mv
	}
	mv.HTML = rd.markdown(m.Text)
	return mv
}

func (rd *renderer) page(w http.ResponseWriter, data pageData) {
	var buf bytes.Buffer
	if err := rd.tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		zap.L().Error("render page failed", zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		zap.L().Warn("write page failed", zap.Error(err))
	}
}

func statusClass(s scraping.Status) string {
	switch s {
	case scraping.StatusActive:
		return "ok"
	case scraping.StatusPaused:
		return "muted"
	case scraping.StatusFailed:
		return "bad"
	default:
		return "warn"
	}
}

func healthClass(h int) string {
	switch {
	case h >= 90:
		return "ok"
	case h >= 60:
		return "warn"
	default:
		return "bad"
	}
}
