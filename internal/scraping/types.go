package scraping

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the user-controlled state of a scraping project.
type Status string

// Project status values. Transitions only happen on explicit user action.
const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusFailed    Status = "failed"
	StatusDeploying Status = "deploying"
)

// DemoPrefix marks seeded showcase projects.
const DemoPrefix = "demo-"

// SpiderFallback is rendered in place of generated code when the model call fails.
const SpiderFallback = "# Failed to generate spider code. Please try again."

// Statuses lists every valid status in display order.
func Statuses() []Status {
	return []Status{StatusActive, StatusPaused, StatusFailed, StatusDeploying}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusFailed, StatusDeploying:
		return true
	default:
		return false
	}
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Project is a user-defined scraping task record. It never represents a running process.
type Project struct {
	ID                 string    `json:"id" yaml:"id"`
	Name               string    `json:"name" yaml:"name"`
	TargetURL          string    `json:"target_url" yaml:"target_url"`
	Intent             string    `json:"intent" yaml:"intent"`
	Status             Status    `json:"status" yaml:"status"`
	Health             int       `json:"health" yaml:"health"`
	LastRun            string    `json:"last_run" yaml:"last_run"`
	SpiderCode         string    `json:"spider_code" yaml:"spider_code"`
	GoogleDriveEnabled bool      `json:"google_drive_enabled" yaml:"google_drive_enabled"`
	CreatedAt          time.Time `json:"created_at" yaml:"-"`
}

// IsDemo reports whether the project is a seeded showcase record.
func (p Project) IsDemo() bool {
	return strings.HasPrefix(p.ID, DemoPrefix)
}

// ClampHealth bounds a display health score to 0-100.
func ClampHealth(h int) int {
	switch {
	case h < 0:
		return 0
	case h > 100:
		return 100
	default:
		return h
	}
}

// Role identifies the author of a chat message.
type Role string

// Chat roles.
const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Source is a grounding citation returned alongside a model answer.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// ChatMessage is one turn of a chat thread.
type ChatMessage struct {
	Role     Role     `json:"role"`
	Text     string   `json:"text"`
	Thinking bool     `json:"thinking,omitempty"`
	Sources  []Source `json:"sources,omitempty"`
	Failed   bool     `json:"failed,omitempty"`
}

// Answer is the text plus citations returned by grounded model calls.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// IntentSuggestion is the structured result of intent analysis.
type IntentSuggestion struct {
	SuggestedName string   `json:"suggested_name"`
	FrequencyHint string   `json:"frequency_hint"`
	Fields        []string `json:"fields_to_extract"`
	Difficulty    float64  `json:"difficulty_rating"`
}

// Empty reports whether the suggestion carries no usable data.
func (s IntentSuggestion) Empty() bool {
	return s.SuggestedName == "" && s.FrequencyHint == "" && len(s.Fields) == 0 && s.Difficulty == 0
}

// SpiderRequest captures what the wizard asks the model to generate.
type SpiderRequest struct {
	Intent      string   `json:"intent"`
	TargetURL   string   `json:"target_url"`
	Fields      []string `json:"fields"`
	SaveToDrive bool     `json:"save_to_drive"`
}

// RefactorRequest captures the inputs of a refactor call.
type RefactorRequest struct {
	Code        string `json:"code"`
	Logs        string `json:"logs"`
	Intent      string `json:"intent"`
	SaveToDrive bool   `json:"save_to_drive"`
}

// Draft is the wizard output used to create a project.
type Draft struct {
	Name               string `json:"name"`
	TargetURL          string `json:"target_url"`
	Intent             string `json:"intent"`
	SpiderCode         string `json:"spider_code"`
	GoogleDriveEnabled bool   `json:"google_drive_enabled"`
	Status             Status `json:"status,omitempty"`
	Health             *int   `json:"health,omitempty"`
}

// BlobObject describes one archived artifact.
type BlobObject struct {
	Path    string    `json:"path"`
	URI     string    `json:"uri"`
	Size    int64     `json:"size"`
	Updated time.Time `json:"updated"`
}

// Stats summarizes the registry for the dashboard header.
type Stats struct {
	Total         int            `json:"total"`
	Active        int            `json:"active"`
	AverageHealth int            `json:"average_health"`
	DriveEnabled  int            `json:"drive_enabled"`
	ByStatus      map[Status]int `json:"by_status"`
	HealthBuckets [5]int         `json:"health_buckets"`
}

// ComputeStats derives Stats from a project listing.
func ComputeStats(projects []Project) Stats {
	st := Stats{Total: len(projects), ByStatus: make(map[Status]int, len(Statuses()))}
	healthSum := 0
	for _, p := range projects {
		st.ByStatus[p.Status]++
		if p.Status == StatusActive {
			st.Active++
		}
		if p.GoogleDriveEnabled {
			st.DriveEnabled++
		}
		h := ClampHealth(p.Health)
		healthSum += h
		bucket := h / 20
		if bucket > 4 {
			bucket = 4
		}
		st.HealthBuckets[bucket]++
	}
	if st.Total > 0 {
		st.AverageHealth = healthSum / st.Total
	}
	return st
}

// Operation names one model-backed action. Values double as metric labels and gate keys.
type Operation string

// Model-backed operations.
const (
	OpAnalyzeIntent  Operation = "analyze_intent"
	OpGenerateSpider Operation = "generate_spider"
	OpMockResults    Operation = "mock_results"
	OpRefactorSpider Operation = "refactor_spider"
	OpAnalyzeLog     Operation = "analyze_log"
	OpChat           Operation = "chat"
)
