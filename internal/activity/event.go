package activity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind denotes what an Event records.
type Kind string

// Supported activity kinds.
const (
	KindProjectCreated Kind = "PROJECT_CREATED"
	KindStatusChanged  Kind = "STATUS_CHANGED"
	KindCodeUpdated    Kind = "CODE_UPDATED"
	KindDriveToggled   Kind = "DRIVE_TOGGLED"
	KindAICall         Kind = "AI_CALL"
	KindExport         Kind = "EXPORT"
	KindProbe          Kind = "PROBE"
)

// Level is the severity shown in the Logs view.
type Level string

// Severity levels.
const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARNING"
	LevelError Level = "ERROR"
)

// Event captures a single dashboard action or model call outcome.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Kind says what happened.
	Kind Kind `json:"kind"`
	// Level defaults to INFO when empty.
	Level Level `json:"level"`
	// ProjectID scopes the event; empty for session-level model calls.
	ProjectID string `json:"project_id,omitempty"`
	// Operation names the model call for AI_CALL events.
	Operation string `json:"operation,omitempty"`
	// Message is the human readable line.
	Message string `json:"message"`
	// Dur captures model call latency.
	Dur time.Duration `json:"duration_ns,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if strings.TrimSpace(e.Message) == "" {
		return errors.New("message is required")
	}
	switch e.Kind {
	case KindProjectCreated, KindStatusChanged, KindCodeUpdated, KindDriveToggled, KindExport:
		if e.ProjectID == "" {
			return fmt.Errorf("%s requires project id", e.Kind)
		}
	case KindAICall:
		if e.Operation == "" {
			return errors.New("ai call requires operation")
		}
	case KindProbe:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	switch e.Level {
	case "", LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("unknown level %q", e.Level)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Line renders the event in the Scrapy log layout shown by the Logs view and
// fed to log analysis.
func (e Event) Line() string {
	level := e.Level
	if level == "" {
		level = LevelInfo
	}
	logger := "scrapydash." + strings.ToLower(string(e.Kind))
	if e.Operation != "" {
		logger += "." + e.Operation
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s: ", e.TS.UTC().Format("2006-01-02 15:04:05"), logger, level)
	if e.ProjectID != "" {
		fmt.Fprintf(&b, "<%s> ", e.ProjectID)
	}
	b.WriteString(e.Message)
	if e.Dur > 0 {
		fmt.Fprintf(&b, " (%s)", e.Dur.Round(time.Millisecond))
	}
	return b.String()
}
