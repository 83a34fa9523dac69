// Package dashboard implements the application operations behind both the
// JSON API and the HTML views: registry mutations, model-backed actions with
// their failure policies, and per-project re-entry guards.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/activity"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/inflight"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/probe"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/telemetry"
)

const (
	defaultExportPrefix = "spiders"
	exportFileName      = "spider.py"
	exportContentType   = "text/x-python"
	summaryLimit        = 20
	neverRun            = "never"
)

// Prober runs the wizard preflight fetch.
type Prober interface {
	Check(ctx context.Context, target string) (probe.Report, error)
}

// Feed exposes recent activity for the Logs view and model prompts.
type Feed interface {
	Recent(limit int) []activity.Event
	Summary(projectID string, limit int) string
}

// Deps bundles the collaborators of a Service. Store, AI, Clock and IDs are required.
type Deps struct {
	Store        scraping.ProjectStore
	AI           scraping.AIBridge
	Blobs        scraping.BlobStore
	Drive        scraping.DriveDetector
	Prober       Prober
	Activity     activity.Emitter
	Feed         Feed
	Clock        scraping.Clock
	IDs          scraping.IDGenerator
	Hasher       scraping.Hasher
	Logger       *zap.Logger
	ExportPrefix string
}

// Service is the application root shared by every HTTP handler.
type Service struct {
	store        scraping.ProjectStore
	ai           scraping.AIBridge
	blobs        scraping.BlobStore
	drive        scraping.DriveDetector
	prober       Prober
	events       activity.Emitter
	feed         Feed
	clock        scraping.Clock
	ids          scraping.IDGenerator
	hasher       scraping.Hasher
	logger       *zap.Logger
	exportPrefix string
	gate         inflight.Gate
}

// New validates deps and builds a Service.
func New(deps Deps) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("dashboard: project store is required")
	case deps.AI == nil:
		return nil, errors.New("dashboard: ai bridge is required")
	case deps.Clock == nil:
		return nil, errors.New("dashboard: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("dashboard: id generator is required")
	}
	svc := &Service{
		store:        deps.Store,
		ai:           deps.AI,
		blobs:        deps.Blobs,
		drive:        deps.Drive,
		prober:       deps.Prober,
		events:       deps.Activity,
		feed:         deps.Feed,
		clock:        deps.Clock,
		ids:          deps.IDs,
		hasher:       deps.Hasher,
		logger:       deps.Logger,
		exportPrefix: strings.Trim(deps.ExportPrefix, "/"),
	}
	if svc.events == nil {
		svc.events = activity.Nop{}
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.exportPrefix == "" {
		svc.exportPrefix = defaultExportPrefix
	}
	return svc, nil
}

// ListProjects returns the registry, most recent first.
func (s *Service) ListProjects(ctx context.Context) ([]scraping.Project, error) {
	projects, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	counts := make(map[string]int, len(scraping.Statuses()))
	for _, st := range scraping.Statuses() {
		counts[string(st)] = 0
	}
	for _, p := range projects {
		counts[string(p.Status)]++
	}
	telemetry.SetProjectCounts(counts)
	return projects, nil
}

// GetProject looks up one project.
func (s *Service) GetProject(ctx context.Context, id string) (scraping.Project, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return scraping.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// CreateProject turns a wizard draft into a registry record.
func (s *Service) CreateProject(ctx context.Context, draft scraping.Draft) (scraping.Project, error) {
	target := strings.TrimSpace(draft.TargetURL)
	if target == "" {
		return scraping.Project{}, fmt.Errorf("create project: %w: target url is required", scraping.ErrInvalidInput)
	}
	status := draft.Status
	if status == "" {
		status = scraping.StatusActive
	}
	if !status.Valid() {
		return scraping.Project{}, fmt.Errorf("create project: %w: %q", scraping.ErrInvalidStatus, status)
	}
	health := 100
	if draft.Health != nil {
		health = scraping.ClampHealth(*draft.Health)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return scraping.Project{}, fmt.Errorf("create project: generate id: %w", err)
	}
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		name = nameFromURL(target)
	}
	p := scraping.Project{
		ID:                 id,
		Name:               name,
		TargetURL:          target,
		Intent:             strings.TrimSpace(draft.Intent),
		Status:             status,
		Health:             health,
		LastRun:            neverRun,
		SpiderCode:         draft.SpiderCode,
		GoogleDriveEnabled: draft.GoogleDriveEnabled,
		CreatedAt:          s.clock.Now().UTC(),
	}
	if err := s.store.Add(ctx, p); err != nil {
		return scraping.Project{}, fmt.Errorf("create project: %w", err)
	}
	s.emit(activity.Event{Kind: activity.KindProjectCreated, ProjectID: p.ID, Message: "created project " + p.Name})
	s.logger.Info("project created", zap.String("project_id", p.ID), zap.String("target_url", p.TargetURL))
	return p, nil
}

// UpdateStatus sets a project's status. Unknown ids yield ErrProjectNotFound.
func (s *Service) UpdateStatus(ctx context.Context, id string, status scraping.Status) error {
	if !status.Valid() {
		return fmt.Errorf("update status: %w: %q", scraping.ErrInvalidStatus, status)
	}
	ok, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return fmt.Errorf("update status: %w", scraping.ErrProjectNotFound)
	}
	s.emit(activity.Event{Kind: activity.KindStatusChanged, ProjectID: id, Message: "status set to " + string(status)})
	return nil
}

// UpdateCode replaces a project's spider source wholesale.
func (s *Service) UpdateCode(ctx context.Context, id, code string) error {
	ok, err := s.store.UpdateCode(ctx, id, code)
	if err != nil {
		return fmt.Errorf("update code: %w", err)
	}
	if !ok {
		return fmt.Errorf("update code: %w", scraping.ErrProjectNotFound)
	}
	s.emit(activity.Event{Kind: activity.KindCodeUpdated, ProjectID: id, Message: fmt.Sprintf("spider code replaced (%d bytes)", len(code))})
	return nil
}

// UpdateDriveSetting toggles the export-to-drive flag.
func (s *Service) UpdateDriveSetting(ctx context.Context, id string, enabled bool) error {
	ok, err := s.store.UpdateDriveSetting(ctx, id, enabled)
	if err != nil {
		return fmt.Errorf("update drive setting: %w", err)
	}
	if !ok {
		return fmt.Errorf("update drive setting: %w", scraping.ErrProjectNotFound)
	}
	msg := "drive export disabled"
	if enabled {
		msg = "drive export enabled"
	}
	s.emit(activity.Event{Kind: activity.KindDriveToggled, ProjectID: id, Message: msg})
	return nil
}

// IntentResult is the wizard's analysis outcome. Available is false when the
// model could not be reached; the suggestion is then blank.
type IntentResult struct {
	Suggestion scraping.IntentSuggestion `json:"suggestion"`
	Available  bool                      `json:"available"`
}

// AnalyzeIntent asks the model to interpret a scraping goal. Failures are not fatal.
func (s *Service) AnalyzeIntent(ctx context.Context, intent, targetURL string) IntentResult {
	start := s.clock.Now()
	sug, err := s.ai.AnalyzeIntent(ctx, intent, targetURL)
	s.recordCall(scraping.OpAnalyzeIntent, "", start, err)
	if err != nil {
		return IntentResult{}
	}
	return IntentResult{Suggestion: sug, Available: true}
}

// GenerateSpider drafts spider source. On failure the fallback text is
// returned together with the cause so callers can surface it.
func (s *Service) GenerateSpider(ctx context.Context, req scraping.SpiderRequest) (string, error) {
	start := s.clock.Now()
	code, err := s.ai.GenerateSpider(ctx, req)
	s.recordCall(scraping.OpGenerateSpider, "", start, err)
	if err != nil {
		return scraping.SpiderFallback, fmt.Errorf("generate spider: %w", err)
	}
	return code, nil
}

// Preflight fetches the wizard target once and reports what it found.
func (s *Service) Preflight(ctx context.Context, target string) (probe.Report, error) {
	if s.prober == nil {
		return probe.Report{}, fmt.Errorf("preflight: %w: probe disabled", scraping.ErrInvalidInput)
	}
	report, err := s.prober.Check(ctx, target)
	if err != nil {
		s.emit(activity.Event{Kind: activity.KindProbe, Level: activity.LevelWarn, Message: "preflight " + target + " failed: " + err.Error()})
		return report, fmt.Errorf("preflight: %w", err)
	}
	s.emit(activity.Event{
		Kind:    activity.KindProbe,
		Message: fmt.Sprintf("preflight %s answered %d (%d bytes)", target, report.StatusCode, report.Bytes),
		Dur:     report.Duration,
	})
	return report, nil
}

// Refactor regenerates a project's code from its recent activity. The
// previous code is kept exactly when the model call fails; the returned
// project then reflects the unchanged record and err carries the cause.
func (s *Service) Refactor(ctx context.Context, id string) (scraping.Project, error) {
	release, err := s.acquire(scraping.OpRefactorSpider, id)
	if err != nil {
		return scraping.Project{}, err
	}
	defer release()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return scraping.Project{}, fmt.Errorf("refactor spider: %w", err)
	}
	start := s.clock.Now()
	code, err := s.ai.RefactorSpider(ctx, scraping.RefactorRequest{
		Code:        p.SpiderCode,
		Logs:        s.logSummary(p),
		Intent:      p.Intent,
		SaveToDrive: p.GoogleDriveEnabled,
	})
	s.recordCall(scraping.OpRefactorSpider, id, start, err)
	if err != nil {
		return p, fmt.Errorf("refactor spider: %w", err)
	}
	if err := s.UpdateCode(ctx, id, code); err != nil {
		return p, err
	}
	p.SpiderCode = code
	return p, nil
}

// Preview asks the model for sample rows the spider might yield. Any failure
// produces an empty table; the project itself is never modified.
func (s *Service) Preview(ctx context.Context, id string) (scraping.PreviewTable, error) {
	release, err := s.acquire(scraping.OpMockResults, id)
	if err != nil {
		return scraping.PreviewTable{}, err
	}
	defer release()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return scraping.PreviewTable{}, fmt.Errorf("preview results: %w", err)
	}
	start := s.clock.Now()
	table, err := s.ai.GenerateMockResults(ctx, p.SpiderCode, p.Intent)
	s.recordCall(scraping.OpMockResults, id, start, err)
	if err != nil {
		return scraping.NewPreviewTable(nil), nil
	}
	return scraping.NewPreviewTable(table.Rows, table.Columns...), nil
}

// AnalyzeLog explains a log excerpt. When logs is blank the recent activity
// feed is analyzed instead. Failures come back as a failed model message.
func (s *Service) AnalyzeLog(ctx context.Context, scope, logs string) (scraping.ChatMessage, error) {
	release, err := s.acquire(scraping.OpAnalyzeLog, scope)
	if err != nil {
		return scraping.ChatMessage{}, err
	}
	defer release()

	if strings.TrimSpace(logs) == "" {
		logs = s.RecentLogText(summaryLimit)
	}
	start := s.clock.Now()
	ans, err := s.ai.AnalyzeLog(ctx, logs)
	s.recordCall(scraping.OpAnalyzeLog, "", start, err)
	if err != nil {
		return failedMessage("Log analysis failed", err), nil
	}
	return scraping.ChatMessage{Role: scraping.RoleModel, Text: ans.Text, Sources: ans.Sources}, nil
}

// Chat answers message given the prior thread. The reply is always a model
// message; failures are reported inline.
func (s *Service) Chat(ctx context.Context, scope string, history []scraping.ChatMessage, message string) (scraping.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return scraping.ChatMessage{}, fmt.Errorf("chat: %w: message is empty", scraping.ErrInvalidInput)
	}
	release, err := s.acquire(scraping.OpChat, scope)
	if err != nil {
		return scraping.ChatMessage{}, err
	}
	defer release()

	start := s.clock.Now()
	ans, err := s.ai.Chat(ctx, history, message)
	s.recordCall(scraping.OpChat, "", start, err)
	if err != nil {
		return failedMessage("Sorry, I could not reach the assistant", err), nil
	}
	return scraping.ChatMessage{Role: scraping.RoleModel, Text: ans.Text, Sources: ans.Sources}, nil
}

// Export archives the project's spider code in the blob store and returns its URI.
func (s *Service) Export(ctx context.Context, id string) (string, error) {
	if s.blobs == nil {
		return "", fmt.Errorf("export spider: %w: no blob store configured", scraping.ErrInvalidInput)
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("export spider: %w", err)
	}
	objectPath := path.Join(s.exportPrefix, p.ID, exportFileName)
	uri, err := s.blobs.PutObject(ctx, objectPath, exportContentType, bytes.NewReader([]byte(p.SpiderCode)))
	if err != nil {
		s.emit(activity.Event{Kind: activity.KindExport, Level: activity.LevelError, ProjectID: id, Message: "export failed: " + err.Error()})
		return "", fmt.Errorf("export spider: %w", err)
	}
	msg := "exported to " + uri
	if s.hasher != nil {
		if digest, err := s.hasher.Hash([]byte(p.SpiderCode)); err == nil {
			msg += " (sha256 " + digest + ")"
		}
	}
	s.emit(activity.Event{Kind: activity.KindExport, ProjectID: id, Message: msg})
	return uri, nil
}

// DriveFiles lists exported artifacts for the drive explorer.
func (s *Service) DriveFiles(ctx context.Context) ([]scraping.BlobObject, error) {
	if s.blobs == nil {
		return []scraping.BlobObject{}, nil
	}
	objs, err := s.blobs.List(ctx, s.exportPrefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list drive files: %w", err)
	}
	return objs, nil
}

// Stats summarizes the registry.
func (s *Service) Stats(ctx context.Context) (scraping.Stats, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return scraping.Stats{}, err
	}
	return scraping.ComputeStats(projects), nil
}

// Diagnostics is the advisory drive check for one project.
type Diagnostics struct {
	ProjectID      string `json:"project_id"`
	DriveMismatch  bool   `json:"drive_mismatch"`
	Recommendation string `json:"recommendation,omitempty"`
}

// DriveMismatch reports whether p claims drive export without code to back it.
func (s *Service) DriveMismatch(p scraping.Project) bool {
	if s.drive == nil {
		return false
	}
	return s.drive.Mismatch(p)
}

// Diagnose computes the drive diagnostic for id.
func (s *Service) Diagnose(ctx context.Context, id string) (Diagnostics, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return Diagnostics{}, fmt.Errorf("diagnose project: %w", err)
	}
	d := Diagnostics{ProjectID: p.ID, DriveMismatch: s.DriveMismatch(p)}
	if d.DriveMismatch {
		d.Recommendation = "Drive export is enabled but the spider has no Google Drive integration. Run Refactor to add it."
	}
	return d, nil
}

// Logs returns up to limit recent activity events, oldest first.
func (s *Service) Logs(limit int) []activity.Event {
	if s.feed == nil {
		return []activity.Event{}
	}
	return s.feed.Recent(limit)
}

// RecentLogText renders recent activity as log lines.
func (s *Service) RecentLogText(limit int) string {
	events := s.Logs(limit)
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, e.Line())
	}
	return strings.Join(lines, "\n")
}

// Busy reports whether operation is pending for scope.
func (s *Service) Busy(op scraping.Operation, scope string) bool {
	return s.gate.Busy(inflight.Key(string(op), scope))
}

func (s *Service) acquire(op scraping.Operation, scope string) (func(), error) {
	release, ok := s.gate.TryAcquire(inflight.Key(string(op), scope))
	if !ok {
		telemetry.ObserveBusyRejection(string(op))
		return nil, fmt.Errorf("%s: %w", op, scraping.ErrBusy)
	}
	return release, nil
}

// logSummary feeds the refactor prompt. Projects without recorded activity
// get a single synthetic line describing their last run.
func (s *Service) logSummary(p scraping.Project) string {
	if s.feed != nil {
		if summary := s.feed.Summary(p.ID, summaryLimit); summary != "" {
			return summary
		}
	}
	return fmt.Sprintf("[%s] %s - Result: Success (status %s, health %d%%)",
		p.LastRun, p.Name, p.Status, scraping.ClampHealth(p.Health))
}

func (s *Service) recordCall(op scraping.Operation, projectID string, start time.Time, err error) {
	dur := s.clock.Now().Sub(start)
	if dur < 0 {
		dur = 0
	}
	evt := activity.Event{Kind: activity.KindAICall, Operation: string(op), ProjectID: projectID, Dur: dur, Message: "ok"}
	if err != nil {
		evt.Level = activity.LevelError
		evt.Message = err.Error()
		s.logger.Warn("model call failed", zap.String("operation", string(op)), zap.String("project_id", projectID), zap.Error(err))
	}
	s.emit(evt)
}

func (s *Service) emit(evt activity.Event) {
	if evt.TS.IsZero() {
		evt.TS = s.clock.Now().UTC()
	}
	s.events.Emit(evt)
}

func failedMessage(prefix string, err error) scraping.ChatMessage {
	return scraping.ChatMessage{
		Role:   scraping.RoleModel,
		Text:   prefix + ": " + err.Error(),
		Failed: true,
	}
}

func nameFromURL(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return target
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
