package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/activity/sinks"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/config"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/dashboard"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/detector"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/probe"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/storage/memory"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/view"
)

func TestServer_CreateAndListProjects(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{})
	rec := env.do(t, http.MethodPost, "/v1/projects", `{"name":"Books","target_url":"https://books.example","intent":"titles"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"id-1"`)

	rec = env.do(t, http.MethodGet, "/v1/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Projects []projectDTO `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Projects, 2)
	require.Equal(t, "id-1", payload.Projects[0].ID)
	require.Equal(t, "p1", payload.Projects[1].ID)
}

func TestServer_CreateProjectValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{})
	rec := env.do(t, http.MethodPost, "/v1/projects", `{invalid`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/projects", `{"name":"no url"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "target url")
}

func TestServer_GetProjectNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{})
	rec := env.do(t, http.MethodGet, "/v1/projects/ghost", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DeleteIsNotImplemented(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{})
	rec := env.do(t, http.MethodDelete, "/v1/projects/p1", "")
	require.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/projects/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_UpdateStatusCodeAndDrive(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{})
	rec := env.do(t, http.MethodPut, "/v1/projects/p1/status", `{"status":"paused"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"paused"`)

	rec = env.do(t, http.MethodPut, "/v1/projects/p1/status", `{"status":"sleeping"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/projects/p1/drive", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"drive_mismatch":true`)

	rec = env.do(t, http.MethodPut, "/v1/projects/p1/code", `{"code":"from pydrive.auth import GoogleAuth"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"drive_mismatch":false`)

	rec = env.do(t, http.MethodPut, "/v1/projects/p1/code", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/projects/ghost/drive", `{"enabled":true}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RefactorFailureReturnsRetainedCode(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{err: fmt.Errorf("refactor_spider: %w", scraping.ErrAIUnavailable)})
	rec := env.do(t, http.MethodPost, "/v1/projects/p1/refactor", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), `"spider_code":"x=1"`)

	p, err := env.store.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "x=1", p.SpiderCode)
}

func TestServer_RefactorAndDiagnostics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{code: "import googleapiclient\nx=1"})
	_, err := env.store.UpdateDriveSetting(context.Background(), "p1", true)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/v1/projects/p1/diagnostics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"drive_mismatch":true`)

	rec = env.do(t, http.MethodPost, "/v1/projects/p1/refactor", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/projects/p1/diagnostics", "")
	require.Contains(t, rec.Body.String(), `"drive_mismatch":false`)
}

func TestServer_PreviewEmptyTable(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{err: errors.New("quota")})
	rec := env.do(t, http.MethodPost, "/v1/projects/p1/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"columns":[],"rows":[]}`, rec.Body.String())
}

func TestServer_WizardEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{
		intent: scraping.IntentSuggestion{SuggestedName: "Prices", Fields: []string{"price"}, Difficulty: 4},
		code:   "import scrapy",
	})
	rec := env.do(t, http.MethodPost, "/v1/wizard/analyze", `{"intent":"prices","target_url":"https://a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":true`)

	rec = env.do(t, http.MethodPost, "/v1/wizard/analyze", `{"intent":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/wizard/spider", `{"intent":"prices","fields":["price"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "import scrapy")

	rec = env.do(t, http.MethodPost, "/v1/wizard/preflight", `{"url":"https://a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status_code":200`)
}

func TestServer_WizardSpiderFallback(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{err: fmt.Errorf("generate_spider: %w", scraping.ErrAIUnavailable)})
	rec := env.do(t, http.MethodPost, "/v1/wizard/spider", `{"intent":"x"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "Failed to generate spider code")
}

func TestServer_ExportAndDriveFiles(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{})
	rec := env.do(t, http.MethodPost, "/v1/projects/p1/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "spiders/p1/spider.py")

	rec = env.do(t, http.MethodGet, "/v1/drive/files", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"path":"spiders/p1/spider.py"`)
}

func TestServer_ChatKeepsThreadPerSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{answer: scraping.Answer{Text: "Use CSS selectors."}})
	rec := env.do(t, http.MethodPost, "/v1/chat", `{"message":"how do I select?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Use CSS selectors.")
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	var payload struct {
		Messages []scraping.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Messages, 2)
	require.Equal(t, scraping.RoleUser, payload.Messages[0].Role)
	require.Equal(t, scraping.RoleModel, payload.Messages[1].Role)

	rec = env.do(t, http.MethodPost, "/v1/chat", `{"message":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_LogsAndStats(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{})
	rec := env.do(t, http.MethodGet, "/v1/logs?limit=0", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/logs?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"events"`)

	rec = env.do(t, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":1`)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	env := newTestEnvWithConfig(t, &fakeAI{}, cfg)

	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/projects", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/projects", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeAI{})
	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{scraping.ErrProjectNotFound, http.StatusNotFound},
		{fmt.Errorf("x: %w", scraping.ErrInvalidStatus), http.StatusBadRequest},
		{fmt.Errorf("x: %w", view.ErrUnknownView), http.StatusBadRequest},
		{fmt.Errorf("preflight: %w", probe.ErrBlockedTarget), http.StatusBadRequest},
		{fmt.Errorf("refactor: %w", scraping.ErrBusy), http.StatusConflict},
		{scraping.ErrDuplicateID, http.StatusConflict},
		{fmt.Errorf("chat: %w: boom", scraping.ErrAIUnavailable), http.StatusBadGateway},
		{fmt.Errorf("mock results: %w", scraping.ErrEmptyResponse), http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeAI struct {
	intent scraping.IntentSuggestion
	code   string
	rows   []scraping.PreviewRow
	answer scraping.Answer
	err    error
}

func (f *fakeAI) AnalyzeIntent(context.Context, string, string) (scraping.IntentSuggestion, error) {
	return f.intent, f.err
}

func (f *fakeAI) GenerateSpider(context.Context, scraping.SpiderRequest) (string, error) {
	return f.code, f.err
}

func (f *fakeAI) GenerateMockResults(context.Context, string, string) (scraping.PreviewTable, error) {
	return scraping.NewPreviewTable(f.rows), f.err
}

func (f *fakeAI) RefactorSpider(context.Context, scraping.RefactorRequest) (string, error) {
	return f.code, f.err
}

func (f *fakeAI) AnalyzeLog(context.Context, string) (scraping.Answer, error) {
	return f.answer, f.err
}

func (f *fakeAI) Chat(context.Context, []scraping.ChatMessage, string) (scraping.Answer, error) {
	return f.answer, f.err
}

type fakeIDGen struct {
	mu sync.Mutex
	n  int
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("id-%d", f.n), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type stubProber struct{}

func (stubProber) Check(_ context.Context, target string) (probe.Report, error) {
	return probe.Report{URL: target, StatusCode: http.StatusOK, Title: "Stub", Bytes: 42}, nil
}

type testEnv struct {
	server *Server
	store  *memory.ProjectStore
}

func newTestEnv(t *testing.T, ai scraping.AIBridge) testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, ai, config.Config{})
}

func newTestEnvWithConfig(t *testing.T, ai scraping.AIBridge, cfg config.Config) testEnv {
	t.Helper()
	store := memory.NewProjectStore()
	require.NoError(t, store.Add(context.Background(), scraping.Project{
		ID:         "p1",
		Name:       "First",
		TargetURL:  "https://first.example",
		Status:     scraping.StatusActive,
		Health:     90,
		LastRun:    "never",
		SpiderCode: "x=1",
	}))
	ids := &fakeIDGen{}
	svc, err := dashboard.New(dashboard.Deps{
		Store:  store,
		AI:     ai,
		Blobs:  memory.NewBlobStore(),
		Drive:  detector.NewDrive(nil),
		Prober: stubProber{},
		Feed:   sinks.NewRing(10),
		Clock:  &fakeClock{now: time.Unix(100, 0)},
		IDs:    ids,
	})
	require.NoError(t, err)
	cfg.Probe.Enabled = true
	sessions := view.NewSessions(10, func() (string, error) {
		id, err := ids.NewID()
		return "sess-" + id, err
	})
	return testEnv{server: NewServer(svc, sessions, cfg, zap.NewNop()), store: store}
}

func (e testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
