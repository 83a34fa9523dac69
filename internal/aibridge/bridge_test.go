package aibridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

type recordedCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeGenerator struct {
	mu    sync.Mutex
	resp  *genai.GenerateContentResponse
	err   error
	calls []recordedCall
}

func (f *fakeGenerator) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{model: model, contents: contents, config: config})
	return f.resp, f.err
}

func (f *fakeGenerator) last(t *testing.T) recordedCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type denyLimiter struct{}

func (denyLimiter) Wait(context.Context, string) error { return context.DeadlineExceeded }

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func testConfig() Config {
	return Config{
		IntentModel:    "intent-model",
		CodeModel:      "code-model",
		FastModel:      "fast-model",
		ChatModel:      "chat-model",
		ThinkingBudget: 32768,
	}
}

func TestAnalyzeIntentDecodesAndClamps(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: textResponse(`{"suggested_name":"Laptop watch","frequency_hint":"daily",` +
		`"fields_to_extract":["price"," title ","price",""],"difficulty_rating":14}`)}
	b := New(gen, testConfig(), nil, nil)

	got, err := b.AnalyzeIntent(context.Background(), "track prices", "https://amazon.com")
	require.NoError(t, err)
	require.Equal(t, "Laptop watch", got.SuggestedName)
	require.Equal(t, []string{"price", "title"}, got.Fields)
	require.InDelta(t, 10, got.Difficulty, 0.001)

	call := gen.last(t)
	require.Equal(t, "intent-model", call.model)
	require.Equal(t, "application/json", call.config.ResponseMIMEType)
	require.NotNil(t, call.config.ResponseSchema)
	require.Contains(t, call.contents[0].Parts[0].Text, "https://amazon.com")
}

func TestAnalyzeIntentMalformedIsEmpty(t *testing.T) {
	t.Parallel()

	b := New(&fakeGenerator{resp: textResponse("sorry, I cannot")}, testConfig(), nil, nil)
	got, err := b.AnalyzeIntent(context.Background(), "x", "https://x")
	require.NoError(t, err)
	require.True(t, got.Empty())
}

func TestGenerateSpiderStripsFenceAndUsesThinking(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: textResponse("Here you go:\n```python\nimport scrapy\n```\nEnjoy")}
	b := New(gen, testConfig(), nil, nil)

	code, err := b.GenerateSpider(context.Background(), scraping.SpiderRequest{
		Intent:      "prices",
		TargetURL:   "https://shop.example",
		Fields:      []string{"price", "title"},
		SaveToDrive: true,
	})
	require.NoError(t, err)
	require.Equal(t, "import scrapy", code)

	call := gen.last(t)
	require.Equal(t, "code-model", call.model)
	require.NotNil(t, call.config.ThinkingConfig)
	require.Equal(t, int32(32768), *call.config.ThinkingConfig.ThinkingBudget)
	require.NotNil(t, call.config.SystemInstruction)
	prompt := call.contents[0].Parts[0].Text
	require.Contains(t, prompt, "pydrive2")
	require.Contains(t, prompt, "price, title")
}

func TestGenerateSpiderEmptyIsError(t *testing.T) {
	t.Parallel()

	b := New(&fakeGenerator{resp: textResponse("   ")}, testConfig(), nil, nil)
	_, err := b.GenerateSpider(context.Background(), scraping.SpiderRequest{})
	require.True(t, errors.Is(err, scraping.ErrEmptyResponse))
}

func TestGenerateMockResultsCoercesRows(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: textResponse(`[{"title":"A","price":1200,"in_stock":true},` +
		`"junk",{},{"title":"B","tags":["x"]},{"a":"1"},{"a":"2"},{"a":"3"},{"a":"4"}]`)}
	b := New(gen, testConfig(), nil, nil)

	table, err := b.GenerateMockResults(context.Background(), "code", "intent")
	require.NoError(t, err)
	require.Len(t, table.Rows, scraping.MaxPreviewRows)
	require.Equal(t, scraping.PreviewRow{"title": "A", "price": "1200", "in_stock": "true"}, table.Rows[0])
	require.Equal(t, `["x"]`, table.Rows[1]["tags"])
	require.Equal(t, []string{"title", "price", "in_stock", "tags", "a"}, table.Columns)
	require.Equal(t, "fast-model", gen.last(t).model)
}

func TestGenerateMockResultsMalformedIsEmpty(t *testing.T) {
	t.Parallel()

	b := New(&fakeGenerator{resp: textResponse("{not json")}, testConfig(), nil, nil)
	table, err := b.GenerateMockResults(context.Background(), "code", "intent")
	require.NoError(t, err)
	require.True(t, table.Empty())
}

func TestRefactorSpiderEmptyIsError(t *testing.T) {
	t.Parallel()

	b := New(&fakeGenerator{resp: &genai.GenerateContentResponse{}}, testConfig(), nil, nil)
	_, err := b.RefactorSpider(context.Background(), scraping.RefactorRequest{Code: "x=1"})
	require.True(t, errors.Is(err, scraping.ErrEmptyResponse))
}

func TestRefactorSpiderPromptCarriesLogs(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: textResponse("import pydrive2\nx=2")}
	b := New(gen, testConfig(), nil, nil)
	code, err := b.RefactorSpider(context.Background(), scraping.RefactorRequest{
		Code:        "x=1",
		Logs:        "403 Forbidden",
		Intent:      "prices",
		SaveToDrive: true,
	})
	require.NoError(t, err)
	require.Equal(t, "import pydrive2\nx=2", code)
	prompt := gen.last(t).contents[0].Parts[0].Text
	require.Contains(t, prompt, "x=1")
	require.Contains(t, prompt, "403 Forbidden")
	require.Contains(t, prompt, "Google Drive")
}

func TestAnalyzeLogReturnsSources(t *testing.T) {
	t.Parallel()

	resp := textResponse("Rotate user agents.")
	resp.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://docs.scrapy.org", Title: "Scrapy docs"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://docs.scrapy.org", Title: "dup"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://x.example"}},
			{},
		},
	}
	gen := &fakeGenerator{resp: resp}
	b := New(gen, testConfig(), nil, nil)

	ans, err := b.AnalyzeLog(context.Background(), "ERROR 403")
	require.NoError(t, err)
	require.Equal(t, "Rotate user agents.", ans.Text)
	require.Equal(t, []scraping.Source{
		{URI: "https://docs.scrapy.org", Title: "Scrapy docs"},
		{URI: "https://x.example", Title: "https://x.example"},
	}, ans.Sources)

	call := gen.last(t)
	require.Len(t, call.config.Tools, 1)
	require.NotNil(t, call.config.Tools[0].GoogleSearch)
}

func TestChatSendsHistoryWithoutPlaceholders(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: textResponse("hello back")}
	b := New(gen, testConfig(), nil, nil)
	history := []scraping.ChatMessage{
		{Role: scraping.RoleUser, Text: "hi"},
		{Role: scraping.RoleModel, Text: "hello"},
		{Role: scraping.RoleModel, Text: "thinking...", Thinking: true},
		{Role: scraping.RoleModel, Text: "error", Failed: true},
	}
	ans, err := b.Chat(context.Background(), history, "how do I paginate?")
	require.NoError(t, err)
	require.Equal(t, "hello back", ans.Text)
	require.Empty(t, ans.Sources)

	call := gen.last(t)
	require.Equal(t, "chat-model", call.model)
	require.Len(t, call.contents, 3)
	require.Equal(t, "model", call.contents[1].Role)
	require.Equal(t, "how do I paginate?", call.contents[2].Parts[0].Text)
}

func TestCallFailuresAreUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := New(nil, testConfig(), nil, nil).AnalyzeLog(ctx, "x")
	require.True(t, errors.Is(err, scraping.ErrAIUnavailable))

	boom := errors.New("quota exceeded")
	_, err = New(&fakeGenerator{err: boom}, testConfig(), nil, nil).Chat(ctx, nil, "x")
	require.True(t, errors.Is(err, scraping.ErrAIUnavailable))
	require.True(t, errors.Is(err, boom))
	require.True(t, IsUnavailable(err))

	gen := &fakeGenerator{resp: textResponse("x")}
	_, err = New(gen, testConfig(), denyLimiter{}, nil).GenerateSpider(ctx, scraping.SpiderRequest{})
	require.True(t, errors.Is(err, scraping.ErrAIUnavailable))
	require.Empty(t, gen.calls)
}

func TestThinkingDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ThinkingBudget = 0
	require.Nil(t, New(nil, cfg, nil, nil).thinking())
}
