package aibridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/telemetry"
)

// Generator is the slice of the genai client the bridge needs. *genai.Models satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Limiter throttles calls per operation.
type Limiter interface {
	Wait(ctx context.Context, operation string) error
}

// Config selects models and shared generation knobs.
type Config struct {
	IntentModel    string
	CodeModel      string
	FastModel      string
	ChatModel      string
	ThinkingBudget int
	Language       string
	Timeout        time.Duration
}

// Bridge implements scraping.AIBridge.
type Bridge struct {
	gen     Generator
	cfg     Config
	limiter Limiter
	logger  *zap.Logger
}

var _ scraping.AIBridge = (*Bridge)(nil)

// NewClient builds a genai-backed Generator. An empty apiKey yields a nil Generator,
// which makes every bridge call fail with scraping.ErrAIUnavailable.
func NewClient(ctx context.Context, apiKey, baseURL string) (Generator, error) {
	if apiKey == "" {
		return nil, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client.Models, nil
}

// New wires a Bridge. limiter and logger may be nil.
func New(gen Generator, cfg Config, limiter Limiter, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Language == "" {
		cfg.Language = "Thai"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Bridge{gen: gen, cfg: cfg, limiter: limiter, logger: logger}
}

// Available reports whether a model backend is configured.
func (b *Bridge) Available() bool {
	return b.gen != nil
}

// AnalyzeIntent asks the intent model for a structured project suggestion.
// Unparseable output yields an empty suggestion without error.
func (b *Bridge) AnalyzeIntent(ctx context.Context, intent, targetURL string) (scraping.IntentSuggestion, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   intentSchema,
	}
	resp, err := b.call(ctx, scraping.OpAnalyzeIntent, b.cfg.IntentModel,
		userText(intentPrompt(intent, targetURL, b.cfg.Language)), cfg)
	if err != nil {
		return scraping.IntentSuggestion{}, err
	}
	return decodeIntent(responseText(resp)), nil
}

// GenerateSpider asks the code model for spider source.
func (b *Bridge) GenerateSpider(ctx context.Context, req scraping.SpiderRequest) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemText(spiderSystemInstruction),
		ThinkingConfig:    b.thinking(),
	}
	resp, err := b.call(ctx, scraping.OpGenerateSpider, b.cfg.CodeModel,
		userText(spiderPrompt(req, b.cfg.Language)), cfg)
	if err != nil {
		return "", err
	}
	code := stripFence(responseText(resp))
	if code == "" {
		return "", fmt.Errorf("%s: %w", scraping.OpGenerateSpider, scraping.ErrEmptyResponse)
	}
	return code, nil
}

// GenerateMockResults asks for up to five realistic sample rows for code.
// Columns follow the field order of the answer. Unparseable output yields an
// empty table without error.
func (b *Bridge) GenerateMockResults(ctx context.Context, code, intent string) (scraping.PreviewTable, error) {
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	resp, err := b.call(ctx, scraping.OpMockResults, b.cfg.FastModel,
		userText(mockResultsPrompt(code, intent)), cfg)
	if err != nil {
		return scraping.PreviewTable{}, err
	}
	text := stripFence(responseText(resp))
	return scraping.NewPreviewTable(decodeRows(text), rowKeyOrder(text)...), nil
}

// RefactorSpider asks the code model to repair code given a log summary.
// An empty answer is an error so callers keep the current code.
func (b *Bridge) RefactorSpider(ctx context.Context, req scraping.RefactorRequest) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemText(refactorSystemInstruction),
		ThinkingConfig:    b.thinking(),
	}
	resp, err := b.call(ctx, scraping.OpRefactorSpider, b.cfg.CodeModel,
		userText(refactorPrompt(req, b.cfg.Language)), cfg)
	if err != nil {
		return "", err
	}
	code := stripFence(responseText(resp))
	if code == "" {
		return "", fmt.Errorf("%s: %w", scraping.OpRefactorSpider, scraping.ErrEmptyResponse)
	}
	return code, nil
}

// AnalyzeLog summarizes crawl logs with web-search grounding.
func (b *Bridge) AnalyzeLog(ctx context.Context, logs string) (scraping.Answer, error) {
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	resp, err := b.call(ctx, scraping.OpAnalyzeLog, b.cfg.FastModel,
		userText(analyzeLogPrompt(logs, b.cfg.Language)), cfg)
	if err != nil {
		return scraping.Answer{}, err
	}
	return answerFrom(scraping.OpAnalyzeLog, resp)
}

// Chat continues a conversation with web-search grounding. Placeholder and failed
// turns in history are not sent to the model.
func (b *Bridge) Chat(ctx context.Context, history []scraping.ChatMessage, message string) (scraping.Answer, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		if m.Thinking || m.Failed || m.Text == "" {
			continue
		}
		contents = append(contents, textContent(string(m.Role), m.Text))
	}
	contents = append(contents, textContent(string(scraping.RoleUser), message))
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemText(chatSystemInstruction(b.cfg.Language)),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	resp, err := b.call(ctx, scraping.OpChat, b.cfg.ChatModel, contents, cfg)
	if err != nil {
		return scraping.Answer{}, err
	}
	return answerFrom(scraping.OpChat, resp)
}

func (b *Bridge) call(
	ctx context.Context,
	op scraping.Operation,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	if b.gen == nil {
		telemetry.ObserveAICall(string(op), "unavailable", 0)
		return nil, fmt.Errorf("%s: %w: no api key configured", op, scraping.ErrAIUnavailable)
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, string(op)); err != nil {
			telemetry.ObserveAICall(string(op), "throttled", 0)
			return nil, fmt.Errorf("%s: %w: %w", op, scraping.ErrAIUnavailable, err)
		}
	}

	ctx, span := telemetry.Tracer().Start(ctx, "aibridge."+string(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ai.operation", string(op)),
			attribute.String("ai.model", model),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := b.gen.GenerateContent(ctx, model, contents, cfg)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate content failed")
		telemetry.ObserveAICall(string(op), "error", elapsed)
		b.logger.Warn("model call failed",
			zap.String("operation", string(op)),
			zap.String("model", model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s: %w: %w", op, scraping.ErrAIUnavailable, err)
	}
	outcome := "ok"
	if responseText(resp) == "" {
		outcome = "empty"
	}
	telemetry.ObserveAICall(string(op), outcome, elapsed)
	b.logger.Debug("model call finished",
		zap.String("operation", string(op)),
		zap.String("model", model),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func (b *Bridge) thinking() *genai.ThinkingConfig {
	if b.cfg.ThinkingBudget <= 0 {
		return nil
	}
	budget := int32(b.cfg.ThinkingBudget)
	return &genai.ThinkingConfig{ThinkingBudget: &budget}
}

func answerFrom(op scraping.Operation, resp *genai.GenerateContentResponse) (scraping.Answer, error) {
	text := responseText(resp)
	if text == "" {
		return scraping.Answer{}, fmt.Errorf("%s: %w", op, scraping.ErrEmptyResponse)
	}
	return scraping.Answer{Text: text, Sources: groundingSources(resp)}, nil
}

// IsUnavailable reports whether err came from the model backend rather than from input.
func IsUnavailable(err error) bool {
	return errors.Is(err, scraping.ErrAIUnavailable) || errors.Is(err, scraping.ErrEmptyResponse)
}

func userText(text string) []*genai.Content {
	return []*genai.Content{textContent(string(scraping.RoleUser), text)}
}

func systemText(text string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}}
}
