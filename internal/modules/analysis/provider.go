package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"sync"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/generative-ai-go/genai"
	appcfg "github.com/mx-space/journal/internal/config"
	"github.com/mx-space/journal/internal/models"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultGeminiModel    = "gemini-2.0-flash"
	openRouterBaseURL     = "https://openrouter.ai/api/v1"
)

// Client is the Analyzer backed by the configured providers.
type Client struct {
	cfg        appcfg.AIConfig
	logger     *zap.Logger
	httpClient *http.Client

	mu      sync.Mutex
	lastErr string
}

var _ Analyzer = (*Client)(nil)

// NewClient returns a Client for cfg.
func NewClient(cfg appcfg.AIConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		logger:     logger.Named("Analysis"),
		httpClient: &http.Client{},
	}
}

func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.lastErr = ""
		return
	}
	c.lastErr = err.Error()
}

func (c *Client) AnalyzeIndividualEntry(ctx context.Context, entry models.JournalEntry) (*EntryAnalysis, error) {
	raw, err := c.complete(ctx, c.cfg.EntryModel, entrySystemPrompt, buildEntryPrompt(entry))
	if err != nil {
		c.recordError(err)
		return nil, err
	}
	out, err := parseEntryAnalysis(raw)
	c.recordError(err)
	if err != nil {
		c.logger.Warn("unparseable entry analysis", zap.String("entry", entry.ID), zap.String("reply", truncateText(raw, 300)))
		return nil, err
	}
	return out, nil
}

func (c *Client) AnalyzeWeeklyEntries(ctx context.Context, entries []models.JournalEntry) (*WeeklyAnalysis, error) {
	if len(entries) == 0 {
		return nil, errors.New("no entries to analyze")
	}
	raw, err := c.complete(ctx, c.cfg.WeeklyModel, weeklySystemPrompt, buildWeeklyPrompt(entries))
	if err != nil {
		c.recordError(err)
		return nil, err
	}
	out, err := parseWeeklyAnalysis(raw)
	c.recordError(err)
	if err != nil {
		c.logger.Warn("unparseable weekly analysis", zap.Int("entries", len(entries)), zap.String("reply", truncateText(raw, 300)))
		return nil, err
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, assignment *appcfg.AIModelAssignment, systemPrompt, prompt string) (string, error) {
	provider := selectAIProvider(c.cfg, assignment)
	if provider == nil {
		return "", ErrNoProvider
	}
	if strings.TrimSpace(provider.APIKey) == "" {
		return "", &APIError{Provider: provider.ID, StatusCode: http.StatusUnauthorized, Message: "api key is empty"}
	}
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	var (
		text string
		err  error
	)
	switch normalizeProviderType(provider.Type) {
	case appcfg.ProviderOpenAICompatible:
		text, err = c.callOpenAICompatible(ctx, provider, systemPrompt, prompt)
	case appcfg.ProviderGemini:
		text, err = c.callGemini(ctx, provider, systemPrompt, prompt)
	default:
		text, err = c.callLanguageModel(ctx, provider, systemPrompt, prompt)
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("request timeout: %w", err)
	}
	c.logger.Debug("completion finished",
		zap.String("provider", provider.ID),
		zap.String("model", provider.DefaultModel),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return text, err
}

func (c *Client) callLanguageModel(ctx context.Context, provider *appcfg.AIProvider, systemPrompt, prompt string) (string, error) {
	model, err := buildLanguageModel(provider)
	if err != nil {
		return "", err
	}
	resp, err := jetai.GenerateText(
		ctx,
		buildAIPromptMessages(systemPrompt, prompt),
		jetai.WithModel(model),
		jetai.WithMaxOutputTokens(c.cfg.MaxOutputTokens),
	)
	if err != nil {
		return "", err
	}
	return extractTextFromAIResponse(resp)
}

func buildAIPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func extractTextFromAIResponse(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}

	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	if strings.TrimSpace(full.String()) == "" {
		return "", ErrEmptyResponse
	}
	return full.String(), nil
}

func buildLanguageModel(provider *appcfg.AIProvider) (jetapi.LanguageModel, error) {
	apiKey := strings.TrimSpace(provider.APIKey)
	modelID := strings.TrimSpace(provider.DefaultModel)
	endpoint := strings.TrimSpace(provider.Endpoint)

	switch normalizeProviderType(provider.Type) {
	case appcfg.ProviderAnthropic:
		if modelID == "" {
			modelID = defaultAnthropicModel
		}
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		return jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client)), nil

	case appcfg.ProviderOpenAI, appcfg.ProviderOpenRouter:
		if modelID == "" {
			modelID = defaultOpenAIModel
		}
		if endpoint == "" && normalizeProviderType(provider.Type) == appcfg.ProviderOpenRouter {
			endpoint = openRouterBaseURL
		}
		opts := []openaioption.RequestOption{
			openaioption.WithAPIKey(apiKey),
			openaioption.WithMaxRetries(0),
		}
		if normalized := normalizeOpenAIBaseURL(endpoint); normalized != "" {
			opts = append(opts, openaioption.WithBaseURL(normalized))
		}
		client := openaiclient.NewClient(opts...)
		return jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client)), nil
	}
	return nil, fmt.Errorf("unsupported AI provider type %q", provider.Type)
}

func (c *Client) callOpenAICompatible(ctx context.Context, provider *appcfg.AIProvider, systemPrompt, prompt string) (string, error) {
	model := strings.TrimSpace(provider.DefaultModel)
	if model == "" {
		model = defaultOpenAIModel
	}

	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body, err := json.Marshal(map[string]interface{}{
		"model":           model,
		"messages":        messages,
		"max_tokens":      c.cfg.MaxOutputTokens,
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", err
	}

	endpoint := normalizeOpenAICompatibleEndpoint(provider.Endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(provider.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", provider.ID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("network error reading %s response: %w", provider.ID, err)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeErr := json.Unmarshal(respBody, &result)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(string(respBody))
		if decodeErr == nil && result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return "", &APIError{Provider: provider.ID, StatusCode: resp.StatusCode, Message: truncateText(msg, 300)}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: cannot parse chat completion envelope", ErrInvalidResponse)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) callGemini(ctx context.Context, provider *appcfg.AIProvider, systemPrompt, prompt string) (string, error) {
	opts := []option.ClientOption{option.WithAPIKey(strings.TrimSpace(provider.APIKey))}
	if endpoint := strings.TrimSpace(provider.Endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("create Gemini client: %w", err)
	}
	defer client.Close()

	modelID := strings.TrimSpace(provider.DefaultModel)
	if modelID == "" {
		modelID = defaultGeminiModel
	}
	model := client.GenerativeModel(modelID)
	model.SetTemperature(0.4)
	model.SetMaxOutputTokens(int32(c.cfg.MaxOutputTokens))
	model.ResponseMIMEType = "application/json"
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	text := extractGeminiText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}

func selectAIProvider(cfg appcfg.AIConfig, assignment *appcfg.AIModelAssignment) *appcfg.AIProvider {
	var providerID, overrideModel string
	if assignment != nil {
		providerID = strings.TrimSpace(assignment.ProviderID)
		overrideModel = strings.TrimSpace(assignment.Model)
	}

	pick := func(provider appcfg.AIProvider) *appcfg.AIProvider {
		selected := provider
		if overrideModel != "" {
			selected.DefaultModel = overrideModel
		}
		return &selected
	}

	if providerID != "" {
		for _, provider := range cfg.Providers {
			if provider.Enabled && strings.TrimSpace(provider.ID) == providerID {
				return pick(provider)
			}
		}
	}
	for _, provider := range cfg.Providers {
		if provider.Enabled {
			return pick(provider)
		}
	}
	return nil
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	if t == "openaicompatible" {
		return appcfg.ProviderOpenAICompatible
	}
	return t
}

func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

func normalizeOpenAICompatibleEndpoint(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return "https://api.openai.com"
	}
	return strings.TrimSuffix(base, "/v1")
}
