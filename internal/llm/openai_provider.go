package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// Provider name
	providerNameOpenAI = "openai"

	// local OpenAI-compatible servers ignore the key but the SDK wants one
	placeholderAPIKey = "sk-no-key-required"

	maxPreviewChars = 200
)

// OpenAIProvider implements the Provider interface using the chat completions API.
// It works against api.openai.com or any OpenAI-compatible server.
type OpenAIProvider struct {
	client  *openai.Client
	baseURL string
}

// NewOpenAIProvider creates a new OpenAI provider. An empty baseURL targets the
// official API.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	if apiKey == "" {
		apiKey = placeholderAPIKey
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		baseURL = strings.TrimSuffix(baseURL, "/") + "/"
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client:  &client,
		baseURL: baseURL,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return providerNameOpenAI
}

// Rewrite sends one chat completion with the rewrite instruction as system message
func (p *OpenAIProvider) Rewrite(ctx context.Context, request *RewriteRequest) (*RewriteResponse, error) {
	span := sentry.StartSpan(ctx, "openai.rewrite")
	span.SetTag("model", request.Model)
	span.SetTag("provider", providerNameOpenAI)
	defer span.Finish()

	params := p.buildRequestParams(request)

	startTime := time.Now()
	resp, err := p.client.Chat.Completions.New(span.Context(), params)
	duration := time.Since(startTime)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("openai response did not include any choices")
	}

	text := resp.Choices[0].Message.Content
	log.Printf("📥 OPENAI REWRITE in %v: %s", duration, truncateString(text, maxPreviewChars))

	span.Status = sentry.SpanStatusOK
	return &RewriteResponse{
		Text: text,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// buildRequestParams builds the chat completion parameters for a rewrite
func (p *OpenAIProvider) buildRequestParams(request *RewriteRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(request.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(request.SystemPrompt),
			openai.UserMessage(request.Prompt),
		},
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}
	return params
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
