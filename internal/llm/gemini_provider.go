package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"google.golang.org/genai"
)

const (
	providerNameGemini = "gemini"
	geminiUserRole     = "user"
)

// GeminiProvider implements the Provider interface using Google's Gemini API
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
	}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return providerNameGemini
}

// Rewrite asks Gemini for one variation of request.Prompt
func (p *GeminiProvider) Rewrite(ctx context.Context, request *RewriteRequest) (*RewriteResponse, error) {
	span := sentry.StartSpan(ctx, "gemini.rewrite")
	span.SetTag("model", request.Model)
	span.SetTag("provider", providerNameGemini)
	defer span.Finish()

	startTime := time.Now()
	result, err := p.client.Models.GenerateContent(
		span.Context(), request.Model, p.buildGeminiContents(request.Prompt), p.buildConfig(request),
	)
	duration := time.Since(startTime)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("gemini response did not include any output text")
	}
	log.Printf("📥 GEMINI REWRITE in %v: %s", duration, truncateString(text, maxPreviewChars))

	response := &RewriteResponse{Text: text}
	if result.UsageMetadata != nil {
		response.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
		}
	}

	span.Status = sentry.SpanStatusOK
	return response, nil
}

// buildGeminiContents wraps the prompt as a single user turn
func (p *GeminiProvider) buildGeminiContents(prompt string) []*genai.Content {
	return []*genai.Content{{
		Role:  geminiUserRole,
		Parts: []*genai.Part{{Text: prompt}},
	}}
}

// buildConfig carries the system instruction and sampling settings
func (p *GeminiProvider) buildConfig(request *RewriteRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: request.SystemPrompt}},
		},
	}
	if request.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(request.Temperature))
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}
	return config
}
