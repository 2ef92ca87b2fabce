package llm

import (
	"context"
)

// Provider defines the interface for LLM providers used to rewrite prompts
type Provider interface {
	// Rewrite returns one rewritten version of request.Prompt
	Rewrite(ctx context.Context, request *RewriteRequest) (*RewriteResponse, error)

	// Name returns the provider name (e.g., "openai", "gemini")
	Name() string
}

// RewriteRequest contains all parameters needed for one rewrite call
type RewriteRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// RewriteResponse contains the result from the LLM
type RewriteResponse struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Usage is the token accounting reported by the provider, when available
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
