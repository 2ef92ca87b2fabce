package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatCompletionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "local",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "\"a small grey cat\""}
  }],
  "usage": {"prompt_tokens": 52, "completion_tokens": 6, "total_tokens": 58}
}`

func TestNewOpenAIProvider(t *testing.T) {
	provider := NewOpenAIProvider("test-api-key", "")
	require.NotNil(t, provider)
	assert.Equal(t, "openai", provider.Name())
	assert.NotNil(t, provider.client)
}

func TestNewOpenAIProvider_LocalBaseURL(t *testing.T) {
	provider := NewOpenAIProvider("", "http://127.0.0.1:8080/v1")
	assert.Equal(t, "http://127.0.0.1:8080/v1/", provider.baseURL)
}

func TestOpenAIProvider_Rewrite(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody))
	}))
	defer server.Close()

	provider := NewOpenAIProvider("", server.URL+"/v1")
	resp, err := provider.Rewrite(context.Background(), &RewriteRequest{
		Model:        "local",
		SystemPrompt: "rewrite subtly",
		Prompt:       "a cat",
		Temperature:  0.9,
		MaxTokens:    300,
	})
	require.NoError(t, err)

	assert.Equal(t, `"a small grey cat"`, resp.Text, "quotes are stripped by the pool, not the provider")
	assert.Equal(t, 52, resp.Usage.InputTokens)
	assert.Equal(t, 6, resp.Usage.OutputTokens)
	assert.Equal(t, 58, resp.Usage.TotalTokens)

	assert.Equal(t, "local", got["model"])
	assert.Equal(t, 0.9, got["temperature"])
	assert.Equal(t, float64(300), got["max_tokens"])

	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "rewrite subtly", messages[0].(map[string]any)["content"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
	assert.Equal(t, "a cat", messages[1].(map[string]any)["content"])
}

func TestOpenAIProvider_RewriteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad model","type":"invalid_request_error"}}`},
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"local","choices":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewOpenAIProvider("", server.URL).Rewrite(context.Background(), &RewriteRequest{
				Model:  "local",
				Prompt: "a cat",
			})
			assert.Error(t, err)
		})
	}
}

func TestOpenAIProvider_BuildRequestParams(t *testing.T) {
	provider := NewOpenAIProvider("test-key", "")

	tests := []struct {
		name    string
		request *RewriteRequest
		checks  func(t *testing.T, raw map[string]any)
	}{
		{
			name: "sampling settings present",
			request: &RewriteRequest{
				Model: "gpt-4o-mini", SystemPrompt: "sys", Prompt: "a cat", Temperature: 0.9, MaxTokens: 300,
			},
			checks: func(t *testing.T, raw map[string]any) {
				t.Helper()
				assert.Equal(t, "gpt-4o-mini", raw["model"])
				assert.Contains(t, raw, "temperature")
				assert.Contains(t, raw, "max_tokens")
			},
		},
		{
			name:    "zero settings omitted",
			request: &RewriteRequest{Model: "gpt-4o-mini", SystemPrompt: "sys", Prompt: "a cat"},
			checks: func(t *testing.T, raw map[string]any) {
				t.Helper()
				assert.NotContains(t, raw, "temperature")
				assert.NotContains(t, raw, "max_tokens")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := provider.buildRequestParams(tt.request)
			data, err := json.Marshal(params)
			require.NoError(t, err)
			var raw map[string]any
			require.NoError(t, json.Unmarshal(data, &raw))
			tt.checks(t, raw)
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 5))
	assert.Equal(t, "ab...", truncateString("abcdef", 2))
}
