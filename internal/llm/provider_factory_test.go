package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderFactory_GetProvider(t *testing.T) {
	tests := []struct {
		name         string
		factory      *ProviderFactory
		model        string
		providerName string
		wantName     string
		wantErr      bool
	}{
		{
			name:     "local server needs no key",
			factory:  NewProviderFactory("", "http://localhost:8080/v1", ""),
			model:    "local",
			wantName: "openai",
		},
		{
			name:     "openai with key",
			factory:  NewProviderFactory("sk-test", "", ""),
			model:    "gpt-4o-mini",
			wantName: "openai",
		},
		{
			name:    "openai without key or base url",
			factory: NewProviderFactory("", "", ""),
			model:   "gpt-4o-mini",
			wantErr: true,
		},
		{
			name:         "explicit gemini without key",
			factory:      NewProviderFactory("", "http://localhost:8080/v1", ""),
			providerName: "gemini",
			wantErr:      true,
		},
		{
			name:    "gemini model without key",
			factory: NewProviderFactory("sk-test", "", ""),
			model:   "gemini-2.5-flash",
			wantErr: true,
		},
		{
			name:         "unknown provider",
			factory:      NewProviderFactory("sk-test", "", ""),
			providerName: "ollama",
			wantErr:      true,
		},
		{
			name:         "provider name is case insensitive",
			factory:      NewProviderFactory("sk-test", "", ""),
			providerName: "OpenAI",
			wantName:     "openai",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := tt.factory.GetProvider(context.Background(), tt.model, tt.providerName)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, provider.Name())
		})
	}
}
