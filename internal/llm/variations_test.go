package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanRewrite(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"a small cat"`, "a small cat"},
		{"  a small cat \n", "a small cat"},
		{`'a small cat'`, "a small cat"},
		{"“a small cat”", "a small cat"},
		{`"a small cat`, "a small cat"},
		{`""`, ""},
		{`a "quoted" cat`, `a "quoted" cat`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanRewrite(tt.in))
		})
	}
}

func TestFilterVariants(t *testing.T) {
	got := FilterVariants("a cat", []string{
		"a small cat",
		"a cat",
		"",
		"a small cat",
		"  a fluffy cat ",
		" a cat ",
	})
	assert.Equal(t, []string{"a small cat", "a fluffy cat"}, got)
	assert.Empty(t, FilterVariants("a cat", []string{"a cat", "a cat"}))
}

func TestVariantPool_FansOutAndFilters(t *testing.T) {
	var calls atomic.Int32
	provider := &MockProvider{
		name: "mock",
		rewriteFunc: func(_ context.Context, req *RewriteRequest) (*RewriteResponse, error) {
			n := calls.Add(1)
			assert.Equal(t, "rewrite subtly", req.SystemPrompt)
			assert.Equal(t, 0.9, req.Temperature)
			assert.Equal(t, 300, req.MaxTokens)
			// two distinct answers, each returned several times, quoted
			return &RewriteResponse{Text: fmt.Sprintf("%q", fmt.Sprintf("a cat variant %d", n%2))}, nil
		},
	}

	pool := NewVariantPool(provider, PoolConfig{Model: "local", SystemPrompt: "rewrite subtly"})
	variants := pool.Variants(context.Background(), "a cat")

	assert.Equal(t, int32(DefaultVariantCount), calls.Load())
	assert.ElementsMatch(t, []string{"a cat variant 0", "a cat variant 1"}, variants)
}

func TestVariantPool_FailuresFallBackToOriginal(t *testing.T) {
	var mu sync.Mutex
	seen := 0
	provider := &MockProvider{
		name: "mock",
		rewriteFunc: func(_ context.Context, req *RewriteRequest) (*RewriteResponse, error) {
			mu.Lock()
			defer mu.Unlock()
			seen++
			if seen%2 == 0 {
				return nil, errors.New("backend busy")
			}
			return &RewriteResponse{Text: fmt.Sprintf("a cat #%d", seen)}, nil
		},
	}

	variants := NewVariantPool(provider, PoolConfig{Count: 4}).Variants(context.Background(), "a cat")
	assert.Len(t, variants, 2)
	assert.NotContains(t, variants, "a cat")
}

func TestVariantPool_AllFailuresGiveEmptyPool(t *testing.T) {
	provider := &MockProvider{
		name: "mock",
		rewriteFunc: func(context.Context, *RewriteRequest) (*RewriteResponse, error) {
			return nil, errors.New("offline")
		},
	}

	variants := NewVariantPool(provider, PoolConfig{}).Variants(context.Background(), "a cat")
	assert.Empty(t, variants)
}

func TestVariantPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	provider := &MockProvider{
		name: "mock",
		rewriteFunc: func(ctx context.Context, _ *RewriteRequest) (*RewriteResponse, error) {
			calls.Add(1)
			return nil, ctx.Err()
		},
	}

	pool := NewVariantPool(provider, PoolConfig{RequestsPerSecond: 1})
	variants := pool.Variants(ctx, "a cat")
	assert.Empty(t, variants)
	assert.Equal(t, int32(0), calls.Load(), "the limiter refuses to wait on a cancelled context")
}

func TestNewVariantPool_Defaults(t *testing.T) {
	pool := NewVariantPool(&MockProvider{name: "mock"}, PoolConfig{})
	require.NotNil(t, pool.cfg.Tracer)
	assert.Equal(t, DefaultVariantCount, pool.cfg.Count)
	assert.Equal(t, defaultTemperature, pool.cfg.Temperature)
	assert.Equal(t, defaultMaxTokens, pool.cfg.MaxTokens)
}
