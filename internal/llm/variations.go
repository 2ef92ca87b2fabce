package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/variation-explorer/internal/logger"
	"github.com/Conceptual-Machines/variation-explorer/internal/observability"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultVariantCount is how many rewrites are requested per batch
	DefaultVariantCount = 8

	defaultTemperature = 0.9
	defaultMaxTokens   = 300

	quoteChars = "\"'“”‘’`"
)

// PoolConfig configures a VariantPool
type PoolConfig struct {
	Model        string
	SystemPrompt string
	Count        int
	Temperature  float64
	MaxTokens    int
	// RequestsPerSecond paces calls to the provider; zero means unlimited
	RequestsPerSecond float64
	Tracer            *observability.LangfuseClient
}

// VariantPool fans out rewrite calls and turns the answers into a clean pool
// of prompt variants for the mutation generator.
type VariantPool struct {
	provider Provider
	cfg      PoolConfig
	limiter  *rate.Limiter
}

// NewVariantPool creates a pool backed by provider
func NewVariantPool(provider Provider, cfg PoolConfig) *VariantPool {
	if cfg.Count <= 0 {
		cfg.Count = DefaultVariantCount
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.GetClient()
	}

	limiter := rate.NewLimiter(rate.Inf, cfg.Count)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &VariantPool{provider: provider, cfg: cfg, limiter: limiter}
}

// Variants requests cfg.Count rewrites of prompt in parallel. A failed call
// contributes the original prompt, which is then filtered out, so the pool
// may be empty but the call never fails.
func (p *VariantPool) Variants(ctx context.Context, prompt string) []string {
	trace := p.cfg.Tracer.StartTrace(ctx, "prompt_rewrite", map[string]interface{}{
		"provider": p.provider.Name(),
		"model":    p.cfg.Model,
		"count":    p.cfg.Count,
	})
	defer trace.Finish()

	results := make([]string, p.cfg.Count)

	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			results[i] = p.rewriteOne(ctx, trace, i, prompt)
			return nil
		})
	}
	_ = g.Wait()

	pool := FilterVariants(prompt, results)
	logger.Debug("Prompt variants ready", logger.Fields{
		"provider":  p.provider.Name(),
		"requested": p.cfg.Count,
		"distinct":  len(pool),
	})
	return pool
}

func (p *VariantPool) rewriteOne(ctx context.Context, trace *observability.Trace, i int, prompt string) string {
	if err := p.limiter.Wait(ctx); err != nil {
		return prompt
	}

	gen := trace.Generation(fmt.Sprintf("rewrite-%d", i), nil)
	defer gen.Finish()

	resp, err := p.provider.Rewrite(ctx, &RewriteRequest{
		Model:        p.cfg.Model,
		SystemPrompt: p.cfg.SystemPrompt,
		Prompt:       prompt,
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
	})
	if err != nil {
		gen.SetLevel("ERROR")
		if ctx.Err() == nil {
			logger.Warn("Prompt rewrite failed, using original", logger.Fields{
				"provider": p.provider.Name(),
				"error":    err.Error(),
			})
		}
		return prompt
	}

	gen.LogRewrite(p.cfg.Model, prompt, resp.Text, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	cleaned := CleanRewrite(resp.Text)
	if cleaned == "" {
		return prompt
	}
	return cleaned
}

// CleanRewrite trims whitespace and surrounding quotes from a model answer
func CleanRewrite(text string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(text), quoteChars))
}

// FilterVariants drops empty candidates, duplicates and copies of original,
// keeping first-seen order.
func FilterVariants(original string, candidates []string) []string {
	original = strings.TrimSpace(original)
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || c == original {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
