package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/Conceptual-Machines/variation-explorer/internal/config"
	"github.com/Conceptual-Machines/variation-explorer/internal/database"
	"github.com/Conceptual-Machines/variation-explorer/internal/explore"
	"github.com/Conceptual-Machines/variation-explorer/internal/generation"
	"github.com/Conceptual-Machines/variation-explorer/internal/llm"
	"github.com/Conceptual-Machines/variation-explorer/internal/logger"
	"github.com/Conceptual-Machines/variation-explorer/internal/metrics"
	"github.com/Conceptual-Machines/variation-explorer/internal/observability"
	"github.com/Conceptual-Machines/variation-explorer/internal/prompt"
	"github.com/Conceptual-Machines/variation-explorer/internal/render"
)

const (
	storeKindMemory   = "memory"
	storeKindPostgres = "postgres"
)

// services are the collaborators shared by serve and explore
type services struct {
	renderer  *render.Client
	rewriter  explore.Rewriter
	store     generation.Store
	storeKind string
	recorder  *metrics.Recorder
}

func newServices(ctx context.Context, cfg *config.Config) (*services, error) {
	svc := &services{
		renderer: render.NewClient(cfg.BackendURL, render.WithTimeout(cfg.RenderTimeout)),
		recorder: metrics.NewRecorder(
			metrics.NewClient(ctx, cfg.CloudWatchEnabled, cfg.CloudWatchNamespace, cfg.Environment),
			metrics.NewSentryMetrics(cfg.SentryDSN != ""),
		),
	}

	store, kind, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	svc.store, svc.storeKind = store, kind

	observability.InitializeLangfuse(ctx, cfg)
	svc.rewriter = newRewriter(ctx, cfg)

	return svc, nil
}

func newStore(cfg *config.Config) (generation.Store, string, error) {
	if cfg.DatabaseURL == "" {
		log.Println("💾 Generation store: in memory (DATABASE_URL not set)")
		return generation.NewMemoryStoreWith(cfg.Explorer.Center), storeKindMemory, nil
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, "", fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("💾 Generation store: postgres")
	return generation.NewGormStore(db), storeKindPostgres, nil
}

// newRewriter returns nil when no provider is usable: the prompt operator
// simply stays off.
func newRewriter(ctx context.Context, cfg *config.Config) explore.Rewriter {
	factory := llm.NewProviderFactory(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.GeminiAPIKey)
	provider, err := factory.GetProvider(ctx, cfg.RewriteModel(), cfg.LLMProvider)
	if err != nil {
		logger.Warn("Prompt rewrite disabled", logger.Fields{
			"provider": cfg.LLMProvider,
			"error":    err.Error(),
		})
		return nil
	}

	loader := prompt.NewPromptLoader()
	if cfg.Explorer.Rewrite.SystemPrompt != "" {
		loader = prompt.NewPromptLoaderWithOverride(cfg.Explorer.Rewrite.SystemPrompt)
	}
	systemPrompt, err := loader.GetRewriteSystemPrompt()
	if err != nil {
		logger.Error("Failed to load rewrite system prompt", err, nil)
		return nil
	}

	return llm.NewVariantPool(provider, llm.PoolConfig{
		Model:             cfg.RewriteModel(),
		SystemPrompt:      systemPrompt,
		Count:             cfg.Explorer.Rewrite.Count,
		RequestsPerSecond: cfg.RewriteRPS,
	})
}
