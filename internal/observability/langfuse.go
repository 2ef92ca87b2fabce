package observability

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/config"
	langfuse "github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"
)

// LangfuseClient wraps the Langfuse client with our configuration.
// A disabled client hands out no-op traces, so callers never branch on it.
type LangfuseClient struct {
	client  *langfuse.Langfuse
	enabled bool
	ctx     context.Context
}

var (
	globalMu     sync.RWMutex
	globalClient *LangfuseClient
)

// InitializeLangfuse initializes the global Langfuse client.
// The SDK reads LANGFUSE_PUBLIC_KEY, LANGFUSE_SECRET_KEY and LANGFUSE_HOST itself.
func InitializeLangfuse(ctx context.Context, cfg *config.Config) *LangfuseClient {
	c := &LangfuseClient{enabled: false, ctx: ctx}

	if !cfg.LangfuseEnabled || cfg.LangfuseSecretKey == "" {
		log.Println("⚠️  Langfuse not configured (LANGFUSE_ENABLED=false or LANGFUSE_SECRET_KEY not set)")
	} else {
		c.client = langfuse.New(ctx)
		c.enabled = true
		log.Printf("✅ Langfuse initialized (host: %s)", cfg.LangfuseHost)
	}

	globalMu.Lock()
	globalClient = c
	globalMu.Unlock()
	return c
}

// GetClient returns the global Langfuse client
func GetClient() *LangfuseClient {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalClient == nil {
		return &LangfuseClient{enabled: false, ctx: context.Background()}
	}
	return globalClient
}

// IsEnabled returns whether Langfuse is enabled
func (c *LangfuseClient) IsEnabled() bool {
	return c.enabled && c.client != nil
}

// StartTrace starts a new trace in Langfuse
func (c *LangfuseClient) StartTrace(ctx context.Context, name string, metadata map[string]interface{}) *Trace {
	if !c.IsEnabled() {
		return &Trace{enabled: false, ctx: ctx}
	}

	trace, err := c.client.Trace(&model.Trace{
		Name:     name,
		Metadata: metadata,
	})
	if err != nil {
		log.Printf("⚠️  Failed to create Langfuse trace: %v", err)
		return &Trace{enabled: false, ctx: ctx}
	}

	return &Trace{
		trace:   trace,
		enabled: true,
		ctx:     ctx,
		client:  c.client,
	}
}

// Trace represents a Langfuse trace
type Trace struct {
	trace   *model.Trace
	enabled bool
	ctx     context.Context
	client  *langfuse.Langfuse
}

// Enabled reports whether the trace is actually sent anywhere
func (t *Trace) Enabled() bool {
	return t.enabled
}

// Generation creates a new generation span within the trace
func (t *Trace) Generation(name string, metadata map[string]interface{}) *Generation {
	if !t.enabled {
		return &Generation{enabled: false}
	}

	now := time.Now()
	gen, err := t.client.Generation(&model.Generation{
		TraceID:   t.trace.ID,
		Name:      name,
		StartTime: &now,
		Metadata:  metadata,
	}, nil)
	if err != nil {
		log.Printf("⚠️  Failed to create Langfuse generation: %v", err)
		return &Generation{enabled: false}
	}

	return &Generation{
		generation: gen,
		enabled:    true,
		client:     t.client,
	}
}

// Finish flushes the trace. The SDK batches events, Flush waits for the queue.
func (t *Trace) Finish() {
	if t.enabled && t.client != nil {
		t.client.Flush(t.ctx)
	}
}

// Generation represents a Langfuse generation span
type Generation struct {
	mu         sync.Mutex
	generation *model.Generation
	enabled    bool
	client     *langfuse.Langfuse
}

// LogRewrite records one prompt rewrite call: the prompt sent, the text
// returned and the token counts the provider reported.
func (g *Generation) LogRewrite(modelName, input, output string, inputTokens, outputTokens int) {
	if !g.enabled {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.generation.Input = input
	if output != "" {
		g.generation.Output = output
	}
	g.generation.Model = modelName
	g.generation.Usage = model.Usage{
		Input:  inputTokens,
		Output: outputTokens,
		Total:  inputTokens + outputTokens,
		Unit:   model.ModelUsageUnitTokens,
	}
}

// SetLevel sets the level of the generation, e.g. "ERROR" for a failed rewrite
func (g *Generation) SetLevel(level string) {
	if !g.enabled {
		return
	}
	g.mu.Lock()
	g.generation.Level = model.ObservationLevel(level)
	g.mu.Unlock()
}

// Finish completes the generation and queues it for sending
func (g *Generation) Finish() {
	if !g.enabled || g.client == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	g.generation.EndTime = &now
	if _, err := g.client.GenerationEnd(g.generation); err != nil {
		log.Printf("⚠️  Failed to end Langfuse generation: %v", err)
	}
}
