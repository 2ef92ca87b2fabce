package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	defaultBackendURL    = "http://127.0.0.1:8080"
	defaultRenderTimeout = 5 * time.Minute
	defaultMaxSessions   = 64
	defaultRewriteRPS    = 4.0
)

// Config holds the application configuration
type Config struct {
	// Environment
	Environment string
	Port        string

	// Diffusion backend
	BackendURL    string
	RenderTimeout time.Duration // network-level timeout per render, 0 disables it

	// Prompt rewrite LLM
	// - "openai": any OpenAI-compatible server at LLMBaseURL (the backend by default)
	// - "gemini": Google Gemini with GeminiAPIKey
	LLMProvider  string
	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string
	GeminiAPIKey string
	GeminiModel  string
	RewriteRPS   float64

	// Observability
	SentryDSN           string // Sentry DSN for error tracking
	LangfusePublicKey   string // Langfuse public key
	LangfuseSecretKey   string // Langfuse secret key
	LangfuseHost        string // Langfuse host URL (cloud or self-hosted)
	LangfuseEnabled     bool   // Feature flag for Langfuse
	CloudWatchEnabled   bool
	CloudWatchNamespace string

	// Auth mode
	// - "none": No auth (self-hosted, local dev)
	// - "gateway": Trust X-User-* headers from an upstream gateway
	// - "jwt": Bearer tokens signed with JWTSecret
	AuthMode  string
	JWTSecret string

	// Persistence, empty keeps generation settings in memory
	DatabaseURL string

	// Sessions
	MaxSessions int

	// Explorer defaults, from the optional EXPLORER_CONFIG yaml file
	ConfigFile string
	Explorer   ExplorerConfig
}

// ExplorerConfig is the yaml file layout. Every key is optional.
type ExplorerConfig struct {
	BackendURL  string              `yaml:"backend_url"`
	MaxSessions int                 `yaml:"max_sessions"`
	Center      models.ParameterSet `yaml:"center"`
	Locks       models.LockSet      `yaml:"locks"`
	Rewrite     RewriteConfig       `yaml:"rewrite"`
}

// RewriteConfig tunes the prompt variant pool
type RewriteConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	Count        int    `yaml:"count"`
}

// DefaultExplorerConfig mirrors the web UI's initial state
func DefaultExplorerConfig() ExplorerConfig {
	return ExplorerConfig{
		Center: models.DefaultParameterSet(),
		Locks:  models.DefaultLockSet(),
	}
}

// LoadFile reads an explorer yaml file. Keys missing from the file keep their defaults.
func LoadFile(path string) (ExplorerConfig, error) {
	ec := DefaultExplorerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return ec, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &ec); err != nil {
		return ec, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	ec.Center.Sampler = models.NormalizeSampler(ec.Center.Sampler)
	return ec, nil
}

func Load() *Config {
	explorer := DefaultExplorerConfig()
	configFile := getEnv("EXPLORER_CONFIG", "")
	if configFile != "" {
		fromFile, err := LoadFile(configFile)
		if err != nil {
			log.Printf("⚠️  Ignoring explorer config: %v", err)
		} else {
			explorer = fromFile
		}
	}

	backendURL := getEnv("BACKEND_URL", orDefault(explorer.BackendURL, defaultBackendURL))
	maxSessions := defaultMaxSessions
	if explorer.MaxSessions > 0 {
		maxSessions = explorer.MaxSessions
	}

	return &Config{
		Environment:         getEnv("ENVIRONMENT", "development"),
		Port:                getEnv("PORT", "8090"),
		BackendURL:          strings.TrimSuffix(backendURL, "/"),
		RenderTimeout:       getDuration("RENDER_TIMEOUT", defaultRenderTimeout),
		LLMProvider:         getEnv("LLM_PROVIDER", "openai"),
		LLMBaseURL:          getEnv("LLM_BASE_URL", strings.TrimSuffix(backendURL, "/")+"/v1"),
		LLMAPIKey:           getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", "")),
		LLMModel:            getEnv("LLM_MODEL", "local"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		RewriteRPS:          getFloat("REWRITE_RPS", defaultRewriteRPS),
		SentryDSN:           getEnv("SENTRY_DSN", ""),
		LangfusePublicKey:   getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey:   getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:        getEnv("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		LangfuseEnabled:     getEnv("LANGFUSE_ENABLED", "false") == "true",
		CloudWatchEnabled:   getEnv("CLOUDWATCH_ENABLED", "false") == "true",
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "VariationExplorer"),
		AuthMode:            getEnv("AUTH_MODE", "none"), // Default to no auth for local use
		JWTSecret:           getEnv("JWT_SECRET", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		MaxSessions:         getInt("MAX_SESSIONS", maxSessions),
		ConfigFile:          configFile,
		Explorer:            explorer,
	}
}

// RewriteModel returns the model name for the configured provider
func (c *Config) RewriteModel() string {
	if strings.EqualFold(c.LLMProvider, "gemini") {
		return c.GeminiModel
	}
	return c.LLMModel
}

// IsGatewayMode returns true if running behind an auth gateway
func (c *Config) IsGatewayMode() bool {
	return c.AuthMode == "gateway"
}

// IsJWTMode returns true if bearer tokens are required
func (c *Config) IsJWTMode() bool {
	return c.AuthMode == "jwt"
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		log.Printf("⚠️  Invalid %s=%q, using %v", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		log.Printf("⚠️  Invalid %s=%q, using %v", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
