package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the WorkHuntr server and CLI.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Search    SearchConfig
	Pipeline  PipelineConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
	CORSOrigins       []string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

// SearchConfig selects and configures the web-search provider. Credentials are
// not validated here; a missing credential aborts each discovery run instead.
type SearchConfig struct {
	Provider      string
	GoogleAPIKey  string
	GoogleCSEID   string
	GoogleBaseURL string
	SerpAPIKey    string
	SerpAPIURL    string
	DirectURL     string
	Timeout       time.Duration
	MinInterval   time.Duration
	CacheTTL      time.Duration
}

type PipelineConfig struct {
	RunTimeout        time.Duration
	EnrichBatchSize   int
	EnrichMaxAttempts int
	ScoreBatchSize    int
	ResumeMaxBytes    int
	ExcludeKeywords   []string
}

type SchedulerConfig struct {
	Enabled     bool
	Interval    time.Duration
	Concurrency int
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

var validSearchProviders = map[string]bool{
	"google":  true,
	"serpapi": true,
	"direct":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := load()
	if err := cfg.validate(true); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal is Load for the CLI's local mode, where Postgres and Redis are
// not used and therefore not required.
func LoadLocal() (*Config, error) {
	cfg := load()
	if err := cfg.validate(false); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              envInt("WORKHUNTR_PORT", 8080),
			Env:               envString("WORKHUNTR_ENV", "development"),
			RequestsPerMinute: envInt("WORKHUNTR_REQUESTS_PER_MINUTE", 60),
			CORSOrigins:       envList("WORKHUNTR_CORS_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
				APIKey:  os.Getenv("VLLM_API_KEY"),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Search: SearchConfig{
			Provider:      envString("SEARCH_PROVIDER", "google"),
			GoogleAPIKey:  os.Getenv("GOOGLE_API_KEY"),
			GoogleCSEID:   os.Getenv("GOOGLE_CSE_ID"),
			GoogleBaseURL: envString("GOOGLE_CSE_URL", "https://www.googleapis.com/customsearch/v1"),
			SerpAPIKey:    os.Getenv("SERPAPI_KEY"),
			SerpAPIURL:    envString("SERPAPI_URL", "https://serpapi.com/search.json"),
			DirectURL:     envString("SEARCH_DIRECT_URL", "https://www.google.com/search"),
			Timeout:       envDuration("SEARCH_TIMEOUT", 15*time.Second),
			MinInterval:   envDuration("SEARCH_MIN_INTERVAL", 500*time.Millisecond),
			CacheTTL:      envDuration("SEARCH_CACHE_TTL", 6*time.Hour),
		},
		Pipeline: PipelineConfig{
			RunTimeout:        envDuration("RUN_TIMEOUT", 10*time.Minute),
			EnrichBatchSize:   envInt("ENRICH_BATCH_SIZE", 20),
			EnrichMaxAttempts: envInt("ENRICH_MAX_ATTEMPTS", 3),
			ScoreBatchSize:    envInt("SCORE_BATCH_SIZE", 25),
			ResumeMaxBytes:    envInt("RESUME_MAX_BYTES", 4000),
			ExcludeKeywords:   envList("EXCLUDE_KEYWORDS"),
		},
		Scheduler: SchedulerConfig{
			Enabled:     envBool("SCHEDULER_ENABLED", false),
			Interval:    envDuration("SCHEDULER_INTERVAL", 6*time.Hour),
			Concurrency: envInt("SWEEP_CONCURRENCY", 2),
		},
	}
}

func (c *Config) validate(requireServices bool) error {
	if requireServices {
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required")
		}
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}

	if !validSearchProviders[c.Search.Provider] {
		return fmt.Errorf("SEARCH_PROVIDER must be one of google, serpapi, direct; got %q", c.Search.Provider)
	}
	for name, u := range map[string]string{
		"GOOGLE_CSE_URL":    c.Search.GoogleBaseURL,
		"SERPAPI_URL":       c.Search.SerpAPIURL,
		"SEARCH_DIRECT_URL": c.Search.DirectURL,
	} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, u)
		}
	}

	if c.Pipeline.EnrichBatchSize < 1 || c.Pipeline.EnrichBatchSize > 20 {
		return fmt.Errorf("ENRICH_BATCH_SIZE must be between 1 and 20, got %d", c.Pipeline.EnrichBatchSize)
	}
	if c.Pipeline.EnrichMaxAttempts < 1 {
		return fmt.Errorf("ENRICH_MAX_ATTEMPTS must be at least 1, got %d", c.Pipeline.EnrichMaxAttempts)
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be at least 1, got %d", c.Scheduler.Concurrency)
	}

	return nil
}

// HasCredentials reports whether the selected search provider has the
// credentials it needs.
func (c SearchConfig) HasCredentials() bool {
	switch c.Provider {
	case "google":
		return c.GoogleAPIKey != "" && c.GoogleCSEID != ""
	case "serpapi":
		return c.SerpAPIKey != ""
	default:
		return true
	}
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// envList splits a comma-separated variable, dropping blank entries.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
