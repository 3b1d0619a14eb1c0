package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the ragjenkins server and CLI.
type Config struct {
	Port      int
	Version   string
	LogLevel  string
	OpenAI    OpenAIConfig
	Ollama    OllamaConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Chunker   ChunkerConfig
	Archive   ArchiveConfig
	Jenkins   JenkinsConfig
	Agent     AgentConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Notify    NotifyConfig
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	Temperature float64
}

type OllamaConfig struct {
	// URL enables Ollama as a fallback chat provider when set.
	URL       string
	ChatModel string
}

type EmbeddingConfig struct {
	Provider string // "openai" or "ollama"
	Model    string
}

type VectorConfig struct {
	Store       string // "bolt", "memory" or "pgvector"
	Path        string
	PgvectorURL string
}

type ChunkerConfig struct {
	ChunkSize    int
	OverlapLines int
	BatchSize    int
}

type ArchiveConfig struct {
	ScratchDir           string
	MaxUploadBytes       int64
	MaxEntries           int
	MaxUncompressedBytes int64
	ScratchMaxAge        time.Duration
}

type JenkinsConfig struct {
	URL           string
	Username      string
	APIToken      string
	MaxConsole    int
	TemplatesFile string
	DefaultJob    string
	Timeout       time.Duration
}

// Enabled reports whether all Jenkins credentials are present.
func (j JenkinsConfig) Enabled() bool {
	return j.URL != "" && j.Username != "" && j.APIToken != ""
}

type AgentConfig struct {
	MaxIterations    int
	StatusRetries    int
	StatusRetryDelay time.Duration
	SearchTopK       int
	RunsPerMinute    int
	RunBurst         int
}

type TelemetryConfig struct {
	Enabled        bool
	OTLPEndpoint   string
	ServiceName    string
	MetricsEnabled bool
}

type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string
}

type AuthConfig struct {
	// APIKeys enables API key auth on /api/* when non-empty.
	APIKeys []string
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that overwrites those headers.
	TrustProxy bool
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     envInt("PORT", 8501),
		Version:  envStr("RAGJENKINS_VERSION", "0.1.0"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		OpenAI: OpenAIConfig{
			APIKey:      envStr("OPENAI_API_KEY", ""),
			BaseURL:     strings.TrimRight(envStr("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
			ChatModel:   envStr("LLM_MODEL", "gpt-4o-mini"),
			Temperature: envFloat("LLM_TEMPERATURE", 0.1),
		},
		Ollama: OllamaConfig{
			URL:       envStr("OLLAMA_URL", ""),
			ChatModel: envStr("OLLAMA_MODEL", "llama3.1"),
		},
		Embedding: EmbeddingConfig{
			Provider: envStr("EMBEDDING_PROVIDER", "openai"),
			Model:    envStr("EMBEDDING_MODEL", ""),
		},
		Vector: VectorConfig{
			Store:       envStr("VECTOR_STORE", "bolt"),
			Path:        envStr("VECTOR_STORE_PATH", "data/index.db"),
			PgvectorURL: envStr("PGVECTOR_URL", ""),
		},
		Chunker: ChunkerConfig{
			ChunkSize:    envInt("CHUNK_SIZE", 1000),
			OverlapLines: envInt("CHUNK_OVERLAP_LINES", 1),
			BatchSize:    envInt("INGEST_BATCH_SIZE", 64),
		},
		Archive: ArchiveConfig{
			ScratchDir:           envStr("SCRATCH_DIR", ""),
			MaxUploadBytes:       int64(envInt("MAX_UPLOAD_MB", 200)) << 20,
			MaxEntries:           envInt("ARCHIVE_MAX_ENTRIES", 20000),
			MaxUncompressedBytes: int64(envInt("ARCHIVE_MAX_UNCOMPRESSED_MB", 1024)) << 20,
			ScratchMaxAge:        envDuration("SCRATCH_MAX_AGE", time.Hour),
		},
		Jenkins: JenkinsConfig{
			URL:           strings.TrimRight(envStr("JENKINS_URL", "http://localhost:8080"), "/"),
			Username:      envStr("JENKINS_USERNAME", ""),
			APIToken:      envStr("JENKINS_API_TOKEN", ""),
			MaxConsole:    envInt("JENKINS_MAX_CONSOLE", 2000),
			TemplatesFile: envStr("JENKINS_TEMPLATES_FILE", ""),
			DefaultJob:    envStr("JENKINS_DEFAULT_JOB", "rag-agent-job"),
			Timeout:       envDuration("JENKINS_TIMEOUT", 30*time.Second),
		},
		Agent: AgentConfig{
			MaxIterations:    envInt("AGENT_MAX_ITERATIONS", 12),
			StatusRetries:    envInt("AGENT_STATUS_RETRIES", 3),
			StatusRetryDelay: envDuration("AGENT_STATUS_RETRY_DELAY", 2*time.Second),
			SearchTopK:       envInt("AGENT_SEARCH_TOP_K", 5),
			RunsPerMinute:    envInt("AGENT_RUNS_PER_MINUTE", 10),
			RunBurst:         envInt("AGENT_RUN_BURST", 3),
		},
		Telemetry: TelemetryConfig{
			Enabled:        envBool("OTEL_ENABLED", false),
			OTLPEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:    envStr("OTEL_SERVICE_NAME", "ragjenkins"),
			MetricsEnabled: envBool("METRICS_ENABLED", true),
		},
		Notify: NotifyConfig{
			WebhookURL:    envStr("NOTIFY_WEBHOOK_URL", ""),
			WebhookSecret: envStr("NOTIFY_WEBHOOK_SECRET", ""),
		},
		Auth: AuthConfig{
			APIKeys:    envList("RAGJENKINS_API_KEYS"),
			TrustProxy: envBool("TRUST_PROXY_HEADERS", false),
		},
	}
}

// Validate reports configuration that makes the server unusable.
func (c *Config) Validate() error {
	var errs []error
	// A fully local setup needs Ollama for both embeddings and chat.
	local := c.Embedding.Provider == "ollama" && c.Ollama.URL != ""
	if c.OpenAI.APIKey == "" && !local {
		errs = append(errs, errors.New("OPENAI_API_KEY is required unless EMBEDDING_PROVIDER=ollama and OLLAMA_URL are set"))
	}
	switch c.Vector.Store {
	case "bolt", "memory":
	case "pgvector":
		if c.Vector.PgvectorURL == "" {
			errs = append(errs, errors.New("PGVECTOR_URL is required when VECTOR_STORE=pgvector"))
		}
	default:
		errs = append(errs, errors.New("VECTOR_STORE must be one of bolt, memory, pgvector"))
	}
	if c.Chunker.ChunkSize <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE must be positive"))
	}
	if c.Jenkins.MaxConsole < 0 {
		errs = append(errs, errors.New("JENKINS_MAX_CONSOLE must be zero (no limit) or positive"))
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, errors.New("AGENT_MAX_ITERATIONS must be positive"))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
