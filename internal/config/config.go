// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.serapeum/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive values (passwords, API keys) are masked in MarshalJSON and
// String; validation uses sentinel errors checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidDimension indicates the embedding dimension is not positive.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates the chunk window/overlap geometry is invalid.
	ErrInvalidChunking = errors.New("invalid chunk geometry")

	// ErrNoEmbeddingBackends indicates no embedding backend is configured.
	ErrNoEmbeddingBackends = errors.New("no embedding backends configured")

	// ErrInvalidProvider indicates the generation provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidServerPort indicates the HTTP listen port is out of range.
	ErrInvalidServerPort = errors.New("invalid server port")
)

// Generation provider identifiers used in Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// EmbeddingBackend is one OpenAI-compatible embedding endpoint. Backends
// are tried in declaration order during ingestion and query embedding.
type EmbeddingBackend struct {
	Name    string `mapstructure:"name" json:"name"`
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	Model   string `mapstructure:"model" json:"model"`
}

// Config stores application configuration.
type Config struct {
	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// HTTP server
	ServerPort int  `mapstructure:"server_port" json:"server_port"`
	TrustProxy bool `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst  int  `mapstructure:"rate_burst" json:"rate_burst"`

	// PostgreSQL / pgvector
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Neo4j (optional capability)
	Neo4jURI      string `mapstructure:"neo4j_uri" json:"neo4j_uri"`
	Neo4jUser     string `mapstructure:"neo4j_user" json:"neo4j_user"`
	Neo4jPassword string `mapstructure:"neo4j_password" json:"neo4j_password"` // SENSITIVE: masked in MarshalJSON

	// Dedup ledger (SQLite)
	LedgerPath string `mapstructure:"ledger_path" json:"ledger_path"`

	// Knowledge processor (optional capability). Empty command disables it.
	KnowledgeCommand string   `mapstructure:"knowledge_command" json:"knowledge_command"`
	KnowledgeArgs    []string `mapstructure:"knowledge_args" json:"knowledge_args"`

	// Embedding
	EmbeddingBackends []EmbeddingBackend `mapstructure:"embedding_backends" json:"embedding_backends"`
	EmbedDimension    int                `mapstructure:"embed_dimension" json:"embed_dimension"`

	// Generation
	Provider        string  `mapstructure:"provider" json:"provider"` // "openai" or "gemini"
	CompletionModel string  `mapstructure:"completion_model" json:"completion_model"`
	GenerationURL   string  `mapstructure:"generation_url" json:"generation_url"` // OpenAI-compatible base URL
	Temperature     float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens" json:"max_tokens"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON
	GeminiAPIKey    string  `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON

	// Chunking (runes)
	ChunkWindow  int `mapstructure:"chunk_window" json:"chunk_window"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Per-backend call timeout in seconds
	BackendTimeout int `mapstructure:"backend_timeout" json:"backend_timeout"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".serapeum")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", true)

	v.SetDefault("server_port", 8080)
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 60)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "serapeum")
	v.SetDefault("postgres_password", "serapeum_dev_password")
	v.SetDefault("postgres_db_name", "serapeum")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("neo4j_uri", "bolt://localhost:7687")
	v.SetDefault("neo4j_user", "neo4j")
	v.SetDefault("neo4j_password", "")

	v.SetDefault("ledger_path", filepath.Join(".", "serapeum-ledger.db"))

	v.SetDefault("knowledge_command", "")
	v.SetDefault("knowledge_args", []string{})

	v.SetDefault("embedding_backends", []map[string]any{
		{"name": "lmstudio", "base_url": "http://localhost:1234/v1", "model": "text-embedding-nomic-embed-text-v1.5"},
		{"name": "ollama", "base_url": "http://localhost:11434/v1", "model": "nomic-embed-text"},
	})
	v.SetDefault("embed_dimension", 768)

	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("completion_model", "qwen2.5-7b-instruct")
	v.SetDefault("generation_url", "http://localhost:1234/v1")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 2048)

	v.SetDefault("chunk_window", 512)
	v.SetDefault("chunk_overlap", 100)

	v.SetDefault("backend_timeout", 30)
}

// bindEnvVariables binds environment overrides explicitly. Hardcoded
// keys cannot fail to bind; a panic here is a bug.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("log_level", "SERAPEUM_LOG_LEVEL")
	mustBind("server_port", "SERAPEUM_PORT")
	mustBind("trust_proxy", "SERAPEUM_TRUST_PROXY")

	mustBind("neo4j_uri", "NEO4J_URI")
	mustBind("neo4j_user", "NEO4J_USERNAME")
	mustBind("neo4j_password", "NEO4J_PASSWORD")

	mustBind("ledger_path", "SERAPEUM_LEDGER_PATH")
	mustBind("knowledge_command", "SERAPEUM_KNOWLEDGE_COMMAND")

	mustBind("provider", "SERAPEUM_PROVIDER")
	mustBind("completion_model", "SERAPEUM_COMPLETION_MODEL")
	mustBind("generation_url", "SERAPEUM_GENERATION_URL")

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("gemini_api_key", "GEMINI_API_KEY")
}

// Validate fails fast on invalid configuration.
func (c *Config) Validate() error {
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidServerPort, c.ServerPort)
	}
	if c.EmbedDimension <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, c.EmbedDimension)
	}
	if c.ChunkWindow <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkWindow {
		return fmt.Errorf("%w: window=%d overlap=%d", ErrInvalidChunking, c.ChunkWindow, c.ChunkOverlap)
	}
	if len(c.EmbeddingBackends) == 0 {
		return ErrNoEmbeddingBackends
	}
	switch c.Provider {
	case ProviderOpenAI:
		// Local OpenAI-compatible servers accept any key; no key check.
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY required for gemini provider", ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked to prevent substring matching; longer ones keep two characters
// on each side for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.Neo4jPassword = maskSecret(a.Neo4jPassword)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
