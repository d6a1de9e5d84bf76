// Package config loads and validates Charlotte's configuration.
//
// Configuration is read from a YAML or JSON5 file. Files may pull in other
// files (or globs of files) with a top-level $include key, and ${VAR} or
// ${VAR:-default} references in values are expanded from the environment.
// Every recognized option has a default, so an empty file (or no file at
// all) yields a usable Config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults mirrored by the CLI help text.
const (
	DefaultChatModel      = "gpt-3.5-turbo"
	DefaultEmbeddingModel = "text-embedding-ada-002"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultGeminiModel    = "text-embedding-004"
	DefaultDimension      = 1536
	DefaultHistoryLength  = 20
	DefaultRecursionLimit = 3
	DefaultRetrievalLimit = 10
	DefaultRequestTimeout = 60 * time.Second
	DefaultSandboxTimeout = 10 * time.Second
	DefaultUserName       = "User"
	DefaultStoragePath    = "charlotte.db"
	DefaultFlushSchedule  = "@every 1m"
	DefaultServerHost     = "127.0.0.1"
	DefaultServerPort     = 8420
	DefaultServiceName    = "charlotte"
	DefaultHTTPTimeout    = 30 * time.Second
)

// DefaultFillers are the stalling phrases that do not end a chat turn.
var DefaultFillers = []string{
	"just a moment",
	"hold on for a second",
	"give me a moment",
	"let me check",
	"let me take a quick look",
	"我来查看一下文档",
}

// Config is the root configuration.
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Storage       StorageConfig       `yaml:"storage"`
	Chat          ChatConfig          `yaml:"chat"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	Sources       SourcesConfig       `yaml:"sources"`
}

// LLMConfig selects and configures the language-model backend.
type LLMConfig struct {
	// Provider is the chat backend: "openai" (any OpenAI-compatible
	// endpoint) or "anthropic".
	Provider string `yaml:"provider"`

	// Endpoint is the OpenAI-compatible base URL.
	Endpoint string `yaml:"endpoint"`

	// APIKey may be a literal, "env:NAME" or "keyring:NAME".
	APIKey string `yaml:"api_key"`

	ChatModel       string `yaml:"chat_model"`
	CompletionModel string `yaml:"completion_model"`
	MaxTokens       int    `yaml:"max_tokens"`

	Anthropic AnthropicConfig `yaml:"anthropic"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	// Provider is "openai" or "gemini".
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
}

// StorageConfig configures the text index and vector store.
type StorageConfig struct {
	// Path is the SQLite database file holding the text index, the
	// sqlite vector backend and session snapshots.
	Path   string       `yaml:"path"`
	Vector VectorConfig `yaml:"vector"`
}

type VectorConfig struct {
	// Backend is "sqlite" or "pgvector".
	Backend  string `yaml:"backend"`
	DSN      string `yaml:"dsn"`
	Quantize bool   `yaml:"quantize"`
}

// ChatConfig tunes the chat turn. It is reloadable at runtime.
type ChatConfig struct {
	UserName       string        `yaml:"user_name"`
	HistoryLength  int           `yaml:"history_length"`
	RecursionLimit int           `yaml:"recursion_limit"`
	RetrievalLimit int           `yaml:"retrieval_limit"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Timezone       string        `yaml:"timezone"`
	Fillers        []string      `yaml:"fillers"`
}

type SandboxConfig struct {
	Timeout time.Duration `yaml:"timeout"`

	// Packages extends the default importable standard-library set.
	Packages []string `yaml:"packages"`
}

type SessionsConfig struct {
	Persist       bool   `yaml:"persist"`
	FlushSchedule string `yaml:"flush_schedule"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type ObservabilityConfig struct {
	Metrics bool          `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// SourcesConfig configures raw-document fetchers.
type SourcesConfig struct {
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	S3          S3Config      `yaml:"s3"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, decodes, defaults and validates the configuration at path.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := Default()
		if err := cfg.resolveSecrets(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	loadDotEnv(path)
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.ChatModel == "" {
		cfg.LLM.ChatModel = DefaultChatModel
	}
	if cfg.LLM.CompletionModel == "" {
		cfg.LLM.CompletionModel = cfg.LLM.ChatModel
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Anthropic.Model == "" {
		cfg.LLM.Anthropic.Model = DefaultAnthropicModel
	}
	if cfg.LLM.Embedding.Provider == "" {
		cfg.LLM.Embedding.Provider = "openai"
	}
	if cfg.LLM.Embedding.Model == "" {
		if cfg.LLM.Embedding.Provider == "gemini" {
			cfg.LLM.Embedding.Model = DefaultGeminiModel
		} else {
			cfg.LLM.Embedding.Model = DefaultEmbeddingModel
		}
	}
	if cfg.LLM.Embedding.Dimension == 0 {
		cfg.LLM.Embedding.Dimension = DefaultDimension
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.Vector.Backend == "" {
		cfg.Storage.Vector.Backend = "sqlite"
	}
	applyChatDefaults(&cfg.Chat)
	if cfg.Sandbox.Timeout == 0 {
		cfg.Sandbox.Timeout = DefaultSandboxTimeout
	}
	if cfg.Sessions.FlushSchedule == "" {
		cfg.Sessions.FlushSchedule = DefaultFlushSchedule
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1.0
	}
	if cfg.Sources.HTTPTimeout == 0 {
		cfg.Sources.HTTPTimeout = DefaultHTTPTimeout
	}
}

func applyChatDefaults(chat *ChatConfig) {
	if chat.UserName == "" {
		chat.UserName = DefaultUserName
	}
	if chat.HistoryLength == 0 {
		chat.HistoryLength = DefaultHistoryLength
	}
	if chat.RecursionLimit == 0 {
		chat.RecursionLimit = DefaultRecursionLimit
	}
	if chat.RetrievalLimit == 0 {
		chat.RetrievalLimit = DefaultRetrievalLimit
	}
	if chat.RequestTimeout == 0 {
		chat.RequestTimeout = DefaultRequestTimeout
	}
	if chat.Fillers == nil {
		chat.Fillers = append([]string(nil), DefaultFillers...)
	}
}

// Validate reports every invalid option at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be \"openai\" or \"anthropic\", got %q", c.LLM.Provider))
	}
	switch c.LLM.Embedding.Provider {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("llm.embedding.provider must be \"openai\" or \"gemini\", got %q", c.LLM.Embedding.Provider))
	}
	if c.LLM.Embedding.Dimension < 0 {
		errs = append(errs, errors.New("llm.embedding.dimension must be positive"))
	}
	switch c.Storage.Vector.Backend {
	case "sqlite":
	case "pgvector":
		if strings.TrimSpace(c.Storage.Vector.DSN) == "" {
			errs = append(errs, errors.New("storage.vector.dsn is required for the pgvector backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.vector.backend must be \"sqlite\" or \"pgvector\", got %q", c.Storage.Vector.Backend))
	}
	if c.Chat.HistoryLength < 2 {
		errs = append(errs, errors.New("chat.history_length must be at least 2"))
	}
	if c.Chat.RecursionLimit < 0 {
		errs = append(errs, errors.New("chat.recursion_limit must not be negative"))
	}
	if c.Chat.RetrievalLimit < 1 {
		errs = append(errs, errors.New("chat.retrieval_limit must be at least 1"))
	}
	for i, f := range c.Chat.Fillers {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, fmt.Errorf("chat.fillers[%d] is blank", i))
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", c.Logging.Format))
	}
	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing.sampling_rate must be within [0,1], got %v", r))
	}
	return errors.Join(errs...)
}
