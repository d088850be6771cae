package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider" mapstructure:"provider"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Years     YearsConfig     `yaml:"years" mapstructure:"years"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Rate      RateConfig      `yaml:"rate" mapstructure:"rate"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ProviderConfig selects the vision provider and shared request settings.
type ProviderConfig struct {
	Name        string  `yaml:"name" mapstructure:"name"` // anthropic, openai or gemini
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ClassifyConfig configures page classification.
type ClassifyConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// YearsConfig configures reporting year detection.
type YearsConfig struct {
	ScanPages int      `yaml:"scan_pages" mapstructure:"scan_pages"`
	Fallback  []string `yaml:"fallback" mapstructure:"fallback"`
}

// PipelineConfig configures document processing.
type PipelineConfig struct {
	Concurrency  int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxPages     int `yaml:"max_pages" mapstructure:"max_pages"` // 0 means no limit
	MaxDocuments int `yaml:"max_documents" mapstructure:"max_documents"`
	TimeoutSecs  int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RenderConfig configures PDF page rendering.
type RenderConfig struct {
	PdftoppmPath string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	DPI          int    `yaml:"dpi" mapstructure:"dpi"`
	Format       string `yaml:"format" mapstructure:"format"` // png or jpeg
	WorkDir      string `yaml:"work_dir" mapstructure:"work_dir"`
}

// RetryConfig configures provider call retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
}

// CircuitConfig configures the provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RateConfig configures the provider request rate limit.
type RateConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// CacheConfig configures the page result cache.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled" mapstructure:"enabled"`
	TTLHours int  `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"` // postgres only
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// StorageConfig configures S3 compatible artifact storage. Uploads are
// disabled when Endpoint is empty.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// PricingConfig holds per-provider, per-model token pricing.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelPricing `yaml:"openai" mapstructure:"openai"`
	Gemini    map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FileEnv names an explicit config file. When set the file must exist.
const FileEnv = "STATEMENT_CONFIG_FILE"

// Load reads configuration from .env, config.yaml and the environment, in
// increasing priority.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	explicit := os.Getenv(FileEnv)
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("STATEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || explicit != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Env values for list keys arrive as one comma separated string.
	cfg.Years.Fallback = splitList(strings.Join(cfg.Years.Fallback, ","))

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("provider.max_tokens", 4096)
	v.SetDefault("provider.temperature", 0.0)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("classify.threshold", 50.0)
	v.SetDefault("years.scan_pages", 3)
	v.SetDefault("years.fallback", []string{"2024", "2023"})
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.max_pages", 0)
	v.SetDefault("pipeline.max_documents", 2)
	v.SetDefault("pipeline.timeout_secs", 1800)
	v.SetDefault("render.pdftoppm_path", "pdftoppm")
	v.SetDefault("render.dpi", 150)
	v.SetDefault("render.format", "png")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("rate.requests_per_second", 2.0)
	v.SetDefault("rate.burst", 4)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_hours", 24*30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "statement.db")
	v.SetDefault("storage.bucket", "statements")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pricing.anthropic.claude-sonnet-4-5-20250929.input", 3.0)
	v.SetDefault("pricing.anthropic.claude-sonnet-4-5-20250929.output", 15.0)
	v.SetDefault("pricing.anthropic.claude-sonnet-4-5-20250929.cache_write_mul", 1.25)
	v.SetDefault("pricing.anthropic.claude-sonnet-4-5-20250929.cache_read_mul", 0.1)
	v.SetDefault("pricing.anthropic.claude-haiku-4-5-20251001.input", 1.0)
	v.SetDefault("pricing.anthropic.claude-haiku-4-5-20251001.output", 5.0)
	v.SetDefault("pricing.openai.gpt-4o.input", 2.5)
	v.SetDefault("pricing.openai.gpt-4o.output", 10.0)
	v.SetDefault("pricing.openai.gpt-4o-mini.input", 0.15)
	v.SetDefault("pricing.openai.gpt-4o-mini.output", 0.6)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
