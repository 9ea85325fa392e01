package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigFile is read when no explicit path is given.
const DefaultConfigFile = "exambulldozer.toml"

// Config holds all application configuration
type Config struct {
	LLM      LLMConfig
	Pipeline PipelineConfig
	Schemas  SchemaConfig
	Server   ServerConfig
	Export   ExportConfig
	Log      LogConfig
}

// LLMConfig holds completion-service configuration
type LLMConfig struct {
	Model       string
	APIKeys     map[string]string // provider id -> credential
	BaseURLs    map[string]string // provider id -> endpoint override
	Temperature float32
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	CachePath   string // empty disables the response cache
}

// PipelineConfig holds batching and dispatch configuration
type PipelineConfig struct {
	SafetyMargin   float64
	MaxModelTokens int // 0 means use the model catalog ceiling
	Concurrency    int
	SplitWindow    int
}

// SchemaConfig selects where custom question types live
type SchemaConfig struct {
	Source string // builtin | file | sql
	Path   string
	Driver string // sqlite | pgx
	DSN    string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
	GRPCAddr string
}

// ExportConfig holds export-related configuration
type ExportConfig struct {
	Dir string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// APIKeyFor returns the credential configured for a provider.
func (c LLMConfig) APIKeyFor(provider string) string {
	return c.APIKeys[strings.ToLower(provider)]
}

// BaseURLFor returns the endpoint override configured for a provider.
func (c LLMConfig) BaseURLFor(provider string) string {
	return c.BaseURLs[strings.ToLower(provider)]
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:       "deepseek-chat",
			APIKeys:     map[string]string{},
			BaseURLs:    map[string]string{},
			Temperature: 0.3,
			Timeout:     30 * time.Second,
			MaxRetries:  2,
			RetryDelay:  2 * time.Second,
		},
		Pipeline: PipelineConfig{
			SafetyMargin: 0.15,
			Concurrency:  4,
			SplitWindow:  12,
		},
		Schemas: SchemaConfig{
			Source: "builtin",
			Path:   "schemas.yaml",
			Driver: "sqlite",
		},
		Server: ServerConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":9090",
		},
		Export: ExportConfig{
			Dir: "exports",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// fileConfig mirrors Config in its TOML form; durations are strings like "30s".
type fileConfig struct {
	LLM struct {
		Model       string            `toml:"model"`
		APIKeys     map[string]string `toml:"api_keys"`
		BaseURLs    map[string]string `toml:"base_urls"`
		Temperature *float32          `toml:"temperature"`
		Timeout     string            `toml:"timeout"`
		MaxRetries  *int              `toml:"max_retries"`
		RetryDelay  string            `toml:"retry_delay"`
		CachePath   string            `toml:"cache_path"`
	} `toml:"llm"`
	Pipeline struct {
		SafetyMargin   *float64 `toml:"safety_margin"`
		MaxModelTokens *int     `toml:"max_model_tokens"`
		Concurrency    *int     `toml:"concurrency"`
		SplitWindow    *int     `toml:"split_window"`
	} `toml:"pipeline"`
	Schemas struct {
		Source string `toml:"source"`
		Path   string `toml:"path"`
		Driver string `toml:"driver"`
		DSN    string `toml:"dsn"`
	} `toml:"schemas"`
	Server struct {
		HTTPAddr string `toml:"http_addr"`
		GRPCAddr string `toml:"grpc_addr"`
	} `toml:"server"`
	Export struct {
		Dir string `toml:"dir"`
	} `toml:"export"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// LoadConfig builds configuration from defaults, then the TOML file at path
// (DefaultConfigFile when empty; a missing default file is not an error),
// then environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.applyTOML(data); err != nil {
			return nil, NewConfigError(fmt.Sprintf("parse %s", path), err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, NewConfigError(fmt.Sprintf("read %s", path), err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyTOML(data []byte) error {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return err
	}

	setString(&c.LLM.Model, fc.LLM.Model)
	for k, v := range fc.LLM.APIKeys {
		c.LLM.APIKeys[strings.ToLower(k)] = v
	}
	for k, v := range fc.LLM.BaseURLs {
		c.LLM.BaseURLs[strings.ToLower(k)] = v
	}
	if fc.LLM.Temperature != nil {
		c.LLM.Temperature = *fc.LLM.Temperature
	}
	if err := setDuration(&c.LLM.Timeout, fc.LLM.Timeout); err != nil {
		return fmt.Errorf("llm.timeout: %w", err)
	}
	if fc.LLM.MaxRetries != nil {
		c.LLM.MaxRetries = *fc.LLM.MaxRetries
	}
	if err := setDuration(&c.LLM.RetryDelay, fc.LLM.RetryDelay); err != nil {
		return fmt.Errorf("llm.retry_delay: %w", err)
	}
	setString(&c.LLM.CachePath, fc.LLM.CachePath)

	if fc.Pipeline.SafetyMargin != nil {
		c.Pipeline.SafetyMargin = *fc.Pipeline.SafetyMargin
	}
	if fc.Pipeline.MaxModelTokens != nil {
		c.Pipeline.MaxModelTokens = *fc.Pipeline.MaxModelTokens
	}
	if fc.Pipeline.Concurrency != nil {
		c.Pipeline.Concurrency = *fc.Pipeline.Concurrency
	}
	if fc.Pipeline.SplitWindow != nil {
		c.Pipeline.SplitWindow = *fc.Pipeline.SplitWindow
	}

	setString(&c.Schemas.Source, fc.Schemas.Source)
	setString(&c.Schemas.Path, fc.Schemas.Path)
	setString(&c.Schemas.Driver, fc.Schemas.Driver)
	setString(&c.Schemas.DSN, fc.Schemas.DSN)
	setString(&c.Server.HTTPAddr, fc.Server.HTTPAddr)
	setString(&c.Server.GRPCAddr, fc.Server.GRPCAddr)
	setString(&c.Export.Dir, fc.Export.Dir)
	setString(&c.Log.Level, fc.Log.Level)
	setString(&c.Log.Format, fc.Log.Format)
	return nil
}

// providerKeyEnv lists the environment variable holding each provider's credential.
var providerKeyEnv = map[string]string{
	"deepseek":  "DEEPSEEK_API_KEY",
	"qwen":      "DASHSCOPE_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

func (c *Config) applyEnv() {
	c.LLM.Model = getEnv("EXAM_MODEL", c.LLM.Model)
	for provider, key := range providerKeyEnv {
		if v := os.Getenv(key); v != "" {
			c.LLM.APIKeys[provider] = v
		}
		if v := os.Getenv(strings.ToUpper(provider) + "_BASE_URL"); v != "" {
			c.LLM.BaseURLs[provider] = v
		}
	}
	c.LLM.Temperature = getEnvAsFloat32("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxRetries = getEnvAsInt("LLM_MAX_RETRIES", c.LLM.MaxRetries)
	c.LLM.RetryDelay = getEnvAsDuration("LLM_RETRY_DELAY", c.LLM.RetryDelay)
	c.LLM.CachePath = getEnv("LLM_CACHE_PATH", c.LLM.CachePath)

	c.Pipeline.SafetyMargin = getEnvAsFloat64("PIPELINE_SAFETY_MARGIN", c.Pipeline.SafetyMargin)
	c.Pipeline.MaxModelTokens = getEnvAsInt("PIPELINE_MAX_TOKENS", c.Pipeline.MaxModelTokens)
	c.Pipeline.Concurrency = getEnvAsInt("PIPELINE_CONCURRENCY", c.Pipeline.Concurrency)
	c.Pipeline.SplitWindow = getEnvAsInt("PIPELINE_SPLIT_WINDOW", c.Pipeline.SplitWindow)

	c.Schemas.Source = getEnv("SCHEMA_SOURCE", c.Schemas.Source)
	c.Schemas.Path = getEnv("SCHEMA_PATH", c.Schemas.Path)
	c.Schemas.Driver = getEnv("SCHEMA_DB_DRIVER", c.Schemas.Driver)
	c.Schemas.DSN = getEnv("SCHEMA_DB_DSN", c.Schemas.DSN)

	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Export.Dir = getEnv("EXPORT_DIR", c.Export.Dir)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return NewConfigError("EXAM_MODEL is required", nil)
	}
	if c.LLM.Timeout <= 0 {
		return NewConfigError("LLM_TIMEOUT must be positive", nil)
	}
	if c.LLM.MaxRetries < 0 {
		return NewConfigError("LLM_MAX_RETRIES must not be negative", nil)
	}
	if c.Pipeline.SafetyMargin < 0 || c.Pipeline.SafetyMargin >= 1 {
		return ConfigErrorf("PIPELINE_SAFETY_MARGIN must be in [0, 1), got %g", c.Pipeline.SafetyMargin)
	}
	if c.Pipeline.MaxModelTokens < 0 {
		return NewConfigError("PIPELINE_MAX_TOKENS must not be negative", nil)
	}
	if c.Pipeline.Concurrency <= 0 {
		return NewConfigError("PIPELINE_CONCURRENCY must be positive", nil)
	}
	switch c.Schemas.Source {
	case "builtin":
	case "file":
		if c.Schemas.Path == "" {
			return NewConfigError("SCHEMA_PATH is required for the file schema source", nil)
		}
	case "sql":
		if c.Schemas.DSN == "" {
			return NewConfigError("SCHEMA_DB_DSN is required for the sql schema source", nil)
		}
		if c.Schemas.Driver != "sqlite" && c.Schemas.Driver != "pgx" {
			return ConfigErrorf("SCHEMA_DB_DRIVER must be sqlite or pgx, got %q", c.Schemas.Driver)
		}
	default:
		return ConfigErrorf("SCHEMA_SOURCE must be builtin, file or sql, got %q", c.Schemas.Source)
	}
	return nil
}
