package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBaseURL        = "http://localhost:5000"
	DefaultStreamPath     = "/ai/stream"
	DefaultModel          = "gemini-2.5-pro"
	DefaultRequestTimeout = 30 * time.Second

	// DefaultSystemPrompt is sent when the caller supplies no system instruction
	DefaultSystemPrompt = "You are a database performance expert and copilot. Help users optimize their database queries, suggest indexes, explain execution plans, and provide best practices for database performance. Be specific, actionable, and include code examples when relevant."
)

// Config holds application configuration
type Config struct {
	Backend   BackendConfig   `mapstructure:"backend"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Cache     CacheConfig     `mapstructure:"cache"`
	DevServer DevServerConfig `mapstructure:"devserver"`

	// Set from flags, not from the config file
	SessionID string `mapstructure:"-"`
	Debug     bool   `mapstructure:"-"`
}

// BackendConfig describes the copilot stream endpoint
type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	StreamPath     string        `mapstructure:"stream_path"`
	Model          string        `mapstructure:"model"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // Dispatch until response headers
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`    // Between body chunks, 0 disables
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Dir            string        `mapstructure:"dir"`
	MetricInterval time.Duration `mapstructure:"metric_interval"`
	SampleRatio    float64       `mapstructure:"sample_ratio"` // Fraction of exchanges traced
}

type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type AuthConfig struct {
	TokenFile string `mapstructure:"token_file"`
}

// CacheConfig controls the in-memory answer cache of the chat REPL's
// one-shot queries. It lives only as long as the REPL process, so the
// ask and optimize commands do not use it.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type DevServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	OpenAIAPIKey   string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL  string        `mapstructure:"openai_base_url"`
	OpenAIModel    string        `mapstructure:"openai_model"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ChunkDelay     time.Duration `mapstructure:"chunk_delay"`
}

// StreamURL returns the absolute URL of the stream endpoint
func (b BackendConfig) StreamURL() string {
	return strings.TrimRight(b.BaseURL, "/") + "/" + strings.TrimLeft(b.StreamPath, "/")
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", DefaultBaseURL)
	v.SetDefault("backend.stream_path", DefaultStreamPath)
	v.SetDefault("backend.model", DefaultModel)
	v.SetDefault("backend.system_prompt", DefaultSystemPrompt)
	v.SetDefault("backend.request_timeout", DefaultRequestTimeout)
	v.SetDefault("backend.idle_timeout", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "logs")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.dir", "logs")
	v.SetDefault("telemetry.metric_interval", 10*time.Second)
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.path", "copilot.db")

	v.SetDefault("auth.token_file", defaultTokenFile())

	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("devserver.addr", ":5000")
	v.SetDefault("devserver.gemini_api_key", "")
	v.SetDefault("devserver.openai_api_key", "")
	v.SetDefault("devserver.openai_base_url", "")
	v.SetDefault("devserver.openai_model", "gpt-4o-mini")
	v.SetDefault("devserver.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("devserver.chunk_delay", 30*time.Millisecond)
}

// Load reads configuration from configPath (optional), COPILOT_* environment
// variables and defaults, in decreasing order of precedence: env, file, defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("COPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.DevServer.GeminiAPIKey == "" {
		cfg.DevServer.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.DevServer.OpenAIAPIKey == "" {
		cfg.DevServer.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, nil
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".copilot", "credentials.json")
	}
	return filepath.Join(home, ".copilot", "credentials.json")
}
