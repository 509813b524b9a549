package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Kakao     KakaoConfig     `yaml:"kakao" mapstructure:"kakao"`
	Naver     NaverConfig     `yaml:"naver" mapstructure:"naver"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// KakaoConfig holds Kakao Local API settings.
type KakaoConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NaverConfig holds Naver Local search API settings.
type NaverConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// AnthropicConfig holds Anthropic API settings for the AI extraction source.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Passes    int    `yaml:"passes" mapstructure:"passes"`
}

// FetchConfig configures the HTTP fetcher used for homepage probes and
// URL fetchability checks.
type FetchConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	HostRate    float64 `yaml:"host_rate" mapstructure:"host_rate"`
	HostBurst   int     `yaml:"host_burst" mapstructure:"host_burst"`
}

// EnrichConfig configures the orchestrator.
type EnrichConfig struct {
	PlanPath            string   `yaml:"plan_path" mapstructure:"plan_path"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	RequiredFields      []string `yaml:"required_fields" mapstructure:"required_fields"`
	ProbeTimeoutSecs    int      `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
	OrgBudgetSecs       int      `yaml:"org_budget_secs" mapstructure:"org_budget_secs"`
}

// RetryConfig tunes the per-class retry policies.
type RetryConfig struct {
	NetworkMaxAttempts   int `yaml:"network_max_attempts" mapstructure:"network_max_attempts"`
	NetworkBaseMs        int `yaml:"network_base_ms" mapstructure:"network_base_ms"`
	RateLimitMaxAttempts int `yaml:"rate_limit_max_attempts" mapstructure:"rate_limit_max_attempts"`
	RateLimitBaseMs      int `yaml:"rate_limit_base_ms" mapstructure:"rate_limit_base_ms"`
}

// CircuitConfig tunes the per-source circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency        int `yaml:"concurrency" mapstructure:"concurrency"`
	CheckpointEvery    int `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
	CheckpointInterval int `yaml:"checkpoint_interval_secs" mapstructure:"checkpoint_interval_secs"`
}

// ServerConfig configures the progress API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enrich.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("kakao.base_url", "https://dapi.kakao.com")
	v.SetDefault("naver.base_url", "https://openapi.naver.com")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.passes", 2)
	v.SetDefault("fetch.user_agent", "enrich-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.host_rate", 2.0)
	v.SetDefault("fetch.host_burst", 4)
	v.SetDefault("enrich.plan_path", "plan.yaml")
	v.SetDefault("enrich.confidence_threshold", 0.7)
	v.SetDefault("enrich.required_fields", []string{"address", "phone", "email", "homepage"})
	v.SetDefault("enrich.probe_timeout_secs", 15)
	v.SetDefault("enrich.org_budget_secs", 90)
	v.SetDefault("retry.network_max_attempts", 3)
	v.SetDefault("retry.network_base_ms", 500)
	v.SetDefault("retry.rate_limit_max_attempts", 5)
	v.SetDefault("retry.rate_limit_base_ms", 2000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.cooldown_secs", 30)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.checkpoint_every", 10)
	v.SetDefault("batch.checkpoint_interval_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
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
