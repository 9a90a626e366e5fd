// Package config loads the sales agent configuration from defaults, an
// optional file and SALES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Params   ParamsConfig   `mapstructure:"params"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Turn     TurnConfig     `mapstructure:"turn"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

type SessionsConfig struct {
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// DynamoDBConfig names the tables. An empty product table serves the built-in
// catalog; an empty snapshot table only logs snapshots.
type DynamoDBConfig struct {
	ProductTable  string `mapstructure:"product_table"`
	SnapshotTable string `mapstructure:"snapshot_table"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Seed     bool          `mapstructure:"seed"`
}

// ParamsConfig locates the API tokens in SSM Parameter Store.
type ParamsConfig struct {
	Prefix string `mapstructure:"prefix"`
}

type LLMConfig struct {
	GeminiAPIKey     string        `mapstructure:"gemini_api_key"`
	OpenRouterAPIKey string        `mapstructure:"openrouter_api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ABTestEnabled    bool          `mapstructure:"ab_test_enabled"`
	DefaultModel     string        `mapstructure:"default_model"`
	ModelA           string        `mapstructure:"model_a"`
	ModelB           string        `mapstructure:"model_b"`
}

type SnapshotConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type TurnConfig struct {
	MaxInputLength int `mapstructure:"max_input_length"`
}

// Load reads configuration from path (optional) with SALES_ environment
// overrides, e.g. SALES_LLM_AB_TEST_ENABLED=true.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.listen", ":5001")
	v.SetDefault("sessions.backend", "memory")
	v.SetDefault("sessions.redis_addr", "localhost:6379")
	v.SetDefault("sessions.ttl", 24*time.Hour)
	v.SetDefault("dynamodb.product_table", "")
	v.SetDefault("dynamodb.snapshot_table", "")
	v.SetDefault("catalog.cache_ttl", 5*time.Minute)
	v.SetDefault("catalog.seed", false)
	v.SetDefault("params.prefix", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.openrouter_api_key", "")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.ab_test_enabled", false)
	v.SetDefault("llm.default_model", "gemini-2.0-flash")
	v.SetDefault("llm.model_a", "deepseek/deepseek-r1-0528:free")
	v.SetDefault("llm.model_b", "microsoft/phi-4-reasoning:free")
	v.SetDefault("snapshot.timeout", 5*time.Second)
	v.SetDefault("turn.max_input_length", 500)

	v.SetEnvPrefix("SALES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config: validating: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate returns every problem found, not just the first.
func (c *Config) Validate() []error {
	var errs []error

	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Sessions.RedisAddr) == "" {
			errs = append(errs, errors.New("config: sessions.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: sessions.backend %q must be memory or redis", c.Sessions.Backend))
	}

	for key, d := range map[string]time.Duration{
		"sessions.ttl":      c.Sessions.TTL,
		"catalog.cache_ttl": c.Catalog.CacheTTL,
		"llm.timeout":       c.LLM.Timeout,
		"snapshot.timeout":  c.Snapshot.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("config: %s must be positive", key))
		}
	}
	if c.Turn.MaxInputLength <= 0 {
		errs = append(errs, errors.New("config: turn.max_input_length must be positive"))
	}
	if c.Catalog.Seed && c.DynamoDB.ProductTable == "" {
		errs = append(errs, errors.New("config: catalog.seed requires dynamodb.product_table"))
	}

	hasParams := strings.TrimSpace(c.Params.Prefix) != ""
	if c.LLM.ABTestEnabled {
		if c.LLM.ModelA == "" || c.LLM.ModelB == "" {
			errs = append(errs, errors.New("config: llm.model_a and llm.model_b are required when the A/B test is enabled"))
		}
		if c.LLM.OpenRouterAPIKey == "" && !hasParams {
			errs = append(errs, errors.New("config: llm.openrouter_api_key or params.prefix is required when the A/B test is enabled"))
		}
	} else {
		if c.LLM.DefaultModel == "" {
			errs = append(errs, errors.New("config: llm.default_model must not be empty"))
		}
		if c.LLM.GeminiAPIKey == "" && !hasParams {
			errs = append(errs, errors.New("config: llm.gemini_api_key or params.prefix is required"))
		}
	}
	return errs
}
