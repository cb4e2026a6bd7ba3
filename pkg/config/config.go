package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	xutil "FuturesCast/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"2m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"1"`
			Burst int     `yaml:"burst" default:"5"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool `yaml:"enabled" default:"true"`
	} `yaml:"metrics"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Quotes struct {
		Source string `yaml:"source" default:"http"` // http, clickhouse or failover
		HTTP   struct {
			BaseURL         string        `yaml:"base_url"`
			APIKey          string        `yaml:"api_key"`
			APIKeyHeader    string        `yaml:"api_key_header" default:"X-API-Key"`
			QuotePath       string        `yaml:"quote_path" default:"/v1/futures/quotes"`
			Timeout         time.Duration `yaml:"timeout" default:"10s"`
			RateLimit       float64       `yaml:"rate_limit" default:"5"`
			Burst           int           `yaml:"burst" default:"10"`
			BreakerFailures uint32        `yaml:"breaker_failures" default:"5"`
			BreakerCooldown time.Duration `yaml:"breaker_cooldown" default:"30s"`
		} `yaml:"http"`
	} `yaml:"quotes"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"futurescast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		QuoteTable       string        `yaml:"quote_table" default:"futures_quotes"`
	} `yaml:"clickhouse"`
	OpenAI struct {
		APIKey          string        `yaml:"api_key"`
		BaseURL         string        `yaml:"base_url"`
		RiskModel       string        `yaml:"risk_model" default:"gpt-4.1"`
		SearchModel     string        `yaml:"search_model" default:"gpt-4o-search-preview"`
		Temperature     float32       `yaml:"temperature" default:"0.2"` // risk model only
		MaxTokens       int           `yaml:"max_tokens" default:"1500"`
		Timeout         time.Duration `yaml:"timeout" default:"60s"`
		Attempts        int           `yaml:"attempts" default:"2"`
		Backoff         time.Duration `yaml:"backoff" default:"2s"`
		BreakerFailures uint32        `yaml:"breaker_failures" default:"3"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown" default:"1m"`
	} `yaml:"openai"`
	Cache struct {
		Backend         string        `yaml:"backend" default:"memory"` // memory, redis or layered
		MemoryMaxSize   int           `yaml:"memory_max_size" default:"10000"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"1m"`
		LocalTTL        time.Duration `yaml:"local_ttl" default:"30s"`
		Redis           struct {
			Addr         string        `yaml:"addr" default:"localhost:6379"`
			Password     string        `yaml:"password"`
			DB           int           `yaml:"db"`
			PoolSize     int           `yaml:"pool_size" default:"20"`
			MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
			PoolTimeout  time.Duration `yaml:"pool_timeout" default:"4s"`
			Prefix       string        `yaml:"prefix" default:"futurescast"`
		} `yaml:"redis"`
		TTL struct {
			Spot       time.Duration `yaml:"spot" default:"1m"`
			FrontMonth time.Duration `yaml:"front_month" default:"5m"`
			NearTerm   time.Duration `yaml:"near_term" default:"15m"`
			Medium     time.Duration `yaml:"medium" default:"1h"`
			LongTerm   time.Duration `yaml:"long_term" default:"4h"`
			Curve      time.Duration `yaml:"curve" default:"5m"`
		} `yaml:"ttl"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled         bool     `yaml:"enabled"`
		Brokers         []string `yaml:"brokers"`
		Topic           string   `yaml:"topic" default:"futures.forecasts"`
		RequiredAcks    int      `yaml:"required_acks" default:"-1"`
		Compression     string   `yaml:"compression" default:"snappy"`
		AutoCreateTopic bool     `yaml:"auto_create_topic"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Forecast struct {
		MaxRiskAdjustment     float64       `yaml:"max_risk_adjustment" default:"0.25"`
		GlobalCap             float64       `yaml:"global_cap" default:"0.35"`
		DiversificationFactor float64       `yaml:"diversification_factor" default:"0.8"`
		DefaultConfidence     float64       `yaml:"default_confidence" default:"0.6"`
		FallbackToWebSearch   bool          `yaml:"fallback_to_web_search" default:"true"`
		Currency              string        `yaml:"currency" default:"USD"`
		Timeout               time.Duration `yaml:"timeout" default:"2m"`
		PublishTimeout        time.Duration `yaml:"publish_timeout" default:"5s"`
		FallbackConcurrency   int           `yaml:"fallback_concurrency" default:"4"`
		Correlations          []struct {
			A           string  `yaml:"a"`
			B           string  `yaml:"b"`
			Coefficient float64 `yaml:"coefficient"`
		} `yaml:"correlations"`
		Categories map[string]struct {
			MaxImpact  float64 `yaml:"max_impact"`
			TypicalMin float64 `yaml:"typical_min"`
			TypicalMax float64 `yaml:"typical_max"`
			Weight     float64 `yaml:"weight"`
		} `yaml:"categories"`
		Curve struct {
			MaxContracts     int     `yaml:"max_contracts" default:"12"`
			Concurrency      int     `yaml:"concurrency" default:"4"`
			MinPoints        int     `yaml:"min_points" default:"2"`
			MaxSpreadRatio   float64 `yaml:"max_spread_ratio" default:"0.20"`
			MinVolume        float64 `yaml:"min_volume" default:"1"`
			MaxIlliquidRatio float64 `yaml:"max_illiquid_ratio" default:"0.5"`
			MaxStepJump      float64 `yaml:"max_step_jump" default:"0.10"`
		} `yaml:"curve"`
		Mapping struct {
			MinDaysToExpiration int `yaml:"min_days_to_expiration" default:"30"`
			MaxDaysToExpiration int `yaml:"max_days_to_expiration" default:"1095"`
		} `yaml:"mapping"`
	} `yaml:"forecast"`
}

// Default returns a configuration holding only default values.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, overrides it with environment variables and validates
// the result.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("QUOTES_API_KEY"); v != "" {
		c.Quotes.HTTP.APIKey = v
	}
	if v := os.Getenv("QUOTES_BASE_URL"); v != "" {
		c.Quotes.HTTP.BaseURL = v
	}
	if v := os.Getenv("QUOTES_SOURCE"); v != "" {
		c.Quotes.Source = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = xutil.SplitTrim(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
}

// Validate checks if the configuration is valid. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, a ...interface{}) { errs = append(errs, fmt.Errorf(format, a...)) }

	if c.Environment == "" {
		add("environment is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port out of range: %d", c.Server.Port)
	}

	switch c.Quotes.Source {
	case "http", "failover":
		if c.Quotes.HTTP.BaseURL == "" {
			add("quotes.http.base_url is required for source %q", c.Quotes.Source)
		}
	case "clickhouse":
	default:
		add("quotes.source must be 'http', 'clickhouse' or 'failover', got '%s'", c.Quotes.Source)
	}
	if c.usesClickHouse() && c.ClickHouse.Host == "" {
		add("clickhouse.host is required for source %q", c.Quotes.Source)
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis", "layered":
		if c.Cache.Redis.Addr == "" {
			add("cache.redis.addr is required for backend %q", c.Cache.Backend)
		}
	default:
		add("cache.backend must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Backend)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			add("kafka.brokers cannot be empty when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			add("kafka.topic is required when kafka is enabled")
		}
	}

	f := c.Forecast
	if f.MaxRiskAdjustment <= 0 || f.MaxRiskAdjustment > 1 {
		add("forecast.max_risk_adjustment must be in (0, 1], got %v", f.MaxRiskAdjustment)
	}
	if f.GlobalCap <= 0 || f.GlobalCap > 1 {
		add("forecast.global_cap must be in (0, 1], got %v", f.GlobalCap)
	}
	if f.DiversificationFactor <= 0 || f.DiversificationFactor > 1 {
		add("forecast.diversification_factor must be in (0, 1], got %v", f.DiversificationFactor)
	}
	if f.DefaultConfidence <= 0 || f.DefaultConfidence > 1 {
		add("forecast.default_confidence must be in (0, 1], got %v", f.DefaultConfidence)
	}
	for _, p := range f.Correlations {
		if p.Coefficient < 0 || p.Coefficient > 1 {
			add("forecast.correlations %s/%s coefficient must be in [0, 1]", p.A, p.B)
		}
	}
	if f.Mapping.MinDaysToExpiration < 0 || f.Mapping.MaxDaysToExpiration <= f.Mapping.MinDaysToExpiration {
		add("forecast.mapping days to expiration bounds are invalid: [%d, %d]",
			f.Mapping.MinDaysToExpiration, f.Mapping.MaxDaysToExpiration)
	}
	if f.Curve.MaxContracts < 1 {
		add("forecast.curve.max_contracts must be positive")
	}

	return errors.Join(errs...)
}

// RiskEnabled reports whether an OpenAI key is configured for risk analysis and text fallback.
func (c *Config) RiskEnabled() bool { return c.OpenAI.APIKey != "" }

func (c *Config) usesClickHouse() bool {
	return c.Quotes.Source == "clickhouse" || c.Quotes.Source == "failover"
}

// UsesClickHouse reports whether the quote source needs a ClickHouse connection.
func (c *Config) UsesClickHouse() bool { return c.usesClickHouse() }
