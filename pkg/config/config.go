package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Routing struct {
		ConnectionHealthInterval time.Duration `yaml:"connection_health_interval"`
	} `yaml:"routing"`

	Bitrate struct {
		MinKbps       int           `yaml:"min_kbps"`
		MaxKbps       int           `yaml:"max_kbps"`
		InitialKbps   int           `yaml:"initial_kbps"`
		WindowSize    int           `yaml:"window_size"`
		Level         string        `yaml:"level"` // conservative, balanced, aggressive
		RampUpSpeed   float64       `yaml:"ramp_up_speed"`
		RampDownSpeed float64       `yaml:"ramp_down_speed"`
		LossThreshold float64       `yaml:"loss_threshold"`
		AdaptInterval time.Duration `yaml:"adapt_interval"`
	} `yaml:"bitrate"`

	Health struct {
		Interval      time.Duration `yaml:"interval"`
		AutoAdjust    bool          `yaml:"auto_adjust"`
		AutoReconnect bool          `yaml:"auto_reconnect"`
	} `yaml:"health"`

	Pipeline struct {
		CloudMonitorInterval time.Duration `yaml:"cloud_monitor_interval"`
	} `yaml:"pipeline"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint"`
		SampleRate     float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret"`
		AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
		RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Routing
	if c.Routing.ConnectionHealthInterval <= 0 {
		return fmt.Errorf("routing.connection_health_interval must be > 0")
	}

	// Bitrate
	if c.Bitrate.MinKbps <= 0 {
		return fmt.Errorf("bitrate.min_kbps must be > 0")
	}
	if c.Bitrate.MaxKbps <= c.Bitrate.MinKbps {
		return fmt.Errorf("bitrate.max_kbps must be > min_kbps")
	}
	if c.Bitrate.InitialKbps < c.Bitrate.MinKbps || c.Bitrate.InitialKbps > c.Bitrate.MaxKbps {
		return fmt.Errorf("bitrate.initial_kbps must be within [min_kbps, max_kbps]")
	}
	if c.Bitrate.WindowSize <= 0 {
		return fmt.Errorf("bitrate.window_size must be > 0")
	}
	switch c.Bitrate.Level {
	case "conservative", "balanced", "aggressive":
	default:
		return fmt.Errorf("bitrate.level must be one of conservative, balanced, aggressive")
	}
	if c.Bitrate.RampUpSpeed <= 0 || c.Bitrate.RampUpSpeed > 1 {
		return fmt.Errorf("bitrate.ramp_up_speed must be in (0, 1]")
	}
	if c.Bitrate.RampDownSpeed <= 0 || c.Bitrate.RampDownSpeed > 1 {
		return fmt.Errorf("bitrate.ramp_down_speed must be in (0, 1]")
	}
	if c.Bitrate.LossThreshold < 0 || c.Bitrate.LossThreshold >= 1 {
		return fmt.Errorf("bitrate.loss_threshold must be in [0, 1)")
	}
	if c.Bitrate.AdaptInterval <= 0 {
		return fmt.Errorf("bitrate.adapt_interval must be > 0")
	}

	// Health
	if c.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be > 0")
	}

	// Pipeline
	if c.Pipeline.CloudMonitorInterval <= 0 {
		return fmt.Errorf("pipeline.cloud_monitor_interval must be > 0")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth.refresh_token_ttl must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Default values
	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Routing.ConnectionHealthInterval = 10 * time.Second

	cfg.Bitrate.MinKbps = 500
	cfg.Bitrate.MaxKbps = 8000
	cfg.Bitrate.InitialKbps = 2500
	cfg.Bitrate.WindowSize = 10
	cfg.Bitrate.Level = "balanced"
	cfg.Bitrate.RampUpSpeed = 0.25
	cfg.Bitrate.RampDownSpeed = 0.6
	cfg.Bitrate.LossThreshold = 0.02
	cfg.Bitrate.AdaptInterval = 2 * time.Second

	cfg.Health.Interval = 2 * time.Second
	cfg.Health.AutoAdjust = true
	cfg.Health.AutoReconnect = true

	cfg.Pipeline.CloudMonitorInterval = 30 * time.Second

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 0.1

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour // 7 days
	cfg.Auth.AllowedOrigins = []string{"*"}

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("OMNICAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("OMNICAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("OMNICAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("OMNICAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
