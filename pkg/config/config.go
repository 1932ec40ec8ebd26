package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is prepended to every environment variable name below.
const EnvPrefix = "BORE_"

// Storage drivers
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address" env:"SERVER_ADDRESS"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	} `yaml:"server"`

	Relay struct {
		Path             string        `yaml:"path" env:"RELAY_PATH"`
		AllowedOrigins   []string      `yaml:"allowed_origins" env:"RELAY_CORS_ORIGIN" envSeparator:","`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"RELAY_HANDSHAKE_TIMEOUT"`
		PingInterval     time.Duration `yaml:"ping_interval" env:"RELAY_PING_INTERVAL"`
		PongTimeout      time.Duration `yaml:"pong_timeout" env:"RELAY_PONG_TIMEOUT"`
		WriteTimeout     time.Duration `yaml:"write_timeout" env:"RELAY_WRITE_TIMEOUT"`
		SendBufferSize   int           `yaml:"send_buffer_size" env:"RELAY_SEND_BUFFER_SIZE"`
	} `yaml:"relay"`

	Discord struct {
		APIBaseURL       string        `yaml:"api_base_url" env:"DISCORD_API_BASE_URL"`
		GuildID          string        `yaml:"guild_id" env:"DISCORD_GUILD_ID"`
		OwnerRoleIDs     []string      `yaml:"owner_role_ids" env:"DISCORD_OWNER_ROLE_IDS" envSeparator:","`
		DirectorRoleIDs  []string      `yaml:"director_role_ids" env:"DISCORD_DIRECTOR_ROLE_IDS" envSeparator:","`
		ManagerRoleIDs   []string      `yaml:"manager_role_ids" env:"DISCORD_MANAGER_ROLE_IDS" envSeparator:","`
		ModeratorRoleIDs []string      `yaml:"moderator_role_ids" env:"DISCORD_MODERATOR_ROLE_IDS" envSeparator:","`
		StaffRoleIDs     []string      `yaml:"staff_role_ids" env:"DISCORD_STAFF_ROLE_IDS" envSeparator:","`
		CacheTTLMs       int           `yaml:"permission_cache_ttl_ms" env:"PERMISSION_CACHE_TTL_MS"`
		StaleWindow      time.Duration `yaml:"stale_window" env:"PERMISSION_STALE_WINDOW"`
		Timeout          time.Duration `yaml:"timeout" env:"DISCORD_TIMEOUT"`

		CircuitBreaker struct {
			FailureThreshold int           `yaml:"failure_threshold" env:"DISCORD_CB_FAILURE_THRESHOLD"`
			OpenTimeout      time.Duration `yaml:"open_timeout" env:"DISCORD_CB_OPEN_TIMEOUT"`
		} `yaml:"circuit_breaker"`
	} `yaml:"discord"`

	ServiceAuth struct {
		JWTSecret string        `yaml:"jwt_secret" env:"SERVICE_JWT_SECRET"`
		Issuer    string        `yaml:"issuer" env:"SERVICE_JWT_ISSUER"`
		TokenTTL  time.Duration `yaml:"token_ttl" env:"SERVICE_TOKEN_TTL"`
	} `yaml:"service_auth"`

	Storage struct {
		Driver      string `yaml:"driver" env:"STORAGE_DRIVER"`
		PostgresDSN string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	} `yaml:"storage"`

	Redis struct {
		Address  string `yaml:"address" env:"REDIS_ADDRESS"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		PoolSize int    `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
	} `yaml:"redis"`

	Monitoring struct {
		PrometheusEnabled   bool          `yaml:"prometheus_enabled" env:"PROMETHEUS_ENABLED"`
		HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled" env:"TRACING_ENABLED"`
		JaegerURL   string  `yaml:"jaeger_url" env:"TRACING_JAEGER_URL"`
		Environment string  `yaml:"environment" env:"ENVIRONMENT"`
		SampleRate  float64 `yaml:"sample_rate" env:"TRACING_SAMPLE_RATE"`
	} `yaml:"tracing"`

	Logging struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second"`
			Burst               int     `yaml:"burst"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// CacheTTL returns the permission cache TTL as a duration
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Discord.CacheTTLMs) * time.Millisecond
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server timeouts must be > 0")
	}

	if !strings.HasPrefix(c.Relay.Path, "/") {
		return fmt.Errorf("relay.path must start with '/'")
	}
	if len(c.Relay.AllowedOrigins) == 0 {
		return fmt.Errorf("relay.allowed_origins must not be empty")
	}
	if c.Relay.HandshakeTimeout <= 0 {
		return fmt.Errorf("relay.handshake_timeout must be > 0")
	}
	if c.Relay.PingInterval <= 0 {
		return fmt.Errorf("relay.ping_interval must be > 0")
	}
	if c.Relay.PongTimeout <= c.Relay.PingInterval {
		return fmt.Errorf("relay.pong_timeout must be greater than relay.ping_interval")
	}
	if c.Relay.WriteTimeout <= 0 {
		return fmt.Errorf("relay.write_timeout must be > 0")
	}
	if c.Relay.SendBufferSize <= 0 {
		return fmt.Errorf("relay.send_buffer_size must be > 0")
	}

	if c.Discord.APIBaseURL == "" {
		return fmt.Errorf("discord.api_base_url must not be empty")
	}
	if c.Discord.CacheTTLMs <= 0 {
		return fmt.Errorf("discord.permission_cache_ttl_ms must be > 0")
	}
	if c.Discord.Timeout <= 0 || c.Discord.Timeout > 5*time.Second {
		return fmt.Errorf("discord.timeout must be in (0, 5s]")
	}
	if c.Discord.StaleWindow < 0 {
		return fmt.Errorf("discord.stale_window must be >= 0")
	}
	if c.Discord.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("discord.circuit_breaker.failure_threshold must be > 0")
	}
	if c.Discord.CircuitBreaker.OpenTimeout <= 0 {
		return fmt.Errorf("discord.circuit_breaker.open_timeout must be > 0")
	}

	if c.ServiceAuth.JWTSecret != "" && len(c.ServiceAuth.JWTSecret) < 32 {
		return fmt.Errorf("service_auth.jwt_secret must be at least 32 bytes when set")
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when storage.driver=redis")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when storage.driver=redis")
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn must not be empty when storage.driver=postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, redis, postgres (got %q)", c.Storage.Driver)
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 || c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http requires requests_per_second and burst > 0")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 || c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket requires messages_per_second and burst > 0")
		}
	}
	if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0")
	}

	return nil
}

// Load builds the configuration from defaults, the optional YAML file at
// configPath, an optional .env file and BORE_* environment variables, in
// that order of precedence.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// If file does not exist, fall back to defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	// Apply environment variable overrides
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server
	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	// Relay
	cfg.Relay.Path = "/api/socketio"
	cfg.Relay.AllowedOrigins = []string{"*"}
	cfg.Relay.HandshakeTimeout = 10 * time.Second
	cfg.Relay.PingInterval = 25 * time.Second
	cfg.Relay.PongTimeout = 60 * time.Second
	cfg.Relay.WriteTimeout = 10 * time.Second
	cfg.Relay.SendBufferSize = 64

	// Discord
	cfg.Discord.APIBaseURL = "https://discord.com/api/v10"
	cfg.Discord.CacheTTLMs = 120000
	cfg.Discord.StaleWindow = 24 * time.Hour
	cfg.Discord.Timeout = 5 * time.Second
	cfg.Discord.CircuitBreaker.FailureThreshold = 5
	cfg.Discord.CircuitBreaker.OpenTimeout = 30 * time.Second

	// Auth
	cfg.ServiceAuth.Issuer = "bore-relay"
	cfg.ServiceAuth.TokenTTL = 30 * 24 * time.Hour

	cfg.Storage.Driver = StorageMemory

	// Redis
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10

	// Monitoring
	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthCheckInterval = 30 * time.Second

	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	// Logging
	cfg.Logging.Level = "info"

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 20
	cfg.RateLimiting.HTTP.Burst = 40
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 1 << 20

	return cfg
}
