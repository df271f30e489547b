package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Router        RouterConfig        `mapstructure:"router"`
	Proxy         ProxyConfig         `mapstructure:"proxy"`
	Bridge        BridgeConfig        `mapstructure:"bridge"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret"`
	TokenField  string `mapstructure:"token_field"`
	DefaultRole string `mapstructure:"default_role"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// RouterConfig carries the static input→output channel table plus the
// resilience thresholds wrapped around batch processing.
type RouterConfig struct {
	Routes        map[string]string `mapstructure:"routes"`
	ConsumerGroup string            `mapstructure:"consumer_group"`
	BatchSize     int64             `mapstructure:"batch_size"`
	BlockDuration time.Duration     `mapstructure:"block_duration"`
	ClaimPeriod   time.Duration     `mapstructure:"claim_period"`
	ClaimMinIdle  time.Duration     `mapstructure:"claim_min_idle"`

	MaxRetries         uint          `mapstructure:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	BreakerMinRequests uint32        `mapstructure:"breaker_min_requests"`
	BreakerRatio       float64       `mapstructure:"breaker_ratio"`
	BreakerOpenDelay   time.Duration `mapstructure:"breaker_open_delay"`
}

type ProxyConfig struct {
	BackendAddress string        `mapstructure:"backend_address"`
	ReplyTimeout   time.Duration `mapstructure:"reply_timeout"`
}

// BridgeConfig maps result kinds to result channels. ResultChannels is the
// static table; kinds absent from it resolve dynamically from the payload's
// channel field, then FallbackChannel.
type BridgeConfig struct {
	ResultStreams   []string          `mapstructure:"result_streams"`
	ResultChannels  map[string]string `mapstructure:"result_channels"`
	FallbackChannel string            `mapstructure:"fallback_channel"`
	ConsumerGroup   string            `mapstructure:"consumer_group"`
}

type SchedulerConfig struct {
	ArchivePeriod  time.Duration `mapstructure:"archive_period"`
	ArchiveDelay   time.Duration `mapstructure:"archive_delay"`
	RetryPeriod    time.Duration `mapstructure:"retry_period"`
	PurgePeriod    time.Duration `mapstructure:"purge_period"`
	PurgeRetention time.Duration `mapstructure:"purge_retention"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/relay")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Auth.TokenField == "" {
		errs = append(errs, fmt.Errorf("auth.token_field is required"))
	}
	if len(c.Router.Routes) == 0 {
		errs = append(errs, fmt.Errorf("router.routes must map at least one input channel"))
	}
	if c.Router.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("router.batch_size must be positive"))
	}
	if c.Router.BreakerRatio <= 0 || c.Router.BreakerRatio > 1 {
		errs = append(errs, fmt.Errorf("router.breaker_ratio must be in (0, 1], got %f", c.Router.BreakerRatio))
	}
	if c.Proxy.ReplyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("proxy.reply_timeout must be positive"))
	}
	if c.Bridge.FallbackChannel == "" {
		errs = append(errs, fmt.Errorf("bridge.fallback_channel is required"))
	}
	if c.Scheduler.ArchiveDelay <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.archive_delay must be positive"))
	}
	if c.Scheduler.RetryPeriod >= c.Scheduler.ArchivePeriod {
		errs = append(errs, fmt.Errorf("scheduler.retry_period must be shorter than scheduler.archive_period"))
	}

	// JWT secret length validation
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "relay")
	v.SetDefault("database.database", "relay")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Auth defaults
	v.SetDefault("auth.token_field", "auth_token")
	v.SetDefault("auth.default_role", "user")

	// Router defaults
	v.SetDefault("router.routes", map[string]string{
		"relay:index:inbound": "search:index",
		"relay:store:inbound": "store:write",
	})
	v.SetDefault("router.consumer_group", "relay-routers")
	v.SetDefault("router.batch_size", 10)
	v.SetDefault("router.block_duration", "1s")
	v.SetDefault("router.claim_period", "30s")
	v.SetDefault("router.claim_min_idle", "1m")
	v.SetDefault("router.max_retries", 3)
	v.SetDefault("router.retry_delay", "1s")
	v.SetDefault("router.batch_timeout", "30s")
	v.SetDefault("router.breaker_min_requests", 10)
	v.SetDefault("router.breaker_ratio", 0.6)
	v.SetDefault("router.breaker_open_delay", "30s")

	// Proxy defaults
	v.SetDefault("proxy.backend_address", "relay:index:inbound")
	v.SetDefault("proxy.reply_timeout", "10s")

	// Bridge defaults
	v.SetDefault("bridge.result_streams", []string{"search:results", "store:results"})
	v.SetDefault("bridge.result_channels", map[string]string{
		"save":        "results:save",
		"delete":      "results:delete",
		"get":         "results:get",
		"bulk-save":   "results:bulk-save",
		"get-by-user": "results:get-by-user",
		"search":      "results:search",
	})
	v.SetDefault("bridge.fallback_channel", "results:default")
	v.SetDefault("bridge.consumer_group", "relay-bridges")

	// Scheduler defaults
	v.SetDefault("scheduler.archive_period", "5m")
	v.SetDefault("scheduler.archive_delay", "1h")
	v.SetDefault("scheduler.retry_period", "30s")
	v.SetDefault("scheduler.purge_period", "24h")
	v.SetDefault("scheduler.purge_retention", "720h")
	v.SetDefault("scheduler.lock_ttl", "30s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "relay-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
