package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SOCIAL"

type ServerConfig struct {
	Port                   string `mapstructure:"port"`
	MetricsPort            string `mapstructure:"metrics_port"`
	Env                    string `mapstructure:"env"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig controls the read-view cache. Backend is one of "redis", "memory" or "none".
type CacheConfig struct {
	Backend            string `mapstructure:"backend"`
	OpTimeoutMs        int    `mapstructure:"op_timeout_ms"`
	FeedTTLSeconds     int    `mapstructure:"feed_ttl_seconds"`
	ExploreTTLSeconds  int    `mapstructure:"explore_ttl_seconds"`
	PostTTLSeconds     int    `mapstructure:"post_ttl_seconds"`
	UserFeedTTLSeconds int    `mapstructure:"user_feed_ttl_seconds"`
	BreakerFailures    int    `mapstructure:"breaker_failures"`
	BreakerOpenSeconds int    `mapstructure:"breaker_open_seconds"`
}

type PushConfig struct {
	VAPIDPublicKey      string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey     string `mapstructure:"vapid_private_key"`
	Subscriber          string `mapstructure:"subscriber"`
	TTLSeconds          int    `mapstructure:"ttl_seconds"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	StoreTimeoutSeconds int    `mapstructure:"store_timeout_seconds"`
	Icon                string `mapstructure:"icon"`
	Badge               string `mapstructure:"badge"`
}

type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	TokenTTLHours int    `mapstructure:"token_ttl_hours"`
}

type FirebaseConfig struct {
	CredentialsPath string `mapstructure:"credentials_path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Push     PushConfig     `mapstructure:"push"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Log      LogConfig      `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.metrics_port", "9090")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "socialmedia")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.backend", "redis")
	v.SetDefault("cache.op_timeout_ms", 300)
	v.SetDefault("cache.feed_ttl_seconds", 60)
	v.SetDefault("cache.explore_ttl_seconds", 60)
	v.SetDefault("cache.post_ttl_seconds", 300)
	v.SetDefault("cache.user_feed_ttl_seconds", 300)
	v.SetDefault("cache.breaker_failures", 5)
	v.SetDefault("cache.breaker_open_seconds", 30)

	v.SetDefault("push.vapid_public_key", "")
	v.SetDefault("push.vapid_private_key", "")
	v.SetDefault("push.subscriber", "mailto:admin@example.com")
	v.SetDefault("push.ttl_seconds", 86400)
	v.SetDefault("push.timeout_seconds", 10)
	v.SetDefault("push.store_timeout_seconds", 5)
	v.SetDefault("push.icon", "/icons/icon-192.png")
	v.SetDefault("push.badge", "/icons/badge-72.png")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_hours", 72)

	v.SetDefault("firebase.credentials_path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load reads configuration from an optional .env file, an optional config.yaml and
// SOCIAL_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, assuming environment variables are set.")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if p := os.Getenv("SOCIAL_CONFIG_PATH"); p != "" {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn (SOCIAL_POSTGRES_DSN) is not set")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri (SOCIAL_MONGO_URI) is not set")
	}
	if c.Auth.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("auth.jwt_secret (SOCIAL_AUTH_JWT_SECRET) is required outside development")
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return fmt.Errorf("push.vapid_public_key and push.vapid_private_key must be set together")
	}
	switch c.Cache.Backend {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf("cache.backend must be one of redis, memory, none; got %q", c.Cache.Backend)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// JWTSecret falls back to a fixed development secret when none is configured.
func (c *Config) JWTSecret() string {
	if c.Auth.JWTSecret == "" {
		return "supersecretjwtkey"
	}
	return c.Auth.JWTSecret
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

func (c *Config) PushEnabled() bool {
	return c.Push.VAPIDPublicKey != "" && c.Push.VAPIDPrivateKey != ""
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
