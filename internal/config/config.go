// Package config loads service settings from defaults, an optional config
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port       string `mapstructure:"port"`
	TLSCert    string `mapstructure:"tls_cert"`
	TLSKey     string `mapstructure:"tls_key"`
	RequireTLS bool   `mapstructure:"require_tls"`
	// RateLimitRPM is the per-user budget for unary calls.
	RateLimitRPM int `mapstructure:"rate_limit_rpm"`
	// FrameRateLimitRPM is the per-user budget for inbound stream frames.
	FrameRateLimitRPM int           `mapstructure:"frame_rate_limit_rpm"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type JWTConfig struct {
	Secret    string `mapstructure:"secret"`
	Keys      string `mapstructure:"keys"` // kid:secret,kid2:secret2
	ActiveKid string `mapstructure:"active_kid"`
}

type RealtimeConfig struct {
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	OutboxSize     int           `mapstructure:"outbox_size"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

type TypingConfig struct {
	Backend       string        `mapstructure:"backend"` // memory | redis
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ListingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Typing   TypingConfig   `mapstructure:"typing"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Listing  ListingConfig  `mapstructure:"listing"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// envBindings maps config keys to the environment variable names operators
// already use for this service.
var envBindings = map[string]string{
	"server.port":                 "PORT",
	"server.tls_cert":             "TLS_CERT",
	"server.tls_key":              "TLS_KEY",
	"server.require_tls":          "REQUIRE_TLS",
	"server.rate_limit_rpm":       "RATE_LIMIT_RPM",
	"server.frame_rate_limit_rpm": "FRAME_RATE_LIMIT_RPM",
	"server.shutdown_timeout":     "SHUTDOWN_TIMEOUT",
	"mongo.uri":                   "MONGODB_URI",
	"mongo.database":              "MONGODB_DATABASE",
	"jwt.secret":                  "JWT_SECRET",
	"jwt.keys":                    "JWT_KEYS",
	"jwt.active_kid":              "JWT_ACTIVE_KID",
	"realtime.send_timeout":       "REALTIME_SEND_TIMEOUT",
	"realtime.outbox_size":        "REALTIME_OUTBOX_SIZE",
	"realtime.write_timeout":      "REALTIME_WRITE_TIMEOUT",
	"realtime.max_concurrency":    "REALTIME_MAX_CONCURRENCY",
	"typing.backend":              "TYPING_BACKEND",
	"typing.ttl":                  "TYPING_TTL",
	"typing.sweep_interval":       "TYPING_SWEEP_INTERVAL",
	"redis.addr":                  "REDIS_ADDR",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
	"redis.prefix":                "REDIS_PREFIX",
	"kafka.brokers":               "KAFKA_BROKERS",
	"kafka.topic":                 "KAFKA_TOPIC",
	"listing.base_url":            "LISTING_BASE_URL",
	"listing.timeout":             "LISTING_TIMEOUT",
	"metrics.addr":                "METRICS_ADDR",
	"log.level":                   "LOG_LEVEL",
	"log.development":             "LOG_DEVELOPMENT",
	"log.file":                    "LOG_FILE",
	"log.max_size_mb":             "LOG_MAX_SIZE_MB",
	"log.max_backups":             "LOG_MAX_BACKUPS",
	"log.max_age_days":            "LOG_MAX_AGE_DAYS",
	"log.compress":                "LOG_COMPRESS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "50051")
	v.SetDefault("server.rate_limit_rpm", 120)
	v.SetDefault("server.frame_rate_limit_rpm", 600)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("mongo.database", "chat_db")

	v.SetDefault("realtime.send_timeout", 250*time.Millisecond)
	v.SetDefault("realtime.outbox_size", 64)
	v.SetDefault("realtime.write_timeout", 5*time.Second)
	v.SetDefault("realtime.max_concurrency", 64)

	v.SetDefault("typing.backend", "memory")
	v.SetDefault("typing.ttl", 30*time.Second)
	v.SetDefault("typing.sweep_interval", 10*time.Second)

	v.SetDefault("redis.prefix", "chat:")

	v.SetDefault("kafka.topic", "chat.events")

	v.SetDefault("listing.timeout", 3*time.Second)

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
}

// Load reads configuration. path may be empty, in which case only defaults and
// the environment are consulted.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// KAFKA_BROKERS arrives as one comma separated string from the environment.
	cfg.Kafka.Brokers = splitList(strings.Join(cfg.Kafka.Brokers, ","))
	return &cfg, nil
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("MONGODB_URI must be set"))
	}
	if c.JWT.Secret == "" && c.JWT.Keys == "" {
		errs = append(errs, errors.New("either JWT_SECRET or JWT_KEYS must be set"))
	}
	if c.Server.RequireTLS && (c.Server.TLSCert == "" || c.Server.TLSKey == "") {
		errs = append(errs, errors.New("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured"))
	}
	switch c.Typing.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("TYPING_BACKEND=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TYPING_BACKEND %q", c.Typing.Backend))
	}
	if c.Typing.TTL <= 0 {
		errs = append(errs, errors.New("TYPING_TTL must be positive"))
	}
	if c.Realtime.SendTimeout <= 0 {
		errs = append(errs, errors.New("REALTIME_SEND_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// JWTKeys parses JWT_KEYS ("kid:secret,kid2:secret2").
func (c *Config) JWTKeys() (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range splitList(c.JWT.Keys) {
		kid, secret, ok := strings.Cut(p, ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry: %s", p)
		}
		keys[kid] = secret
	}
	return keys, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
