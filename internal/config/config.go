package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const envPrefix = "BOOKING"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Clinic    ClinicConfig    `mapstructure:"clinic"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Security  SecurityConfig  `mapstructure:"security"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Mail      MailConfig      `mapstructure:"mail"`
	Holidays  HolidayConfig   `mapstructure:"holidays"`
	Log       LogConfig       `mapstructure:"log"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type ClinicConfig struct {
	Name           string `mapstructure:"name"`
	TimeZone       string `mapstructure:"time_zone"`
	MinLeadMinutes int    `mapstructure:"min_lead_minutes"`
	MaxWindowDays  int    `mapstructure:"max_window_days"`
}

type CacheConfig struct {
	RuleTTL        time.Duration `mapstructure:"rule_ttl"`
	ResponseMaxAge time.Duration `mapstructure:"response_max_age"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	Issuer            string        `mapstructure:"issuer"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	AdminEmail        string        `mapstructure:"admin_email"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
}

type MailConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	SkipVerify bool   `mapstructure:"skip_verify"`
}

type HolidayConfig struct {
	ICalURL       string        `mapstructure:"ical_url"`
	SyncInterval  time.Duration `mapstructure:"sync_interval"`
	LookaheadDays int           `mapstructure:"lookahead_days"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type WorkerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// secrets are read from BOOKING_* variables and win over the file.
type secrets struct {
	DatabasePassword  string `envconfig:"DB_PASSWORD"`
	RedisURL          string `envconfig:"REDIS_URL"`
	JWTSecret         string `envconfig:"JWT_SECRET"`
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH"`
	SMTPPassword      string `envconfig:"SMTP_PASSWORD"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "clinic_booking")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("clinic.name", "the clinic")
	v.SetDefault("clinic.time_zone", "UTC")
	v.SetDefault("clinic.min_lead_minutes", 120)
	v.SetDefault("clinic.max_window_days", 62)

	v.SetDefault("cache.rule_ttl", "10m")
	v.SetDefault("cache.response_max_age", "30s")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"})

	v.SetDefault("auth.issuer", "clinic-booking")
	v.SetDefault("auth.token_ttl", "1h")

	v.SetDefault("mail.port", 587)

	v.SetDefault("holidays.sync_interval", "24h")
	v.SetDefault("holidays.lookahead_days", 365)

	v.SetDefault("log.level", "info")
	v.SetDefault("worker.health_port", 8081)
}

// LoadConfig reads config.yml from path, or from ., ./config and /app when
// path is empty. A missing file is not an error; defaults and the
// environment still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	cfg.applySecrets(s)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s secrets) {
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
	if s.JWTSecret != "" {
		c.Auth.JWTSecret = s.JWTSecret
	}
	if s.AdminPasswordHash != "" {
		c.Auth.AdminPasswordHash = s.AdminPasswordHash
	}
	if s.SMTPPassword != "" {
		c.Mail.Password = s.SMTPPassword
	}
}

func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Clinic.MinLeadMinutes < 0 {
		return fmt.Errorf("clinic.min_lead_minutes must not be negative")
	}
	if c.Clinic.MaxWindowDays <= 0 {
		return fmt.Errorf("clinic.max_window_days must be positive")
	}
	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.From == "") {
		return fmt.Errorf("mail.host and mail.from are required when mail is enabled")
	}
	return nil
}

// Location resolves the clinic time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Clinic.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid clinic.time_zone %q: %w", c.Clinic.TimeZone, err)
	}
	return loc, nil
}
