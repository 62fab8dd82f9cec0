package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Auth     AuthConfig     `yaml:"auth"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Site     SiteConfig     `yaml:"site"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StaticDir       string        `yaml:"static_dir"`
}

type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Name           string `yaml:"name"`
	SSLMode        string `yaml:"sslmode"`
	ConnectRetries int    `yaml:"connect_retries"`
	AutoMigrate    bool   `yaml:"auto_migrate"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" sslmode=" + c.SSLMode
}

type RedisConfig struct {
	URL string `yaml:"url"`
	DB  int    `yaml:"db"`
}

// NATSConfig is optional; an empty URL disables the ledger stream.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject_prefix"`
}

type DatasetConfig struct {
	URL     string        `yaml:"url"`
	Refresh time.Duration `yaml:"refresh"`
	S3      S3Config      `yaml:"s3"`
}

type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	GoogleClientID     string        `yaml:"google_client_id"`
	GoogleClientSecret string        `yaml:"google_client_secret"`
	GoogleRedirectURL  string        `yaml:"google_redirect_url"`
	LoginRateLimit     int           `yaml:"login_rate_limit"`
	LoginRateWindow    time.Duration `yaml:"login_rate_window"`
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c AuthConfig) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

type LedgerConfig struct {
	StartingTokens int           `yaml:"starting_tokens"`
	EmailCost      int           `yaml:"email_cost"`
	SchedulingCost int           `yaml:"scheduling_cost"`
	AuditBuffer    int           `yaml:"audit_buffer"`
	RevealTimeout  time.Duration `yaml:"reveal_timeout"`
}

type SiteConfig struct {
	AppURL   string        `yaml:"app_url"`
	Capacity int           `yaml:"capacity"`
	StatsTTL time.Duration `yaml:"stats_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json|console
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			StaticDir:       "static",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "meetings",
			Password:       "meetings",
			Name:           "meetings",
			SSLMode:        "disable",
			ConnectRetries: 10,
		},
		Redis: RedisConfig{URL: "redis://localhost:6379/0"},
		NATS: NATSConfig{
			Stream:  "LEDGER",
			Subject: "ledger",
		},
		Dataset: DatasetConfig{
			URL: "static/investors.csv",
		},
		Auth: AuthConfig{
			TokenTTL:        7 * 24 * time.Hour,
			LoginRateLimit:  5,
			LoginRateWindow: time.Minute,
		},
		Ledger: LedgerConfig{
			StartingTokens: 100,
			EmailCost:      5,
			SchedulingCost: 10,
			AuditBuffer:    256,
			RevealTimeout:  10 * time.Second,
		},
		Site: SiteConfig{
			AppURL:   "http://localhost:8080",
			Capacity: 1000,
			StatsTTL: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for commands that only touch the
// database or the dataset.
func Read() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.StaticDir = getEnv("STATIC_DIR", c.HTTP.StaticDir)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)

	c.Dataset.URL = getEnv("DATASET_URL", c.Dataset.URL)
	c.Dataset.S3.Region = getEnv("S3_REGION", c.Dataset.S3.Region)
	c.Dataset.S3.Endpoint = getEnv("S3_ENDPOINT", c.Dataset.S3.Endpoint)
	c.Dataset.S3.AccessKey = getEnv("S3_ACCESS_KEY", c.Dataset.S3.AccessKey)
	c.Dataset.S3.SecretKey = getEnv("S3_SECRET_KEY", c.Dataset.S3.SecretKey)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", c.Auth.GoogleClientID)
	c.Auth.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", c.Auth.GoogleClientSecret)
	c.Auth.GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URL", c.Auth.GoogleRedirectURL)

	c.Site.AppURL = getEnv("APP_URL", c.Site.AppURL)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	var errs []error
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
				return
			}
			*dst = d
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
				return
			}
			*dst = b
		}
	}

	setInt("DB_PORT", &c.Database.Port)
	setBool("DB_AUTO_MIGRATE", &c.Database.AutoMigrate)
	setInt("REDIS_DB", &c.Redis.DB)
	setDuration("DATASET_REFRESH", &c.Dataset.Refresh)
	setDuration("JWT_TTL", &c.Auth.TokenTTL)
	setInt("STARTING_TOKENS", &c.Ledger.StartingTokens)
	setInt("COST_EMAIL", &c.Ledger.EmailCost)
	setInt("COST_SCHEDULING", &c.Ledger.SchedulingCost)
	setDuration("REVEAL_TIMEOUT", &c.Ledger.RevealTimeout)
	setInt("SITE_CAPACITY", &c.Site.Capacity)

	return errors.Join(errs...)
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Errorf("database port %d is out of range", c.Database.Port))
	}
	if c.Ledger.StartingTokens < 0 {
		errs = append(errs, errors.New("starting tokens must not be negative"))
	}
	if c.Ledger.EmailCost <= 0 || c.Ledger.SchedulingCost <= 0 {
		errs = append(errs, errors.New("reveal costs must be positive"))
	}
	if c.Ledger.AuditBuffer <= 0 {
		errs = append(errs, errors.New("audit buffer must be positive"))
	}
	if c.Site.Capacity < 0 {
		errs = append(errs, errors.New("site capacity must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
