package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config is read from config.yaml and then overridden by environment
// variables. Secrets (passwords, API keys) are only read from the environment.
type Config struct {
	Env string `yaml:"env" env:"APP_ENV" env-default:"development"`

	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Minio     MinioConfig     `yaml:"minio"`
	Providers ProvidersConfig `yaml:"providers"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port        int           `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	// analisa satu foto bisa sampai dua menit (dua fase provider)
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"180s"`
	CORSOrigins  []string      `yaml:"cors_origins" env:"SERVER_CORS_ORIGINS" env-separator:","`
}

// DatabaseConfig: driver mysql atau postgres
type DatabaseConfig struct {
	Driver       string `yaml:"driver" env:"DB_DRIVER" env-default:"mysql"`
	Host         string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port         int    `yaml:"port" env:"DB_PORT"`
	User         string `yaml:"user" env:"DB_USER" env-default:"photo"`
	Password     string `yaml:"-" env:"DB_PASSWORD"`
	Name         string `yaml:"name" env:"DB_NAME" env-default:"photo_tagger"`
	SSLMode      string `yaml:"ssl_mode" env:"DB_SSLMODE" env-default:"disable"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
}

type MinioConfig struct {
	Endpoint         string `yaml:"endpoint" env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	AccessKey        string `yaml:"-" env:"MINIO_ACCESS_KEY"`
	SecretKey        string `yaml:"-" env:"MINIO_SECRET_KEY"`
	Region           string `yaml:"region" env:"MINIO_REGION" env-default:"us-east-1"`
	UseSSL           bool   `yaml:"use_ssl" env:"MINIO_USE_SSL"`
	OriginalsBucket  string `yaml:"originals_bucket" env:"MINIO_ORIGINALS_BUCKET" env-default:"photo-originals"`
	ThumbnailsBucket string `yaml:"thumbnails_bucket" env:"MINIO_THUMBNAILS_BUCKET" env-default:"photo-thumbnails"`
}

type ProvidersConfig struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Google    GoogleConfig    `yaml:"google"`
	Timeout   time.Duration   `yaml:"timeout" env:"PROVIDER_TIMEOUT" env-default:"60s"`
	Retry     RetryConfig     `yaml:"retry"`
}

// OpenAIConfig is the vision classifier backend.
type OpenAIConfig struct {
	APIKey  string `yaml:"-" env:"OPENAI_API_KEY"`
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Model   string `yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
}

// AnthropicConfig is the semantic describer backend.
type AnthropicConfig struct {
	APIKey  string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	BaseURL string `yaml:"base_url" env:"ANTHROPIC_BASE_URL"`
	Model   string `yaml:"model" env:"ANTHROPIC_MODEL" env-default:"claude-3-5-sonnet-20241022"`
}

// GoogleConfig is the place resolver backend.
type GoogleConfig struct {
	APIKey string `yaml:"-" env:"GOOGLE_MAPS_API_KEY"`
}

type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"PROVIDER_MAX_RETRIES" env-default:"2"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"PROVIDER_RETRY_DELAY" env-default:"500ms"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"PROVIDER_RETRY_MAX_DELAY" env-default:"5s"`
}

// AnalysisConfig feeds the orchestrator policy.
type AnalysisConfig struct {
	MinConfidence     float64 `yaml:"min_confidence" env:"ANALYSIS_MIN_CONFIDENCE" env-default:"0.7"`
	UseThumbnail      bool    `yaml:"use_thumbnail" env:"ANALYSIS_USE_THUMBNAIL"`
	PlaceSearchRadius int     `yaml:"place_search_radius" env:"ANALYSIS_PLACE_RADIUS" env-default:"100"`
	MaxParallelism    int     `yaml:"max_parallelism" env:"ANALYSIS_MAX_PARALLELISM" env-default:"3"`
	PersistThreshold  float64 `yaml:"persist_threshold" env:"ANALYSIS_PERSIST_THRESHOLD" env-default:"0.95"`
	MaxPayloadMB      int     `yaml:"max_payload_mb" env:"ANALYSIS_MAX_PAYLOAD_MB" env-default:"4"`
	DescriberMaxEdge  int     `yaml:"describer_max_edge" env:"ANALYSIS_DESCRIBER_MAX_EDGE" env-default:"1024"`

	Categories      CategoryConfig    `yaml:"categories"`
	SceneKeywords   []string          `yaml:"scene_keywords" env:"ANALYSIS_SCENE_KEYWORDS" env-separator:","`
	PlaceTypeLabels map[string]string `yaml:"place_type_labels"`
}

// CategoryConfig maps suggestion categories to catalogue ids.
type CategoryConfig struct {
	AI       int64 `yaml:"ai" env:"CATEGORY_AI_ID" env-default:"1"`
	Location int64 `yaml:"location" env:"CATEGORY_LOCATION_ID" env-default:"2"`
	Scene    int64 `yaml:"scene" env:"CATEGORY_SCENE_ID" env-default:"3"`
}

// AuthConfig: API key -> user id
type AuthConfig struct {
	APIKeys map[string]int64 `yaml:"-" env:"AUTH_API_KEYS" env-separator:","`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS" env-default:"5"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"10"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// defaults for bool fields; env-default cannot tell an explicit false from unset
func newConfig() *Config {
	cfg := &Config{}
	cfg.Analysis.UseThumbnail = true
	cfg.RateLimit.Enabled = true
	return cfg
}

// Load baca file config.yaml, lalu override dari environment.
// A missing file is not an error; everything then comes from env and defaults.
func Load(path string) (*Config, error) {
	cfg := newConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
		if cfg.Database.Driver == "postgres" {
			cfg.Database.Port = 5432
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver must be mysql or postgres, got %q", c.Database.Driver)
	}
	a := c.Analysis
	if a.MinConfidence < 0 || a.MinConfidence > 1 {
		return fmt.Errorf("analysis.min_confidence out of range: %v", a.MinConfidence)
	}
	if a.PersistThreshold <= 0 || a.PersistThreshold > 1 {
		return fmt.Errorf("analysis.persist_threshold out of range: %v", a.PersistThreshold)
	}
	if a.MaxParallelism < 1 {
		return fmt.Errorf("analysis.max_parallelism must be at least 1")
	}
	if a.MaxPayloadMB < 1 {
		return fmt.Errorf("analysis.max_payload_mb must be at least 1")
	}
	return nil
}

// IsDevelopment dipakai untuk pilih format log
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "local"
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// MySQLMigrateDSN is MySQLDSN with multi statements enabled for migration files.
func (c *Config) MySQLMigrateDSN() string {
	return c.MySQLDSN() + "&multiStatements=true"
}

// PostgresDSN builds a lib/pq connection URL.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     c.Database.Name,
		RawQuery: url.Values{"sslmode": []string{c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "postgres" {
		return c.PostgresDSN()
	}
	return c.MySQLDSN()
}

// MaxPayloadBytes is the vision upload ceiling in bytes.
func (c *Config) MaxPayloadBytes() int {
	return c.Analysis.MaxPayloadMB * 1024 * 1024
}
