package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultVersionMaxAttempts bounds retries when an artifact version is taken.
const DefaultVersionMaxAttempts = 5

// Config holds all configuration for the catalogstudio server and CLI.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Media      MediaConfig
	Storage    StorageConfig
	Generation GenerationConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type MediaConfig struct {
	Provider string
	Timeout  time.Duration
	Gemini   GeminiConfig
	OpenAI   OpenAIConfig
}

type GeminiConfig struct {
	APIKey       string
	ImageModel   string
	VideoModel   string
	PollInterval time.Duration
}

type OpenAIConfig struct {
	APIKey     string
	ImageModel string
}

type StorageConfig struct {
	Backend           string
	Path              string
	GCSBucket         string
	ScratchDir        string
	ReferenceMaxBytes int64
}

type GenerationConfig struct {
	Concurrency        int
	VersionMaxAttempts int
}

var validProviders = map[string]bool{
	"gemini": true,
	"openai": true,
	"mock":   true,
}

var validBackends = map[string]bool{
	"local": true,
	"gcs":   true,
}

// LoadDotEnv reads key=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("CATALOGSTUDIO_PORT", 8080),
			Env:                envString("CATALOGSTUDIO_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Media: MediaConfig{
			Provider: os.Getenv("MEDIA_PROVIDER"),
			Timeout:  envDurationSecs("MEDIA_TIMEOUT_SECS", 120*time.Second),
			Gemini: GeminiConfig{
				APIKey:       os.Getenv("GEMINI_API_KEY"),
				ImageModel:   envString("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
				VideoModel:   envString("GEMINI_VIDEO_MODEL", "veo-3.0-fast-generate-001"),
				PollInterval: envDuration("GEMINI_VIDEO_POLL_INTERVAL", 10*time.Second),
			},
			OpenAI: OpenAIConfig{
				APIKey:     os.Getenv("OPENAI_API_KEY"),
				ImageModel: envString("OPENAI_IMAGE_MODEL", "gpt-image-1"),
			},
		},
		Storage: StorageConfig{
			Backend:           envString("STORAGE_BACKEND", "local"),
			Path:              envString("STORAGE_PATH", "./storage"),
			GCSBucket:         os.Getenv("GCS_BUCKET"),
			ScratchDir:        envString("SCRATCH_DIR", os.TempDir()),
			ReferenceMaxBytes: int64(envInt("REFERENCE_MAX_BYTES", 20<<20)),
		},
		Generation: GenerationConfig{
			Concurrency:        envInt("JOB_CONCURRENCY", 4),
			VersionMaxAttempts: envInt("VERSION_MAX_ATTEMPTS", DefaultVersionMaxAttempts),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Media.Provider == "" {
		return fmt.Errorf("MEDIA_PROVIDER is required")
	}
	if !validProviders[c.Media.Provider] {
		return fmt.Errorf("MEDIA_PROVIDER must be one of gemini, openai, mock; got %q", c.Media.Provider)
	}
	if c.Media.Provider == "gemini" && c.Media.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when MEDIA_PROVIDER is gemini")
	}
	if c.Media.Provider == "openai" && c.Media.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when MEDIA_PROVIDER is openai")
	}

	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("STORAGE_BACKEND must be one of local, gcs; got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("GCS_BUCKET is required when STORAGE_BACKEND is gcs")
	}

	if c.Generation.Concurrency < 1 {
		return fmt.Errorf("JOB_CONCURRENCY must be at least 1, got %d", c.Generation.Concurrency)
	}
	if c.Generation.VersionMaxAttempts < 1 {
		return fmt.Errorf("VERSION_MAX_ATTEMPTS must be at least 1, got %d", c.Generation.VersionMaxAttempts)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
