package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"

	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	ModeAccumulate = "accumulate"
	ModeReplace    = "replace"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	EnablePDFQA bool `envconfig:"ENABLE_PDF_QA" default:"false"`

	EmbeddingsProvider  string `envconfig:"EMBEDDINGS_PROVIDER" default:"local"`
	EmbeddingsModel     string `envconfig:"EMBEDDINGS_MODEL"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS"`
	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`

	VectorBackend    string `envconfig:"VECTOR_BACKEND" default:"sqlite"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	VectorCollection string `envconfig:"VECTOR_COLLECTION" default:"campaign"`

	DataDir     string `envconfig:"DATA_DIR" default:"data"`
	DriveRawDir string `envconfig:"DRIVE_RAW_DIR"`
	IngestDir   string `envconfig:"INGEST_DIR"`
	ChunkDir    string `envconfig:"CHUNK_DIR"`
	VectorDir   string `envconfig:"VECTOR_DIR"`

	ChunkMaxChars int    `envconfig:"CHUNK_MAX_CHARS" default:"1100"`
	ChunkOverlap  int    `envconfig:"CHUNK_OVERLAP" default:"180"`
	IngestMode    string `envconfig:"INGEST_MODE" default:"accumulate"`
	SkipUnchanged bool   `envconfig:"SKIP_UNCHANGED" default:"false"`

	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	RedisPassword     string        `envconfig:"REDIS_PASSWORD"`
	RedisDB           int           `envconfig:"REDIS_DB" default:"0"`
	EmbeddingCacheTTL time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"720h"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"campaign-pdfs"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Prefix    string `envconfig:"S3_PREFIX"`

	SyncInterval time.Duration `envconfig:"SYNC_INTERVAL" default:"0s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CAMPAIGNKB", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) applyDerivedDefaults() {
	if c.DriveRawDir == "" {
		c.DriveRawDir = filepath.Join(c.DataDir, "drive_raw")
	}
	if c.IngestDir == "" {
		c.IngestDir = filepath.Join(c.DataDir, "ingest")
	}
	if c.ChunkDir == "" {
		c.ChunkDir = filepath.Join(c.DataDir, "chunks")
	}
	if c.VectorDir == "" {
		c.VectorDir = filepath.Join(c.DataDir, "vector")
	}
	if c.EmbeddingDimensions <= 0 {
		if c.EmbeddingsProvider == ProviderOpenAI {
			c.EmbeddingDimensions = 1536
		} else {
			c.EmbeddingDimensions = 384
		}
	}
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	if c.ChunkOverlap < 0 || c.ChunkMaxChars <= c.ChunkOverlap {
		errs = append(errs, fmt.Errorf("CHUNK_MAX_CHARS (%d) must be greater than CHUNK_OVERLAP (%d), which must not be negative", c.ChunkMaxChars, c.ChunkOverlap))
	}

	switch c.EmbeddingsProvider {
	case ProviderLocal:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when EMBEDDINGS_PROVIDER is openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDINGS_PROVIDER %q", c.EmbeddingsProvider))
	}

	switch c.VectorBackend {
	case BackendSQLite, BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when VECTOR_BACKEND is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}

	if c.IngestMode != ModeAccumulate && c.IngestMode != ModeReplace {
		errs = append(errs, fmt.Errorf("unknown INGEST_MODE %q", c.IngestMode))
	}

	if c.SyncInterval < 0 {
		errs = append(errs, errors.New("SYNC_INTERVAL must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// EnsureDirs creates the data directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.DriveRawDir, c.IngestDir, c.ChunkDir, c.VectorDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
