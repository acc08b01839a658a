package cli

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloo-solutions/campaignkb/internal/config"
	"github.com/cloo-solutions/campaignkb/internal/database"
	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/cloo-solutions/campaignkb/internal/embedding"
	"github.com/cloo-solutions/campaignkb/internal/extract"
	"github.com/cloo-solutions/campaignkb/internal/openai"
	"github.com/cloo-solutions/campaignkb/internal/repository"
	"github.com/cloo-solutions/campaignkb/internal/service"
	"github.com/cloo-solutions/campaignkb/internal/storage"
	"github.com/cloo-solutions/campaignkb/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goopenai "github.com/sashabaranov/go-openai"
)

// App is the wired knowledge base shared by every command.
type App struct {
	Config    *config.Config
	KB        *service.KnowledgeBaseService
	Manifests *repository.ManifestRepository
	// Storage is nil when no S3 endpoint is configured.
	Storage  *storage.S3Client
	Registry *prometheus.Registry
	Metrics  *telemetry.Metrics

	closers []func()
}

// Options tunes NewApp.
type Options struct {
	// Migrate applies pending postgres migrations before the store is used.
	Migrate bool
}

// NewApp builds the knowledge base described by cfg.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (app *App, err error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	app = &App{Config: cfg, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = telemetry.NewMetrics(app.Registry)

	store, txRunner, err := app.openStore(ctx, opts)
	if err != nil {
		return nil, err
	}

	embedder, err := app.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	var index *service.VectorIndex
	if cfg.SkipUnchanged {
		index = service.NewVectorIndexSkippingUnchanged(embedder, store)
	} else {
		index = service.NewVectorIndex(embedder, store)
	}
	if txRunner != nil {
		index.WithTxRunner(txRunner)
	}

	app.Manifests = repository.NewManifestRepository(cfg.ChunkDir)
	app.KB = service.NewKnowledgeBaseServiceWithMetrics(
		extract.NewPDFExtractor(),
		index,
		app.Manifests,
		service.KnowledgeBaseConfig{
			Chunking: service.ChunkConfig{MaxChars: cfg.ChunkMaxChars, Overlap: cfg.ChunkOverlap},
			Mode:     service.IngestMode(cfg.IngestMode),
		},
		app.Metrics,
	)

	if cfg.HasS3() {
		app.Storage, err = storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
	}

	return app, nil
}

// Close releases the store and cache connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// RequireFeature returns ErrFeatureDisabled unless PDF QA is enabled.
func (a *App) RequireFeature() error {
	if !a.Config.EnablePDFQA {
		return domain.ErrFeatureDisabled
	}
	return nil
}

// RequireStorage returns the S3 client or ErrStorageNotConfigured.
func (a *App) RequireStorage() (*storage.S3Client, error) {
	if a.Storage == nil {
		return nil, domain.ErrStorageNotConfigured
	}
	return a.Storage, nil
}

// openStore returns the configured chunk store and, for postgres, a
// transaction runner over the same pool.
func (a *App) openStore(ctx context.Context, opts Options) (service.ChunkStore, service.TxRunner, error) {
	cfg := a.Config
	switch cfg.VectorBackend {
	case config.BackendPostgres:
		if opts.Migrate {
			if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, nil, domain.NewStoreUnavailable(err)
		}
		a.closers = append(a.closers, pool.Close)
		log.Printf("vector index: postgres collection %q", cfg.VectorCollection)
		return repository.NewChunkRepository(pool, cfg.VectorCollection),
			chunkTxRunner{repository.NewTxRunner(pool, cfg.VectorCollection)}, nil

	case config.BackendMemory:
		log.Println("vector index: in-memory (not persisted)")
		return repository.NewMemoryStore(), nil, nil

	case config.BackendSQLite:
		store, err := repository.OpenSQLiteStore(ctx, cfg.VectorDir, cfg.VectorCollection)
		if err != nil {
			return nil, nil, domain.NewStoreUnavailable(err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				log.Printf("failed to close sqlite store: %v", err)
			}
		})
		log.Printf("vector index: sqlite collection %q in %s", cfg.VectorCollection, cfg.VectorDir)
		return store, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
}

// chunkTxRunner adapts the postgres runner to service.TxRunner.
type chunkTxRunner struct {
	runner *repository.TxRunner
}

func (r chunkTxRunner) WithTx(ctx context.Context, fn func(store service.ChunkStore) error) error {
	return r.runner.WithTx(ctx, func(chunks *repository.ChunkRepository) error {
		return fn(chunks)
	})
}

func (a *App) newEmbedder(ctx context.Context) (service.EmbeddingFunction, error) {
	cfg := a.Config

	var (
		embedder service.EmbeddingFunction
		model    string
	)
	switch cfg.EmbeddingsProvider {
	case config.ProviderOpenAI:
		client, err := openai.NewClient(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingsModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
		})
		if err != nil {
			return nil, err
		}
		embedder, model = client, client.Model()
	case config.ProviderLocal:
		hashing := embedding.NewHashingEmbedder(cfg.EmbeddingDimensions)
		embedder, model = hashing, fmt.Sprintf("hashing-%d", hashing.Dimensions())
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.EmbeddingsProvider)
	}

	if !cfg.HasRedis() {
		return embedder, nil
	}

	client, err := embedding.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		log.Printf("embedding cache disabled: %v", err)
		return embedder, nil
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	log.Printf("embedding cache: redis %s (model %s)", cfg.RedisAddr, model)
	return embedding.NewCache(embedder, embedding.NewRedisKV(client), model, cfg.EmbeddingCacheTTL), nil
}

// LoadApp loads configuration from the environment and builds the App.
func LoadApp(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewApp(ctx, cfg, opts)
}
