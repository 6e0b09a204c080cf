package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/bryanwahyu/photo-tagger/internal/application"
	"github.com/bryanwahyu/photo-tagger/internal/application/analysis"
	"github.com/bryanwahyu/photo-tagger/internal/config"
	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
	"github.com/bryanwahyu/photo-tagger/internal/infra/ai/anthropic"
	"github.com/bryanwahyu/photo-tagger/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/photo-tagger/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/photo-tagger/internal/infra/db/postgres"
	"github.com/bryanwahyu/photo-tagger/internal/infra/places"
	minioStore "github.com/bryanwahyu/photo-tagger/internal/infra/storage"
	"github.com/bryanwahyu/photo-tagger/internal/logging"
	"github.com/bryanwahyu/photo-tagger/internal/retry"
)

// app holds everything built from config; Close releases the database.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *sql.DB
	service   *analysis.Service
	scheduler *analysis.Scheduler
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config load error: %w", err)
	}
	logger, err := logging.New(cfg.IsDevelopment(), cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("logger init error: %w", err)
	}
	return cfg, logger, nil
}

// openDB connects with the configured driver. Migrations need MySQL multi statements.
func openDB(ctx context.Context, cfg *config.Config, forMigrate bool) (*sql.DB, error) {
	d := cfg.Database
	if d.Driver == "postgres" {
		return pgp.Connect(ctx, cfg.PostgresDSN(), d.MaxOpenConns, d.MaxIdleConns)
	}
	dsn := cfg.MySQLDSN()
	if forMigrate {
		dsn = cfg.MySQLMigrateDSN()
	}
	return mysqlp.Connect(ctx, dsn, d.MaxOpenConns, d.MaxIdleConns)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, cfg, false)
	if err != nil {
		return nil, fmt.Errorf("%s connect error: %w", cfg.Database.Driver, err)
	}

	var repo photos.Repository
	if cfg.Database.Driver == "postgres" {
		repo = pgp.NewPhotoRepository(db)
	} else {
		repo = mysqlp.NewPhotoRepository(db)
	}

	store, err := minioStore.New(ctx, minioStore.Options{
		Endpoint:         cfg.Minio.Endpoint,
		Region:           cfg.Minio.Region,
		AccessKey:        cfg.Minio.AccessKey,
		SecretKey:        cfg.Minio.SecretKey,
		UseSSL:           cfg.Minio.UseSSL,
		OriginalsBucket:  cfg.Minio.OriginalsBucket,
		ThumbnailsBucket: cfg.Minio.ThumbnailsBucket,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("minio init error: %w", err)
	}

	svc := &analysis.Service{
		Repo:   repo,
		Blobs:  store,
		Clock:  application.SystemClock{},
		Logger: logger,
		Policy: policyFromConfig(cfg),
	}
	if err := wireProviders(svc, cfg, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		service:   svc,
		scheduler: analysis.NewScheduler(svc),
	}, nil
}

// wireProviders only sets a port when its key is configured; a nil port is
// reported as a skipped provider.
func wireProviders(svc *analysis.Service, cfg *config.Config, logger *zap.Logger) error {
	p := cfg.Providers
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = p.Retry.MaxRetries
	retryCfg.InitialDelay = p.Retry.InitialDelay
	retryCfg.MaxDelay = p.Retry.MaxDelay

	if p.OpenAI.APIKey != "" {
		svc.Vision = openai.NewClient(p.OpenAI.APIKey, p.OpenAI.BaseURL, p.OpenAI.Model, retryCfg, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set, vision classifier disabled")
	}
	if p.Anthropic.APIKey != "" {
		svc.Describer = anthropic.NewDescriber(p.Anthropic.APIKey, p.Anthropic.BaseURL, p.Anthropic.Model, retryCfg, logger)
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, semantic describer disabled")
	}
	if p.Google.APIKey != "" {
		resolver, err := places.NewResolver(p.Google.APIKey, retryCfg, logger)
		if err != nil {
			return err
		}
		svc.Places = resolver
	} else {
		logger.Warn("GOOGLE_MAPS_API_KEY not set, place resolver disabled")
	}
	return nil
}

func policyFromConfig(cfg *config.Config) analysis.Policy {
	a := cfg.Analysis
	policy := analysis.DefaultPolicy()
	policy.Defaults = analysis.Defaults{
		MinConfidence:     a.MinConfidence,
		UseThumbnail:      a.UseThumbnail,
		PlaceSearchRadius: a.PlaceSearchRadius,
		MaxParallelism:    a.MaxParallelism,
	}
	policy.Categories.IDs = analysis.CategoryIDs{
		AI:       a.Categories.AI,
		Location: a.Categories.Location,
		Scene:    a.Categories.Scene,
	}
	if len(a.SceneKeywords) > 0 {
		policy.Categories.SceneKeywords = a.SceneKeywords
	}
	if len(a.PlaceTypeLabels) > 0 {
		labels := make(map[string]string, len(analysis.DefaultPlaceTypeLabels)+len(a.PlaceTypeLabels))
		for k, v := range analysis.DefaultPlaceTypeLabels {
			labels[k] = v
		}
		for k, v := range a.PlaceTypeLabels {
			labels[k] = v
		}
		policy.PlaceTypeLabels = labels
	}
	policy.PersistThreshold = a.PersistThreshold
	policy.ProviderTimeout = cfg.Providers.Timeout
	policy.MaxPayloadBytes = cfg.MaxPayloadBytes()
	policy.DescriberMaxEdge = a.DescriberMaxEdge
	return policy
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}
