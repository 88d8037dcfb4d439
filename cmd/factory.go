package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/soundjacket/metapub/internal/assets"
	"github.com/soundjacket/metapub/internal/catalog"
	"github.com/soundjacket/metapub/internal/config"
	"github.com/soundjacket/metapub/internal/httpclient"
	"github.com/soundjacket/metapub/internal/metadata"
	"github.com/soundjacket/metapub/internal/pipeline"
	"github.com/soundjacket/metapub/internal/publish"
	"github.com/soundjacket/metapub/internal/retry"
	"github.com/soundjacket/metapub/internal/template"
	"github.com/soundjacket/metapub/internal/upload"
)

func uploadPolicy(cfg *config.Config) retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.UploadMaxAttempts
	return policy
}

func newHTTPClient(cfg *config.Config, policy retry.Policy) *httpclient.Client {
	return httpclient.New(httpclient.Config{
		Timeout:   cfg.HTTPTimeout,
		RateLimit: cfg.RateLimit,
		Retry:     policy,
	})
}

func newUploader(ctx context.Context, cfg *config.Config) (upload.Uploader, error) {
	var backend upload.Uploader
	switch cfg.UploadBackend {
	case "moralis":
		client := newHTTPClient(cfg, uploadPolicy(cfg))
		backend = upload.NewMoralis(cfg.Moralis.ServerURL, cfg.Moralis.AppID, cfg.Moralis.MasterKey, cfg.GatewayURL, client)
	case "s3":
		s3, err := upload.NewS3(ctx, upload.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
			CreateBucket:    cfg.S3.CreateBucket,
			Retry:           uploadPolicy(cfg),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 uploader: %w", err)
		}
		backend = s3
	default:
		return nil, fmt.Errorf("unsupported upload backend: %s", cfg.UploadBackend)
	}
	return upload.NewDedup(backend), nil
}

func newStore(ctx context.Context, cfg *config.Config) (catalog.Store, error) {
	switch cfg.CatalogBackend {
	case "mongo":
		return catalog.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
	case "postgres":
		return catalog.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "parquet":
		return catalog.NewParquetStore(cfg.ParquetPath), nil
	case "memory":
		return catalog.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported catalog backend: %s", cfg.CatalogBackend)
	}
}

// newIndexingRunner builds a runner that can only index. The returned close
// function releases the catalog store.
func newIndexingRunner(ctx context.Context, cfg *config.Config) (*pipeline.Runner, catalog.Store, func(), error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	closeStore := func() {
		// the run context may already be cancelled here
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			slog.Error("Failed to close catalog store", "backend", cfg.CatalogBackend, "err", err)
		}
	}

	runID := uuid.NewString()
	client := newHTTPClient(cfg, retry.DefaultPolicy())
	runner := &pipeline.Runner{
		RunID:           runID,
		EditionSize:     cfg.EditionSize,
		Indexer:         catalog.NewIndexer(catalog.NewClient(cfg.GatewayURL, client), store, cfg.IndexConcurrency, runID),
		MetricsTextfile: cfg.MetricsTextfile,
		ReportDir:       cfg.OutputDir,
	}
	return runner, store, closeStore, nil
}

// newRunner wires every stage from cfg
func newRunner(ctx context.Context, cfg *config.Config) (*pipeline.Runner, func(), error) {
	tpl, err := template.Load(cfg.TemplatePath)
	if err != nil {
		return nil, nil, err
	}

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	runner, _, closeStore, err := newIndexingRunner(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	persister := metadata.NewPersister(cfg.OutputDir)
	runner.Template = *tpl
	runner.Locator = assets.NewLocator(cfg.ImageDir(), cfg.AudioFile, cfg.ImageExtensions)
	runner.Uploader = uploader
	runner.UploadConcurrency = cfg.UploadConcurrency
	runner.Persister = persister
	runner.Publisher = publish.New(cfg.PublishURL, cfg.APIKey, cfg.ReadConcurrency, persister, newHTTPClient(cfg, retry.DefaultPolicy()))

	return runner, closeStore, nil
}
