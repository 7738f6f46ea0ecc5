// Package app builds the long-lived services from configuration and owns
// their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/equipment-crawler/internal/api"
	"github.com/JakeFAU/equipment-crawler/internal/classify"
	"github.com/JakeFAU/equipment-crawler/internal/clock/system"
	"github.com/JakeFAU/equipment-crawler/internal/config"
	"github.com/JakeFAU/equipment-crawler/internal/crawler"
	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/equipment-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/equipment-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/equipment-crawler/internal/headless/detector"
	"github.com/JakeFAU/equipment-crawler/internal/id/uuid"
	"github.com/JakeFAU/equipment-crawler/internal/images"
	"github.com/JakeFAU/equipment-crawler/internal/metrics"
	"github.com/JakeFAU/equipment-crawler/internal/persist"
	"github.com/JakeFAU/equipment-crawler/internal/pipeline"
	"github.com/JakeFAU/equipment-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/equipment-crawler/internal/progress"
	"github.com/JakeFAU/equipment-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/equipment-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/equipment-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/equipment-crawler/internal/source"
	"github.com/JakeFAU/equipment-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/equipment-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/equipment-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/equipment-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/equipment-crawler/internal/storage/postgres"
	"github.com/JakeFAU/equipment-crawler/internal/telemetry"
)

// closeTimeout bounds flushing of run events and spans on Close.
const closeTimeout = 5 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *source.Registry
	pipeline  *pipeline.Service
	apiServer *api.Server
	headless  *headlessfetcher.Fetcher
	pool      interface{ Close() }
	blobs     *gcsstorage.BlobStore
	publisher *gcppublisher.Publisher
	hub       *progress.Hub
	tracer    *sdktrace.TracerProvider
}

// Pipeline returns the parser service.
func (a *App) Pipeline() *pipeline.Service {
	return a.pipeline
}

// Registry returns the effective source registry.
func (a *App) Registry() *source.Registry {
	return a.registry
}

// Sources lists the effective source definitions in registration order.
func (a *App) Sources() []source.Config {
	return a.registry.All()
}

// StartParsing runs the parser once.
func (a *App) StartParsing(ctx context.Context, opts equipment.Options) (equipment.ParseResult, error) {
	res, err := a.pipeline.StartParsing(ctx, opts)
	if err != nil {
		return res, fmt.Errorf("start parsing: %w", err)
	}
	return res, nil
}

// Handler returns the HTTP control surface.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Build creates the application's dependencies. On error everything opened
// so far is closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.closeInfrastructure()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies")

	tp, err := telemetry.InitTracerProvider(ctx, a.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry init failed: %w", err)
	}
	a.tracer = tp
	if a.cfg.Telemetry.ProjectID != "" {
		a.logger.Info("exporting traces to Cloud Trace", zap.String("project", a.cfg.Telemetry.ProjectID))
	}

	registry, err := setupRegistry(a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.registry = registry

	ids := uuid.New()
	clock := system.New()
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Crawler.UserAgent,
		RespectRobots: !a.cfg.Crawler.IgnoreRobots,
		Timeout:       a.cfg.FetchTimeout(),
		MaxBodySize:   a.cfg.HTTP.MaxBodyBytes,
	})
	a.logger.Info("using colly fetcher", zap.String("user_agent", a.cfg.Crawler.UserAgent))

	crawl, err := a.setupCrawler(static, clock)
	if err != nil {
		return err
	}

	blobStore, err := a.setupStorage(ctx, storage.ObjectNamer{Prefix: a.cfg.Storage.Prefix, IDs: ids})
	if err != nil {
		return err
	}
	var resolver persist.ImageResolver
	if a.cfg.Images.Enabled {
		resolver = images.New(images.Config{
			MinBytes:      a.cfg.Images.MinBytes,
			SearchURL:     a.cfg.Images.SearchURL,
			SearchResults: a.cfg.Images.SearchResults,
			Timeout:       time.Duration(a.cfg.Images.TimeoutSeconds) * time.Second,
		}, static, blobStore, a.logger)
		a.logger.Info("image re-hosting enabled", zap.Int64("min_bytes", a.cfg.Images.MinBytes))
	}

	repo, runs, err := a.setupDatabase(ctx, ids)
	if err != nil {
		return err
	}

	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	persister, err := persist.New(persist.Config{
		BatchSize:   a.cfg.Persist.BatchSize,
		Concurrency: a.cfg.Persist.Concurrency,
		BatchDelay:  a.cfg.BatchDelay(),
		Topic:       a.cfg.Persist.Topic,
	}, repo, resolver, publisher, a.logger)
	if err != nil {
		return fmt.Errorf("persister init failed: %w", err)
	}

	live := a.setupProgress()

	deps := pipeline.Dependencies{
		Registry:  registry,
		Crawler:   crawl,
		Persister: persister,
		Runs:      runs,
		IDs:       ids,
		Clock:     clock,
		Progress:  a.hub,
		Logger:    a.logger,
	}
	a.pipeline, err = pipeline.New(pipeline.Config{
		DefaultSources:  a.cfg.Crawler.DefaultSources,
		DefaultMaxItems: a.cfg.Crawler.DefaultMaxItems,
	}, deps)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}

	a.apiServer = api.NewServer(a.pipeline, registry.Keys(), clock, a.logger.Named("api"), api.WithProgress(live))
	return nil
}

// setupProgress starts the run event hub. The live sink backs the status
// endpoint; the log sink is opt-in because it logs every page.
func (a *App) setupProgress() *sinks.LiveSink {
	live := sinks.NewLiveSink()
	hubSinks := []progress.Sink{live}
	if a.cfg.Progress.LogEvents {
		hubSinks = append(hubSinks, sinks.NewLogSink(a.logger.Named("progress")))
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.ProgressWait(),
		Logger:         a.logger,
	}, hubSinks...)
	return live
}

func setupRegistry(cfg config.Config, logger *zap.Logger) (*source.Registry, error) {
	registry := source.Default()
	if len(cfg.Sources) == 0 {
		return registry, nil
	}
	registry, err := registry.WithOverrides(cfg.Sources)
	if err != nil {
		return nil, fmt.Errorf("source overrides: %w", err)
	}
	for _, src := range registry.All() {
		logger.Debug("source configured",
			zap.String("source", src.Key),
			zap.Bool("enabled", src.Enabled),
			zap.Duration("delay", src.Delay),
			zap.Int("max_retries", src.MaxRetries),
		)
	}
	return registry, nil
}

func (a *App) setupCrawler(static equipment.Fetcher, clock equipment.Clock) (*crawler.Crawler, error) {
	deps := crawler.Dependencies{
		Static:  static,
		Limiter: ratelimit.New(ratelimit.Config{DefaultInterval: time.Duration(a.cfg.Crawler.DefaultDelayMs) * time.Millisecond}),
		Builder: extract.New(classify.Default(), clock),
		Logger:  a.logger,
	}
	if a.cfg.Headless.Enabled {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
			ExecPath:          a.cfg.Headless.ExecPath,
			NoSandbox:         a.cfg.Headless.NoSandbox,
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			a.headless = headless
			deps.Headless = headless
			deps.Detector = detector.NewHeuristic(a.cfg.Headless.PromotionThresh)
			a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		}
	}
	c, err := crawler.New(crawler.Config{DetailConcurrency: a.cfg.Crawler.DetailConcurrency}, deps)
	if err != nil {
		return nil, fmt.Errorf("crawler init failed: %w", err)
	}
	return c, nil
}

func (a *App) setupStorage(ctx context.Context, namer storage.ObjectNamer) (equipment.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{
			Bucket:        a.cfg.Storage.Bucket,
			Prefix:        a.cfg.Storage.Prefix,
			PublicBaseURL: a.cfg.Storage.PublicBaseURL,
		}, namer, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.blobs = store
		return store, nil
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		store, err := localstorage.New(a.cfg.Storage.Local, namer)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(namer), nil
	}
}

func (a *App) setupDatabase(ctx context.Context, ids equipment.IDGenerator) (equipment.Repository, pipeline.RunRecorder, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, keeping records in memory")
		return memorystorage.NewEquipmentStore(ids), nil, nil
	}
	pool, err := pgstore.OpenPool(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("database init failed: %w", err)
	}
	a.pool = pool
	if a.cfg.DB.EnsureSchema {
		if err := pgstore.EnsureSchema(ctx, pool, a.cfg.DB.EquipmentTable, a.cfg.DB.RunTable); err != nil {
			return nil, nil, fmt.Errorf("ensure schema failed: %w", err)
		}
	}
	repo, err := pgstore.NewEquipmentRepository(pool, a.cfg.DB.EquipmentTable, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("equipment repository init failed: %w", err)
	}
	runs, err := pgstore.NewRunStore(pool, a.cfg.DB.RunTable)
	if err != nil {
		return nil, nil, fmt.Errorf("run store init failed: %w", err)
	}
	a.logger.Info("postgres repository initialized",
		zap.String("equipment_table", a.cfg.DB.EquipmentTable),
		zap.String("run_table", a.cfg.DB.RunTable),
	)
	return repo, runs, nil
}

func (a *App) setupPublisher(ctx context.Context) (equipment.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	p, err := gcppublisher.Open(ctx, gcppublisher.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		Topics:    a.cfg.PubSub.Topics,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = p
	a.logger.Info("Pub/Sub publisher initialized", zap.String("project", a.cfg.PubSub.ProjectID))
	return p, nil
}

// Serve runs the HTTP server until ctx is canceled or SIGINT/SIGTERM
// arrives, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases every opened client.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.hub = nil
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
		a.tracer = nil
	}
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.blobs != nil {
		if err := a.blobs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.blobs = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
