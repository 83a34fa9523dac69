// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/activity"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/activity/sinks"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/aibridge"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/api"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/clock/system"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/config"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/dashboard"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/detector"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/hash/sha256"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/id/uuid"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/logging"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/policy/ratelimit"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/probe"
	memorypublisher "github.com/JakeFAU/ai-scrapy-dashboard/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/ai-scrapy-dashboard/internal/publisher/pubsub"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/seed"
	gcsstorage "github.com/JakeFAU/ai-scrapy-dashboard/internal/storage/gcs"
	localstorage "github.com/JakeFAU/ai-scrapy-dashboard/internal/storage/local"
	memorystorage "github.com/JakeFAU/ai-scrapy-dashboard/internal/storage/memory"
	pgstore "github.com/JakeFAU/ai-scrapy-dashboard/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/ai-scrapy-dashboard/internal/storage/sqlite"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/telemetry"
	"github.com/JakeFAU/ai-scrapy-dashboard/internal/view"
)

const defaultActivityTopic = "scrapydash-activity"

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	store           scraping.ProjectStore
	activityHub     *activity.Hub
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	tracerShutdown  func(context.Context) error
	metricShutdown  func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Only non-sensitive fields are logged; credentials never leave the config.
	type SanitizedConfig struct {
		ServerPort   int    `json:"server_port"`
		StoreBackend string `json:"store_backend"`
		BlobBackend  string `json:"blob_backend"`
		AIEnabled    bool   `json:"ai_enabled"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:   cfg.Server.Port,
		StoreBackend: cfg.Store.Backend,
		BlobBackend:  cfg.Storage.Backend,
		AIEnabled:    cfg.AI.APIKey != "",
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	// The hub flushes into the publisher, so it goes first.
	if a.activityHub != nil {
		if err := a.activityHub.Close(ctx); err != nil {
			a.logger.Warn("activity hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		if err := a.pubsubPublisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("project store close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if a.metricShutdown != nil {
		if err := a.metricShutdown(ctx); err != nil {
			a.logger.Warn("metric shutdown failed", zap.Error(err))
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	tp, mp, err := telemetry.InitTelemetry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	app.metricShutdown = mp.Shutdown

	app.logger.Info("building application dependencies")
	clock := system.New()
	ids := uuid.NewUUIDGenerator()

	if err = setupStore(ctx, app, clock); err != nil {
		app.closeObservability(ctx)
		return nil, err
	}

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	ring := setupActivity(app, publisher)

	bridge, err := setupAI(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	var prober dashboard.Prober
	if cfg.Probe.Enabled {
		prober = probe.New(probe.Config{
			UserAgent:          cfg.Probe.UserAgent,
			RespectRobots:      cfg.Probe.RespectRobots,
			Timeout:            time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
			PromotionThreshold: cfg.Probe.PromotionThreshold,
			AllowPrivate:       cfg.Probe.AllowPrivate,
		}, detector.NewSPA(cfg.Probe.PromotionThreshold), logging.Named(logger, "probe"))
		app.logger.Info("preflight probe enabled", zap.String("user_agent", cfg.Probe.UserAgent))
	}

	svc, err := dashboard.New(dashboard.Deps{
		Store:        app.store,
		AI:           bridge,
		Blobs:        blobStore,
		Drive:        detector.NewDrive(cfg.Drive.Markers),
		Prober:       prober,
		Activity:     app.activityHub,
		Feed:         ring,
		Clock:        clock,
		IDs:          ids,
		Hasher:       sha256.New(),
		Logger:       logging.Named(logger, "dashboard"),
		ExportPrefix: cfg.Storage.Prefix,
	})
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("dashboard init failed: %w", err)
	}

	sessions := view.NewSessions(cfg.Sessions.Max, ids.NewSessionID)
	app.apiServer = api.NewServer(svc, sessions, *cfg, logging.Named(logger, "api"))
	return app, nil
}

func setupStore(ctx context.Context, app *App, clock scraping.Clock) error {
	var err error
	switch app.cfg.Store.Backend {
	case "postgres":
		app.logger.Info("using postgres project store", zap.String("table", app.cfg.Store.Table))
		app.store, err = pgstore.NewProjectStore(ctx, pgstore.ProjectStoreConfig{
			DSN:      app.cfg.Store.DSN,
			Table:    app.cfg.Store.Table,
			MaxConns: app.cfg.Store.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
	case "sqlite":
		app.logger.Info("using sqlite project store", zap.String("path", app.cfg.Store.SQLitePath))
		app.store, err = sqlitestore.NewProjectStore(ctx, app.cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite store init failed: %w", err)
		}
	default:
		app.logger.Info("using in-memory project store")
		app.store = memorystorage.NewProjectStore()
	}

	if !app.cfg.Store.Seed {
		return nil
	}
	projects, err := loadSeed(app.cfg.Store.SeedFile)
	if err != nil {
		return err
	}
	added, err := seed.Apply(ctx, app.store, clock, projects)
	if err != nil {
		return fmt.Errorf("seed projects failed: %w", err)
	}
	app.logger.Info("seeded projects", zap.Int("added", added), zap.Int("fixtures", len(projects)))
	return nil
}

func loadSeed(path string) ([]scraping.Project, error) {
	if path == "" {
		projects, err := seed.Default()
		if err != nil {
			return nil, fmt.Errorf("load default seed: %w", err)
		}
		return projects, nil
	}
	projects, err := seed.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load seed file: %w", err)
	}
	return projects, nil
}

func setupStorage(ctx context.Context, app *App) (scraping.BlobStore, error) {
	var blobStore scraping.BlobStore
	var err error
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Storage.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS storage backend", zap.String("bucket", app.cfg.Storage.Bucket))
	case "local":
		app.logger.Info("using local storage backend")
		blobStore, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local storage backend", zap.String("path", app.cfg.Storage.Local.BaseDir))
	default:
		app.logger.Info("using in-memory storage backend")
		blobStore = memorystorage.NewBlobStore()
	}
	return blobStore, nil
}

func setupPublisher(ctx context.Context, app *App) (scraping.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.NewPublisher(), nil
	}
	var err error
	app.pubsubPublisher, err = gcppublisher.Dial(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

// setupActivity starts the activity hub. The returned ring always receives
// events because it backs the Logs view and the refactor log summary.
func setupActivity(app *App, publisher scraping.Publisher) *sinks.Ring {
	ring := sinks.NewRing(app.cfg.Activity.RingSize)
	sinkList := []activity.Sink{ring}
	if app.cfg.Activity.LogEnabled {
		sinkList = append(sinkList, sinks.NewLogSink(logging.Named(app.logger, "activity_log")))
		app.logger.Debug("Added activity log sink")
	}
	topic := app.cfg.PubSub.TopicName
	if topic == "" {
		topic = defaultActivityTopic
	}
	sinkList = append(sinkList, sinks.NewPublisherSink(publisher, topic))

	hubCfg := activity.Config{
		BufferSize:     app.cfg.Activity.BufferSize,
		MaxBatchEvents: app.cfg.Activity.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(app.cfg.Activity.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Activity.SinkTimeoutMs) * time.Millisecond,
		Logger:         logging.Named(app.logger, "activity_hub"),
	}
	app.activityHub = activity.NewHub(hubCfg, sinkList...)
	app.logger.Info("activity hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return ring
}

func setupAI(ctx context.Context, app *App) (*aibridge.Bridge, error) {
	gen, err := aibridge.NewClient(ctx, app.cfg.AI.APIKey, app.cfg.AI.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("ai client init failed: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		PerMinute: app.cfg.AI.RatePerMinute,
		Burst:     app.cfg.AI.Burst,
	})
	bridge := aibridge.New(gen, aibridge.Config{
		IntentModel:    app.cfg.AI.IntentModel,
		CodeModel:      app.cfg.AI.CodeModel,
		FastModel:      app.cfg.AI.FastModel,
		ChatModel:      app.cfg.AI.ChatModel,
		ThinkingBudget: app.cfg.AI.ThinkingBudget,
		Language:       app.cfg.AI.Language,
		Timeout:        app.cfg.AI.Timeout(),
	}, limiter, logging.Named(app.logger, "aibridge"))
	if bridge.Available() {
		app.logger.Info("ai bridge ready",
			zap.String("code_model", app.cfg.AI.CodeModel),
			zap.Float64("rate_per_minute", app.cfg.AI.RatePerMinute),
		)
	} else {
		app.logger.Warn("no ai.api_key configured; model-backed actions will use their fallbacks")
	}
	return bridge, nil
}
