package app

import (
	"context"
	"fmt"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/adapters"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/common"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/handlers"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/httpclient"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/queue"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/diagnostics"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/embeddings"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/events"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/health"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/index"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/ingest"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/pipeline"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/scheduler"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/transform"
	badgerstore "github.com/snsettitech/verified-digital-twin-brains-sub009/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	// Pipeline services
	TransformService interfaces.TransformService
	EmbeddingService interfaces.EmbeddingService
	IndexService     interfaces.IndexService
	Registry         *pipeline.Registry
	Executor         *pipeline.Executor

	// Queue
	QueueManager *queue.Manager
	WorkerPool   *queue.WorkerPool

	// Source lifecycle services
	IngestService      interfaces.IngestService
	DiagnosticsService interfaces.DiagnosticsService
	HealthService      interfaces.HealthService
	SchedulerService   interfaces.SchedulerService

	// HTTP handlers
	SourcesHandler     *handlers.SourcesHandler
	DiagnosticsHandler *handlers.DiagnosticsHandler
	HealthHandler      *handlers.HealthHandler
	QueueHandler       *handlers.QueueHandler
	StatusHandler      *handlers.StatusHandler
	WSHandler          *handlers.WebSocketHandler

	renderer *adapters.Renderer
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badgerstore.NewManager(logger, &cfg.Storage.Badger, cfg.Diagnostics.Enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.EventService = events.NewService(logger)

	if err := app.initPipeline(); err != nil {
		app.StorageManager.Close()
		return nil, err
	}

	app.initServices()
	app.initHandlers()

	return app, nil
}

// initPipeline wires the transform, embedding and provider adapter stack
// together with the queue and executor.
func (a *App) initPipeline() error {
	cfg := a.Config

	a.TransformService = transform.NewService(cfg.Embeddings.ChunkSize, cfg.Embeddings.ChunkOverlap, a.Logger)

	if cfg.Embeddings.Mode == "genai" && cfg.Embeddings.APIKey != "" {
		embedder, err := embeddings.NewGeminiService(context.Background(), cfg.Embeddings.APIKey, cfg.Embeddings.Model, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize embedding service: %w", err)
		}
		a.EmbeddingService = embedder
	} else {
		a.Logger.Info().Msg("No embedding API key configured, using offline embeddings")
		a.EmbeddingService = embeddings.NewOfflineService(a.Logger)
	}

	a.IndexService = index.NewService(a.StorageManager.VectorStorage(), a.Logger)

	client := httpclient.NewClient(
		cfg.Crawler.RequestTimeoutDuration(),
		cfg.Crawler.UserAgent,
		cfg.Crawler.MaxBodySize,
		cfg.Crawler.RequestsPerHost,
		a.Logger,
	)

	if cfg.Crawler.EnableJavaScript {
		a.renderer = adapters.NewRenderer(cfg.Crawler.UserAgent, cfg.Crawler.JavaScriptWaitDuration(), a.Logger)
	}

	deps := adapters.Deps{
		Transform: a.TransformService,
		Embedder:  a.EmbeddingService,
		Indexer:   a.IndexService,
		Documents: a.StorageManager.DocumentStorage(),
		Logger:    a.Logger,
	}

	a.Registry = pipeline.NewRegistry()
	a.Registry.Register(adapters.NewWebAdapter(deps, client, a.renderer))
	a.Registry.Register(adapters.NewYouTubeAdapter(deps, client))
	a.Registry.Register(adapters.NewXAdapter(deps, client))
	a.Registry.Register(adapters.NewLinkedInAdapter(deps, client))
	a.Registry.Register(adapters.NewPodcastAdapter(deps, client))
	a.Registry.Register(adapters.NewFileAdapter(deps, a.StorageManager.BlobStorage()))

	policy := pipeline.DefaultPolicy(a.Logger)
	if cfg.Pipeline.PolicyFile != "" {
		loaded, err := pipeline.LoadPolicy(cfg.Pipeline.PolicyFile, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to load retry policy: %w", err)
		}
		policy = loaded
	}

	classifier := pipeline.NewClassifier(policy, cfg.Pipeline.DebugErrors)

	recorder := diagnostics.NewRecorder(
		a.StorageManager.SourceStorage(),
		a.StorageManager.EventStorage(),
		a.EventService,
		cfg.Diagnostics.LegacyLogPath,
		a.Logger,
	)

	a.QueueManager = queue.NewManager(a.StorageManager.JobStorage(), a.EventService, a.Logger)

	stepTimeout, err := cfg.Pipeline.StepTimeoutDuration()
	if err != nil {
		return err
	}

	a.Executor = pipeline.NewExecutor(
		a.StorageManager.SourceStorage(),
		a.StorageManager.DocumentStorage(),
		a.QueueManager,
		a.Registry,
		recorder,
		classifier,
		policy,
		stepTimeout,
		a.Logger,
	)
	a.QueueManager.SetExecutor(a.Executor)

	pollInterval, err := cfg.Queue.PollIntervalDuration()
	if err != nil {
		return err
	}
	a.WorkerPool = queue.NewWorkerPool(
		a.QueueManager,
		a.Executor,
		a.StorageManager.JobStorage(),
		cfg.Queue.Concurrency,
		pollInterval,
		a.Logger,
	)

	return nil
}

// initServices wires the source lifecycle services on top of the pipeline
func (a *App) initServices() {
	cfg := a.Config

	a.HealthService = health.NewChecker(
		a.StorageManager.SourceStorage(),
		a.StorageManager.DocumentStorage(),
		a.StorageManager.HealthStorage(),
		a.EventService,
		cfg.Pipeline.MinTextChars,
		a.Logger,
	)
	a.Executor.SetHealthService(a.HealthService)

	a.IngestService = ingest.NewService(a.StorageManager, a.QueueManager, a.EventService, a.Logger)

	a.DiagnosticsService = diagnostics.NewService(
		a.StorageManager.EventStorage(),
		a.StorageManager.SourceStorage(),
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(
		a.StorageManager.JobStorage(),
		a.StorageManager.SourceStorage(),
		a.HealthService,
		a.QueueManager,
		cfg.Scheduler.HealthSweep,
		cfg.Scheduler.StaleRecovery,
		cfg.Queue.StaleThresholdDuration(),
		a.Logger,
	)
}

// initHandlers wires the HTTP handlers
func (a *App) initHandlers() {
	a.SourcesHandler = handlers.NewSourcesHandler(a.IngestService, a.Logger)
	a.DiagnosticsHandler = handlers.NewDiagnosticsHandler(a.DiagnosticsService, a.Logger)
	a.HealthHandler = handlers.NewHealthHandler(a.HealthService, a.Logger)
	a.QueueHandler = handlers.NewQueueHandler(a.QueueManager, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.QueueManager, a.DiagnosticsService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger)
}

// Start launches the background workers and the maintenance scheduler
func (a *App) Start() error {
	if err := a.WorkerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	if a.Config.Scheduler.Enabled {
		if err := a.SchedulerService.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	return nil
}

// Close shuts down background work first, then storage
func (a *App) Close() error {
	if a.SchedulerService != nil && a.Config.Scheduler.Enabled {
		a.SchedulerService.Stop()
	}

	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Worker pool stop reported an error")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	return nil
}
