package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/fetcher"
	"github.com/ternarybob/lectern/internal/handlers"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/pipeline"
	"github.com/ternarybob/lectern/internal/pipeline/remote"
	"github.com/ternarybob/lectern/internal/pipelines"
	"github.com/ternarybob/lectern/internal/services/embeddings"
	"github.com/ternarybob/lectern/internal/services/events"
	"github.com/ternarybob/lectern/internal/services/scheduler"
	"github.com/ternarybob/lectern/internal/services/search"
	"github.com/ternarybob/lectern/internal/splitter"
	"github.com/ternarybob/lectern/internal/storage/sqlite"
)

// App holds all application components and dependencies. With a remote URL
// configured the pipeline manager proxies an external daemon; everything
// else stays local.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Database *sqlite.Database
	Store    interfaces.DocumentStore
	Embedder interfaces.EmbeddingProvider

	EventService  interfaces.EventService
	Manager       interfaces.PipelineManager
	SearchService interfaces.SearchService
	Scheduler     *scheduler.Service

	// HTTP handlers
	JobHandler     *handlers.JobHandler
	SearchHandler  *handlers.SearchHandler
	LibraryHandler *handlers.LibraryHandler
	StatusHandler  *handlers.StatusHandler
	WSHandler      *handlers.WebSocketHandler
}

func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	app.EventService = events.NewService(logger)

	if err := app.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initPipeline(); err != nil {
		app.Database.Close()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	app.SearchService = search.NewService(app.Store, app.Embedder, cfg.Search, logger)
	app.Scheduler = scheduler.NewService(app.Store, app.Manager, cfg.Refresh, logger)

	app.JobHandler = handlers.NewJobHandler(app.Manager, logger)
	app.SearchHandler = handlers.NewSearchHandler(app.SearchService, logger)
	app.LibraryHandler = handlers.NewLibraryHandler(app.Store, app.EventService, logger)
	app.StatusHandler = handlers.NewStatusHandler(app.Store, logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger)

	logger.Info().
		Str("database", app.Database.Path()).
		Str("embeddings", cfg.Embeddings.Provider).
		Bool("remote", cfg.Server.RemoteURL != "").
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initStorage(ctx context.Context) error {
	dataDir, err := common.ResolveDataDir(a.Config)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(dataDir, a.Config.Storage, a.Logger)
	if err != nil {
		return err
	}
	a.Database = db

	embedder, err := embeddings.NewProvider(ctx, a.Config.Embeddings, a.Logger)
	if err != nil {
		db.Close()
		return err
	}
	a.Embedder = embedder

	a.Store = sqlite.NewStore(db, embedder, a.Logger)
	return nil
}

func (a *App) initPipeline() error {
	if a.Config.Server.RemoteURL != "" {
		a.Manager = remote.NewManager(a.Config.Server.RemoteURL, a.EventService, a.Logger)
		return nil
	}

	splitOpts := splitter.DefaultOptions()
	if a.Config.Splitter.MinChunkSize > 0 {
		splitOpts.MinSize = a.Config.Splitter.MinChunkSize
	}
	if a.Config.Splitter.PreferredChunkSize > 0 {
		splitOpts.PreferredSize = a.Config.Splitter.PreferredChunkSize
	}
	if a.Config.Splitter.MaxChunkSize > 0 {
		splitOpts.MaxSize = a.Config.Splitter.MaxChunkSize
	}
	registry := pipelines.NewRegistry(splitOpts, a.Logger)

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPFetcherConfig{
		Timeout:           a.Config.Fetcher.RequestTimeout,
		MaxRetries:        a.Config.Fetcher.MaxRetries,
		RetryBaseDelay:    a.Config.Fetcher.RetryBaseDelay,
		UserAgentRotation: a.Config.Fetcher.UserAgentRotation,
	}, a.Logger)
	browserFetcher := fetcher.NewBrowserFetcher(a.Config.Fetcher.BrowserTimeout, a.Logger)
	fileFetcher := fetcher.NewFileFetcher(a.Logger)

	strategy := pipeline.NewStrategy(httpFetcher, browserFetcher, fileFetcher, registry, a.Config.Fetcher, a.Logger)
	worker := pipeline.NewWorker(a.Store, strategy, a.Logger)
	a.Manager = pipeline.NewManager(a.Store, worker, a.EventService, a.Config.Pipeline, a.Logger)
	return nil
}

// Start brings up the pipeline manager (including job recovery) and the
// refresh schedule.
func (a *App) Start(ctx context.Context) error {
	if err := a.Manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline manager: %w", err)
	}
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close shuts components down in reverse dependency order.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.Manager.Stop(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop pipeline manager")
		}
		cancel()
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}
	if a.EventService != nil {
		a.EventService.Close()
	}

	if a.Database != nil {
		if err := a.Database.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close database")
			return err
		}
	}

	a.Logger.Info().Msg("Application shut down")
	return nil
}
