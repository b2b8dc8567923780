// Package server initializes and runs the attachment sync server. It opens
// the database, runs migrations, selects the content store backend, and
// starts the HTTP endpoint, the queue workers and the maintenance janitor,
// shutting everything down gracefully on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/mpetrovs/attachsync/internal/logging"
	"github.com/mpetrovs/attachsync/internal/server/cas"
	"github.com/mpetrovs/attachsync/internal/server/chunks"
	"github.com/mpetrovs/attachsync/internal/server/config"
	"github.com/mpetrovs/attachsync/internal/server/httpapi"
	"github.com/mpetrovs/attachsync/internal/server/remote"
	"github.com/mpetrovs/attachsync/internal/server/repositories/repomanager"
	"github.com/mpetrovs/attachsync/internal/server/syncer"
	"github.com/mpetrovs/attachsync/internal/server/webhooks"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	router  http.Handler
	workers []*syncer.Worker
	janitor *syncer.Janitor
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewDefault()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("content store init error: %w", err)
	}

	remoteClient := remote.NewAzureClient(remote.AzureOptions{
		BaseURL: cfg.RemoteBaseURL,
		PAT:     cfg.RemotePAT,
		Timeout: cfg.RequestTimeout,
	}, logger)

	chunkMgr, err := chunks.NewManager(repos.Sessions(db), chunks.Options{
		StagingDir:   filepath.Join(cfg.StorageBasePath, "staging"),
		MaxFileSize:  cfg.MaxFileSize,
		MaxChunkSize: cfg.ChunkSize,
		SessionTTL:   cfg.SessionTTL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("chunk manager init error: %w", err)
	}

	orch := syncer.NewOrchestrator(db, repos, store, remoteClient, cfg.MaxFileSize, logger)
	ingestor := webhooks.NewIngestor(cfg.WebhookSecret, repos.Jobs(db), repos.Events(db), logger)

	workers := make([]*syncer.Worker, 0, cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		workers = append(workers, syncer.NewWorker(db, repos, store, remoteClient, syncer.WorkerOptions{
			MaxRetries:   cfg.MaxRetryCount,
			BackoffBase:  cfg.RetryBackoffBase,
			BackoffCap:   cfg.RetryBackoffCap,
			PollInterval: cfg.WorkerPollInterval,
		}, logger))
	}

	janitor := syncer.NewJanitor(db, repos, store, chunkMgr, cfg.RetentionWindow, cfg.JanitorInterval, logger)

	router := httpapi.NewRouter(httpapi.NewHandler(orch, chunkMgr, ingestor, logger), logger)

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		router:  router,
		workers: workers,
		janitor: janitor,
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (cas.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendS3:
		return cas.NewS3Store(ctx, cas.S3Options{
			User:         cfg.S3RootUser,
			Password:     cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	case config.BackendDisk:
		return cas.NewDiskStore(cfg.StorageBasePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{Addr: app.config.Addr, Handler: app.router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, "http server error", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting attachment sync server")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	for _, w := range app.workers {
		wg.Add(1)
		go func(w *syncer.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.janitor.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "server stopped")
}
