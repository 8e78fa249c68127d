package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"certmap/internal/config"
	"certmap/internal/extractor"
	"certmap/internal/handler"
	"certmap/internal/ingest"
	"certmap/internal/port"
	"certmap/internal/repository/postgres"
	"certmap/internal/repository/sqlite"
	"certmap/internal/router"
	"certmap/internal/service"
	"certmap/internal/storage/local"
	s3storage "certmap/internal/storage/s3"
)

const shutdownTimeout = 15 * time.Second

// @title certmap API
// @version 1.0
// @description Maps certificate PDFs to title, issuer, recipient and date fields.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, docRepo, auditRepo, err := openRepositories(&cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}

	// Initialize services
	ext := extractor.New(cfg.Extraction.Timeout())
	broadcaster := service.NewStatusBroadcaster()
	recorder := service.NewAuditRecorder(auditRepo)
	pipeline := service.NewPipeline(docRepo, storage, ext, recorder, broadcaster)
	worker := service.NewPipelineWorker(pipeline, docRepo, broadcaster, cfg.Queue.Size)
	docSvc := service.NewDocumentService(docRepo, auditRepo, storage, ext, pipeline, worker, recorder, broadcaster, service.DocumentConfig{
		MaxFileSize:  cfg.Storage.MaxFileSize(),
		MaxFiles:     cfg.Storage.MaxFiles,
		SyncMaxBytes: cfg.Extraction.SyncMaxBytes,
	})

	// Pick up work a previous process left behind before taking new uploads.
	n, err := worker.RequeueUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("failed to requeue unfinished documents: %w", err)
	}
	if n > 0 {
		log.Printf("requeued %d unfinished document(s)", n)
	}

	// Initialize handlers
	docH := handler.NewDocumentHandler(docSvc)
	mapH := handler.NewMappingHandler(docSvc)
	eventsH := handler.NewEventsHandler(docSvc)
	healthH := handler.NewHealthHandler(db, worker)

	opts := router.Options{
		JWT:         cfg.JWT,
		RateLimit:   cfg.RateLimit,
		CORSOrigins: cfg.CORS.AllowedOrigins,
	}
	if cfg.Storage.Provider == config.StorageLocal {
		opts.StaticDir = cfg.Storage.Dir
	}
	r := router.Setup(opts, docH, mapH, eventsH, healthH)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Start(gctx)
		return nil
	})
	if cfg.Ingest.Dir != "" {
		watcher := ingest.NewWatcher(ingest.WatchConfig{
			Dir:      cfg.Ingest.Dir,
			Debounce: cfg.Ingest.Debounce,
			Uploader: cfg.Ingest.Uploader,
		}, docSvc)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		log.Printf("Server starting on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// configureLogging applies log.format ("plain" drops timestamps for platforms
// that add their own) and runs gin in release mode outside debug.
func configureLogging(cfg *config.Config) {
	if cfg.Log.Format == "plain" {
		log.SetFlags(0)
	} else {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
	if cfg.Log.Level != "debug" || cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
}

func openRepositories(cfg *config.DBConfig) (*sqlx.DB, port.DocumentRepository, port.AuditRepository, error) {
	if cfg.Driver == config.DriverSQLite {
		db, err := sqlite.NewDB(cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return db, sqlite.NewDocumentRepo(db), sqlite.NewMappingAuditRepo(db), nil
	}
	db, err := postgres.NewDB(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, postgres.NewDocumentRepo(db), postgres.NewMappingAuditRepo(db), nil
}

func openStorage(ctx context.Context, cfg *config.Config) (port.ObjectStorage, error) {
	if cfg.Storage.Provider == config.StorageS3 {
		s, err := s3storage.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
		}
		return s, nil
	}
	s, err := local.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}
	return s, nil
}
