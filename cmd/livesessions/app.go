package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/example/live-sessions/internal/application"
	"github.com/example/live-sessions/internal/config"
	httptransport "github.com/example/live-sessions/internal/http"
	"github.com/example/live-sessions/internal/jobs"
	"github.com/example/live-sessions/internal/mediarepair"
	"github.com/example/live-sessions/internal/metrics"
	"github.com/example/live-sessions/internal/persistence/sqlite"
	"github.com/example/live-sessions/internal/persistence/sqlite/migration"
	"github.com/example/live-sessions/internal/provider"
	"github.com/example/live-sessions/internal/storage"
)

const serviceName = "livesessions"

// app holds the wired services of one server process.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	storage *sqlite.Storage

	sessions   *application.SessionService
	recordings *application.RecordingService
	attendance *application.AttendanceService
	auth       *application.AuthService
	users      *application.UserService

	queue      *application.RepairQueue
	reconciler *jobs.Reconciler
	handler    http.Handler
}

func newID() string {
	return uuid.NewString()
}

// openStorage opens and migrates the configured database.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlite.Storage, error) {
	store, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLitePath), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return store, nil
}

func newRepairer(cfg config.Config, logger *slog.Logger) *mediarepair.Repairer {
	return mediarepair.New(mediarepair.Config{
		MetadataCommand: cfg.Repair.MetadataTool,
		RemuxCommand:    cfg.Repair.RemuxTool,
		Timeout:         cfg.Repair.Timeout,
		Logger:          logger,
	})
}

// buildApp wires storage, the provider client and every service. The repair
// workers run until ctx is cancelled or close is called.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(serviceName, registry)

	retry := provider.DefaultRetryConfig()
	retry.MaxRetries = cfg.Provider.MaxRetries
	providerClient, err := provider.New(provider.Config{
		BaseURL:     cfg.Provider.BaseURL,
		AccessToken: cfg.Provider.AccessToken,
		UserID:      cfg.Provider.UserID,
		Timeout:     cfg.Provider.Timeout,
		Retry:       retry,
		Logger:      logger,
		Observe:     m.ObserveProviderCall,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	meetings := newMeetingProviderAdapter(providerClient)

	artifacts, err := storage.NewLocalStore(cfg.Storage.Dir, cfg.Storage.PublicURL)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	var publisher application.Publisher
	if cfg.OSSEnabled() {
		oss, err := storage.NewOSSPublisher(storage.OSSConfig{
			Endpoint:        cfg.OSS.Endpoint,
			AccessKeyID:     cfg.OSS.AccessKeyID,
			AccessKeySecret: cfg.OSS.AccessKeySecret,
			Bucket:          cfg.OSS.Bucket,
			Prefix:          cfg.OSS.Prefix,
		})
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		publisher = oss
	}

	userRepo := newUserRepositoryAdapter(store.Users)
	sessionRepo := newSessionRepositoryAdapter(store.Sessions)

	sessions := application.NewSessionServiceWithOptions(sessionRepo, meetings, newID, time.Now, application.SessionOptions{
		GraceWindow:     cfg.GraceWindow,
		DefaultTimezone: cfg.Provider.DefaultTimezone,
		Metrics:         m,
		Logger:          logger,
	})
	attendance := application.NewAttendanceServiceWithLogger(sessionRepo, newAttendanceRepositoryAdapter(store.Attendance), time.Now, logger)
	recordings := application.NewRecordingServiceWithOptions(application.RecordingDeps{
		Sessions:    sessionRepo,
		Completer:   sessions,
		Recordings:  newRecordingRepositoryAdapter(store.Recordings),
		Meetings:    meetings,
		Store:       artifacts,
		Repairer:    newRepairer(cfg, logger),
		IDGenerator: newID,
		Now:         time.Now,
	}, application.RecordingOptions{
		Publisher:       publisher,
		Metrics:         m,
		SyncConcurrency: cfg.Reconcile.Concurrency,
		IngestTimeout:   cfg.Repair.IngestTimeout,
		Logger:          logger,
	})
	sessions.UseRecordings(recordings)
	sessions.UseAttendance(attendance)

	queue := application.NewRepairQueue(cfg.Repair.Workers, cfg.Repair.QueueCapacity, logger)
	queue.Start(ctx, recordings.ProcessRepair)
	recordings.UseQueue(queue)

	auth := application.NewAuthServiceWithLogger(userRepo, newAuthSessionRepositoryAdapter(store.AuthSessions), nil, newID, time.Now, application.TokenConfig{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     serviceName,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, logger)
	users := application.NewUserService(userRepo, newID, time.Now, logger)

	reconciler, err := jobs.NewReconciler(jobs.Config{
		Schedule:   cfg.Reconcile.Schedule,
		Timeout:    cfg.Reconcile.Timeout,
		Sessions:   sessions,
		Recordings: recordings,
		Pruner:     auth,
		Logger:     logger,
	})
	if err != nil {
		queue.Close()
		_ = store.Close()
		return nil, err
	}

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:           httptransport.NewAuthHandler(auth, logger),
		Sessions:       httptransport.NewSessionHandler(sessions, logger),
		Recordings:     httptransport.NewRecordingHandler(recordings, logger),
		Attendance:     httptransport.NewAttendanceHandler(attendance, logger),
		Users:          httptransport.NewUserHandler(users, logger),
		Tokens:         auth,
		Metrics:        m,
		Gatherer:       registry,
		Health:         store.Ping,
		Logger:         logger,
		MediaDir:       artifacts.Dir(),
		CORSOrigins:    cfg.CORSOrigins,
		AuthRateLimit:  cfg.AuthRateLimit,
		RequestTimeout: cfg.RequestTimeout,
	})

	return &app{
		cfg:        cfg,
		logger:     logger,
		storage:    store,
		sessions:   sessions,
		recordings: recordings,
		attendance: attendance,
		auth:       auth,
		users:      users,
		queue:      queue,
		reconciler: reconciler,
		handler:    handler,
	}, nil
}

// close drains the repair queue and releases the database.
func (a *app) close() error {
	if a == nil {
		return nil
	}
	a.queue.Close()
	return a.storage.Close()
}

// serve runs the HTTP server and the reconciler until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.reconciler.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Reconcile.Timeout)
		defer cancel()
		if err := a.reconciler.Stop(stopCtx); err != nil {
			a.logger.Error("failed to stop reconciler", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	a.logger.Info("live sessions API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}
