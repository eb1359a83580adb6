package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tabchat/tabchat/internal/api"
	"github.com/tabchat/tabchat/internal/auth"
	"github.com/tabchat/tabchat/internal/catalog"
	catalogpostgres "github.com/tabchat/tabchat/internal/catalog/postgres"
	"github.com/tabchat/tabchat/internal/config"
	"github.com/tabchat/tabchat/internal/inference"
	"github.com/tabchat/tabchat/internal/observability"
	"github.com/tabchat/tabchat/internal/session"
	"github.com/tabchat/tabchat/internal/storage"
	s3store "github.com/tabchat/tabchat/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("tabchat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	client, err := inference.NewOllamaClient(inference.OllamaConfig{
		BaseURL: cfg.Inference.BaseURL,
		Model:   cfg.Inference.Model,
		Timeout: cfg.Inference.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize inference client", slog.Any("error", err))
		os.Exit(1)
	}

	readiness := []api.ReadinessCheck{api.CheckInferenceBackend(client)}

	var catalogRepo catalog.Repository
	if cfg.Catalog.DSN != "" {
		catalogDB, err := catalogpostgres.Open(context.Background(), catalogpostgres.DBConfig{
			DSN:             cfg.Catalog.DSN,
			MaxOpenConns:    cfg.Catalog.MaxOpenConns,
			MaxIdleConns:    cfg.Catalog.MaxIdleConns,
			ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open catalog db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = catalogDB.Close() }()

		repo := catalogpostgres.NewRepository(catalogDB)
		catalogRepo = repo
		readiness = append(readiness, repo.HealthCheck)
	} else {
		logger.Warn("catalog dsn not configured, session history disabled")
	}

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Bucket != "" {
		store, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
	} else {
		logger.Warn("object store bucket not configured, upload archival disabled")
	}

	sessions := session.NewService(client, logger, session.Config{
		TableName:     cfg.Dataset.TableName,
		Model:         cfg.Inference.Model,
		MaxToolTurns:  cfg.Chat.MaxToolTurns,
		ArchiveUpload: cfg.Dataset.ArchiveUpload,
	})
	sessions.Catalog = catalogRepo
	sessions.ObjectStore = objectStore

	deps := api.Dependencies{
		Logger:            logger,
		Sessions:          sessions,
		Catalog:           catalogRepo,
		ObjectStore:       objectStore,
		Inference:         client,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
		MaxUploadBytes:    int64(cfg.Dataset.MaxUploadMB) * 1024 * 1024,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
