package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/kaimono-app/api/internal/handlers"
	"github.com/kaimono-app/api/internal/platform/config"
	pfirestore "github.com/kaimono-app/api/internal/platform/firestore"
	"github.com/kaimono-app/api/internal/platform/jobs"
	"github.com/kaimono-app/api/internal/platform/observability"
	"github.com/kaimono-app/api/internal/repositories"
	firestoreRepo "github.com/kaimono-app/api/internal/repositories/firestore"
	"github.com/kaimono-app/api/internal/repositories/memory"
	"github.com/kaimono-app/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	registry, cleanup, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer cleanup()

	classifier, classifierCleanup, err := buildClassifier(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise classification publisher", zap.Error(err))
	}
	defer classifierCleanup()

	serviceLogger := func(ctx context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Named("services").Info(event, zapFields...)
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository: registry.Products(),
		Classifier: classifier,
		Logger:     serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to construct catalog service", zap.Error(err))
	}

	policy := services.NewCapPolicy(nil)
	engine, err := services.NewFillEngine(services.FillEngineDeps{
		Policy:          &policy,
		LowBudgetCutoff: cfg.Engine.LowBudgetCutoff,
		Logger:          serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to construct fill engine", zap.Error(err))
	}

	selectionService, err := services.NewSelectionService(services.SelectionServiceDeps{
		Repository:     registry.Selections(),
		Catalog:        catalogService,
		Engine:         engine,
		RefillAttempts: cfg.Engine.RefillAttempts,
		Logger:         serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to construct selection service", zap.Error(err))
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
	}

	catalogHandlers := handlers.NewCatalogHandlers(catalogService)
	sessionHandlers := handlers.NewSessionHandlers(selectionService)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthRepository(registry.Health()),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("kaimono api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildRegistry selects the persistence backend: Firestore when a project is
// configured, in-memory otherwise (local development).
func buildRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.Registry, func(), error) {
	if strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
		logger.Info("no firestore project configured; using in-memory repositories")
		return memory.NewRegistry(), func() {}, nil
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := provider.Client(ctx); err != nil {
		return nil, nil, err
	}

	registry, err := firestoreRepo.NewRegistry(provider)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}
	return registry, cleanup, nil
}

// buildClassifier wires the Pub/Sub classification job publisher when the
// feature is enabled; otherwise scans register temporary items silently.
func buildClassifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.ClassificationJobPublisher, func(), error) {
	if !cfg.Features.EnableClassificationJobs {
		return nil, func() {}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
	if err != nil {
		return nil, nil, err
	}

	topic := client.Topic(cfg.Jobs.ClassificationTopic)
	publisher, err := jobs.NewPubSubClassificationPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	cleanup := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return publisher, cleanup, nil
}
