// cmd/notifier/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"ctp-notifications/internal/api"
	"ctp-notifications/internal/api/handlers"
	"ctp-notifications/internal/common/auth"
	"ctp-notifications/internal/common/camunda"
	"ctp-notifications/internal/common/config"
	"ctp-notifications/internal/common/database"
	"ctp-notifications/internal/common/logger"
	"ctp-notifications/internal/common/observability"
	"ctp-notifications/internal/common/retry"
	"ctp-notifications/internal/delivery"
	"ctp-notifications/internal/idempotency"
	"ctp-notifications/internal/lifecycle"
	"ctp-notifications/internal/models"
	"ctp-notifications/internal/parties"
	"ctp-notifications/internal/store"
	"ctp-notifications/internal/sweeps"
	documentwritten "ctp-notifications/internal/workers/lifecycle/document-written"
	"ctp-notifications/pkg/registry"
)

func main() {
	zapLog := logger.New("info", "console", "stdout")
	zapLog.Info("Starting notifier...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	obs, err := observability.New(cfg.App.Name, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		zapLog.Warn("observability disabled", zap.Error(err))
	}
	defer obs.Shutdown(context.Background())

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient *camunda.Client
	err = retry.WithBackoff(ctx, func() error {
		var err error
		zeebeClient, err = camunda.NewClient(cfg.Camunda)
		return err
	}, 10, 2*time.Second, log, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retry.WithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retry.WithBackoff(ctx, func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, log, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	redisClient := database.NewRedis(cfg.Database.Redis)
	err = retry.WithBackoff(ctx, func() error {
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Registry and delivery ---
	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("notification registry failed to load", zap.Error(err))
	}
	zapLog.Info("Notification registry loaded",
		zap.String("version", reg.Version()),
		zap.Int("definitions", len(reg.Definitions())),
	)

	pushProvider, emailProvider, err := delivery.NewProviders(ctx, cfg.Providers)
	if err != nil {
		zapLog.Fatal("delivery providers failed", zap.Error(err))
	}

	docs := store.New(pg.DB)
	deadLetters := delivery.NewDeadLetters(redisClient.Client, cfg.Delivery.DeadLetterKey)
	auditor := delivery.NewESAuditor(esClient.Client, cfg.Delivery.AuditIndex, log)
	deliverer := delivery.NewDeliverer(pushProvider, emailProvider, cfg.Delivery.RateLimit, cfg.Delivery.RateBurst, auditor, obs, log)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Database.Redis.Address,
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
	}

	mux := asynq.NewServeMux()
	var dispatcher delivery.Dispatcher
	var asynqClient *asynq.Client
	switch cfg.Delivery.Mode {
	case config.DeliveryModeInline:
		dispatcher = delivery.NewInlineDispatcher(deliverer, deadLetters, cfg.Delivery.MaxRetry, cfg.Delivery.Concurrency, log)
	default:
		asynqClient = asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		dispatcher = delivery.NewQueueDispatcher(asynqClient, cfg.Delivery, log)
		delivery.NewTaskHandler(deliverer, deadLetters, log).Register(mux)
	}
	zapLog.Info("Delivery configured", zap.String("mode", cfg.Delivery.Mode))

	// --- Lifecycle ---
	loc, err := time.LoadLocation(cfg.Sweeps.Timezone)
	if err != nil {
		zapLog.Fatal("invalid sweep timezone", zap.String("timezone", cfg.Sweeps.Timezone), zap.Error(err))
	}

	keys := idempotency.NewStore(redisClient.Client, time.Duration(cfg.Delivery.IdempotencyTTLHours)*time.Hour)
	resolver := parties.NewResolver(docs, log)
	notifier := lifecycle.NewNotifier(reg, resolver, keys, docs, dispatcher, lifecycle.NotifierConfig{
		TemplateIDs:   cfg.Providers.Email.TemplateIDs(),
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		Location:      loc,
	}, log)
	processor := lifecycle.NewProcessor(lifecycle.NewGuard(keys), notifier, log)

	// --- Sweeps ---
	runner := sweeps.NewRunner(docs, notifier, loc, obs, log)
	runner.Register(mux)

	taskServer := delivery.NewTaskServer(redisOpt, cfg.Delivery, log)
	if err := taskServer.Start(mux); err != nil {
		zapLog.Fatal("task server failed to start", zap.Error(err))
	}

	scheduler, err := sweeps.NewScheduler(redisOpt, cfg, runner.Names(), log)
	if err != nil {
		zapLog.Fatal("sweep scheduler failed", zap.Error(err))
	}
	if err := scheduler.Start(); err != nil {
		zapLog.Fatal("sweep scheduler failed to start", zap.Error(err))
	}

	// --- Document-written workers ---
	var workers []*documentwritten.Handler
	for _, collection := range []string{models.CollectionOffers, models.CollectionVehicles, models.CollectionUsers} {
		handler, err := documentwritten.NewHandler(documentwritten.HandlerOptions{
			AppConfig:     cfg,
			Collection:    collection,
			Processor:     processor,
			Observability: obs,
			Logger:        log,
		})
		if err != nil {
			zapLog.Fatal("failed to create document-written handler", zap.String("collection", collection), zap.Error(err))
		}
		handler.Register(zeebeClient.GetClient())
		workers = append(workers, handler)
	}

	// --- HTTP ---
	keycloak := auth.NewKeycloakClient(
		cfg.Auth.Keycloak.URL,
		cfg.Auth.Keycloak.Realm,
		cfg.Auth.Keycloak.ClientID,
		cfg.Auth.Keycloak.ClientSecret,
		config.GetDuration(cfg.Auth.Keycloak.Timeout),
	)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Dependencies{
		Callable: handlers.NewCallableHandler(docs, deliverer, keycloak, reg, log),
		Preview:  handlers.NewPreviewHandler(docs, cfg.HTTP.PublicBaseURL, log),
		Ops: handlers.NewOpsHandler(cfg.App.Version, map[string]handlers.HealthCheck{
			"postgres": pg.Ping,
			"redis":    redisClient.Ping,
			"zeebe":    zeebeClient.HealthCheck,
		}, deadLetters, log),
		Tokens: keycloak,
		Users:  resolver,
		Logger: log,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping notifier...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	for _, w := range workers {
		w.Close()
	}
	scheduler.Shutdown()
	taskServer.Shutdown()

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	zapLog.Info("Notifier stopped gracefully")
}
