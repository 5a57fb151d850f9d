// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notification-workers/internal/common/aws"
	"notification-workers/internal/common/camunda"
	"notification-workers/internal/common/config"
	"notification-workers/internal/common/database"
	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/logger"
	"notification-workers/internal/common/observability"
	"notification-workers/internal/common/validation"
	"notification-workers/internal/delivery"
	"notification-workers/internal/document"
	"notification-workers/internal/orchestrator"
	"notification-workers/internal/store"
	"notification-workers/internal/tracker"
	"notification-workers/internal/workers/notification"
	"notification-workers/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "console").Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	ctx := context.Background()

	// --- Zeebe ---
	zeebe, err := camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
	if err != nil {
		zapLog.Fatal("zeebe client failed", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("notification schema failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch (delivery event audit trail) ---
	var trackerOpts []tracker.Option
	if cfg.Database.Elasticsearch.Enabled {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		index := cfg.Database.Elasticsearch.Index
		if err := es.EnsureIndex(ctx, index, tracker.AuditMapping); err != nil {
			zapLog.Fatal("audit index failed", zap.Error(err), zap.String("index", index))
		}
		trackerOpts = append(trackerOpts, tracker.WithAudit(es, index))
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Delivery ---
	provider, err := delivery.NewProviderFromConfig(ctx, cfg.Integrations)
	if err != nil {
		zapLog.Fatal("email provider init failed", zap.Error(err))
	}
	adapter := delivery.NewAdapter(provider, cfg.Delivery, log)
	zapLog.Info("Email provider ready", zap.String("provider", provider.Name()))

	var confirmer tracker.SubscriptionConfirmer
	if cfg.Integrations.AWS.SNS.Enabled {
		awsCfg, err := aws.LoadConfig(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config failed", zap.Error(err))
		}
		confirmer = aws.NewSNSClient(awsCfg)
	}

	// --- Rendering ---
	chrome := document.NewChromeEngine(cfg.Renderer)
	defer chrome.Close()

	notifications := store.NewNotificationStore(pg.DB)
	documents := store.NewDocumentStore(pg.DB)
	users := store.NewUserStore(pg.DB)

	renderer, err := document.NewRenderer(documents, chrome, log)
	if err != nil {
		zapLog.Fatal("document renderer init failed", zap.Error(err))
	}

	// --- Pipeline ---
	lifecycle := tracker.NewTracker(notifications, redis.Client, cfg.Tracker, log, trackerOpts...)

	orch := orchestrator.NewOrchestrator(orchestrator.Dependencies{
		Notifications: notifications,
		Documents:     documents,
		Users:         users,
		Renderer:      renderer,
		Sender:        adapter,
		Reads:         lifecycle,
	}, orchestrator.Config{
		FallbackSender: cfg.Delivery.FallbackSender,
	}, log, orchestrator.WithTracer(obs.Tracer()))

	// --- Workers ---
	activities, err := registry.Default()
	if err != nil {
		zapLog.Fatal("activity registry failed", zap.Error(err))
	}
	validator, err := validation.NewValidator(activities)
	if err != nil {
		zapLog.Fatal("input schemas failed", zap.Error(err))
	}

	var workers []*camunda.CamundaWorker
	for _, r := range notification.Registrations(notification.Dependencies{
		Service:   orch,
		Registry:  activities,
		Validator: validator,
		Errors:    errors.NewErrorHandler(log),
		Recorder:  obs,
		Config:    cfg,
		Logger:    log,
	}) {
		if !r.Config.Enabled {
			zapLog.Info("worker disabled", zap.String("taskType", r.TaskType))
			continue
		}
		w := camunda.NewWorker(zeebe.GetClient(), r.TaskType, r.Config, r.Handler, log)
		w.Start()
		workers = append(workers, w)
		zapLog.Info("worker started", zap.String("taskType", w.TaskType()))
	}
	zapLog.Info("Notification workers registered", zap.Int("count", len(workers)))

	// --- Health, Metrics & Webhook Server ---
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]func(context.Context) error{
			"postgres": pg.Ping,
			"redis":    redis.Ping,
			"zeebe":    zeebe.HealthCheck,
		}
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", failed)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	webhook := tracker.NewWebhook(lifecycle, confirmer, cfg.Integrations.AWS.SNS.TopicARN, cfg.Server.MaxBodyBytes, log)
	webhook.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing telemetry", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, status string, failures map[string]string) {
	body := map[string]interface{}{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if len(failures) > 0 {
		body["failures"] = failures
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
