// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tool-evaluator/internal/analytics"
	"tool-evaluator/internal/api"
	awsclients "tool-evaluator/internal/common/aws"
	"tool-evaluator/internal/common/camunda"
	"tool-evaluator/internal/common/config"
	"tool-evaluator/internal/common/database"
	"tool-evaluator/internal/common/logger"
	"tool-evaluator/internal/common/observability"
	"tool-evaluator/internal/engine"
	"tool-evaluator/internal/snapshot"
	er "tool-evaluator/internal/workers/evaluation/evaluate-responses"
	pr "tool-evaluator/internal/workers/evaluation/publish-ruleset"
	vs "tool-evaluator/internal/workers/infrastructure/validate-subscription"
	"tool-evaluator/pkg/registry"

	"go.uber.org/zap"
)

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
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting tool evaluator...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	// --- Tracing & OTel metrics ---
	var tracing *observability.Tracing
	if cfg.Tracing.Enabled {
		tracing, err = observability.NewTracing(cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			zapLog.Fatal("tracing init failed", zap.Error(err))
		}
	}
	obs, err := observability.New(cfg.App.Name, tracing)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

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
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch (analytics only) ---
	var esClient *database.ElasticsearchClient
	if cfg.Analytics.Enabled && len(cfg.Database.Elasticsearch.GetURLs()) > 0 {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		if err := esClient.EnsureIndex(ctx, cfg.Analytics.ElasticsearchIndex, analytics.IndexMapping); err != nil {
			zapLog.Fatal("analytics index setup failed", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- AWS (SNS analytics, SES author notifications) ---
	var mailer *awsclients.Mailer
	var topic *awsclients.TopicPublisher
	needSNS := cfg.Analytics.Enabled && cfg.Analytics.SNSTopicARN != ""
	if needSNS || cfg.Notifications.Email.Enabled {
		awsCfg, err := awsclients.LoadConfig(ctx, cfg.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config failed", zap.Error(err))
		}
		if needSNS {
			topic = awsclients.NewTopicPublisher(awsclients.NewSNSClient(awsCfg), cfg.Analytics.SNSTopicARN)
		}
		if cfg.Notifications.Email.Enabled {
			mailer = awsclients.NewMailer(awsclients.NewSESClient(awsCfg), cfg.Notifications.Email.FromEmail)
		}
		zapLog.Info("AWS clients initialized", zap.String("region", cfg.AWS.Region))
	}

	// --- Analytics ---
	var sinks analytics.Multi
	if topic != nil {
		sinks = append(sinks, analytics.NewSNSSink(topic))
	}
	if esClient != nil {
		sinks = append(sinks, analytics.NewElasticsearchSink(esClient.Client, cfg.Analytics.ElasticsearchIndex))
	}
	var sink analytics.Sink = sinks
	if len(sinks) == 0 {
		sink = analytics.NewLogSink(log)
	}
	emitter := analytics.NewEmitter(sink, cfg.Analytics.Timeout, log)

	// --- Rule-set snapshots ---
	loader := snapshot.NewLoader(
		snapshot.NewStore(),
		snapshot.NewCache(rdb.Client, cfg.Engine.SnapshotCacheTTL),
		snapshot.NewRepository(pg.DB),
		cfg.Engine.SnapshotCacheTTL,
		log,
	)

	// --- Activity registry ---
	reg, err := registry.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		zapLog.Warn("activity registry not loaded", zap.String("path", cfg.RegistryPath), zap.Error(err))
	} else if problems := reg.Validate(); len(problems) > 0 {
		zapLog.Warn("activity registry has problems", zap.Strings("problems", problems))
	}

	// --- Workers ---
	var zeebe *camunda.Client
	var workers []*camunda.Worker
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		start := func(taskType string, handler camunda.JobHandler) {
			wcfg := config.GetWorkerConfig(cfg, taskType)
			if !wcfg.Enabled {
				zapLog.Info("worker disabled", zap.String("taskType", taskType))
				return
			}
			if reg != nil {
				if _, ok := reg.Find(taskType); !ok {
					zapLog.Warn("worker not listed in activity registry", zap.String("taskType", taskType))
				}
			}
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
				MaxJobsActive: wcfg.MaxJobsActive,
				Timeout:       config.GetDuration(wcfg.Timeout),
			}, handler, log))
		}

		erCfg := er.LoadConfig()
		erCfg.DefaultUpgradeMessage = cfg.Engine.DefaultUpgradeMessage
		erCfg.AnalyticsTimeout = cfg.Analytics.Timeout
		start(er.TaskType, er.NewHandler(erCfg, loader, emitter, obs, log))

		prCfg := pr.LoadConfig()
		prCfg.NotifyAuthors = cfg.Notifications.Email.Enabled
		var notifier pr.Notifier
		if mailer != nil {
			notifier = mailer
		}
		start(pr.TaskType, pr.NewHandler(prCfg, loader, notifier, log))

		vsCfg := vs.LoadConfig()
		vsCfg.CacheTTL = cfg.Engine.SubscriptionCacheTTL
		start(vs.TaskType, vs.NewHandler(vsCfg, pg.DB, rdb.Client, log))

		zapLog.Info("workers registered", zap.Int("count", len(workers)))
	}

	// --- HTTP API, health & metrics ---
	srv := api.NewServer(loader, emitter, obs, engine.Options{
		DefaultUpgradeMessage: cfg.Engine.DefaultUpgradeMessage,
	}, log)
	srv.AddReadinessCheck("postgres", pg.Ping)
	srv.AddReadinessCheck("redis", rdb.Ping)
	if zeebe != nil {
		srv.AddReadinessCheck("zeebe", zeebe.HealthCheck)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop()
	}
	if err := emitter.Close(shutdownCtx); err != nil {
		zapLog.Error("pending analytics events were not delivered", zap.Error(err))
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("observability shutdown failed", zap.Error(err))
	}

	zapLog.Info("Tool evaluator stopped gracefully")
}
