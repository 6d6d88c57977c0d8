package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tmarchand/order-enrichment/common/broker"
	"github.com/tmarchand/order-enrichment/common/config"
	"github.com/tmarchand/order-enrichment/common/logger"
	"github.com/tmarchand/order-enrichment/common/metrics"
	"github.com/tmarchand/order-enrichment/common/tracing"
	"github.com/tmarchand/order-enrichment/internal/catalog"
	"github.com/tmarchand/order-enrichment/internal/consumer"
	"github.com/tmarchand/order-enrichment/internal/enricher"
	"github.com/tmarchand/order-enrichment/internal/lock"
	"github.com/tmarchand/order-enrichment/internal/orderstore"
	"github.com/tmarchand/order-enrichment/internal/pipeline"
	"github.com/tmarchand/order-enrichment/internal/retryqueue"
	"github.com/tmarchand/order-enrichment/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	serviceName := config.GetEnv("SERVICE_NAME", "order-enrichment")
	log := logger.NewLogger(serviceName)

	shutdownTracing, err := tracing.InitTracer(serviceName)
	if err != nil {
		log.Error("failed to initialize tracer", "err", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	mongoClient, err := connectMongo(config.GetEnv("MONGO_URI", "mongodb://localhost:27017"))
	if err != nil {
		log.Error("failed to connect to mongodb", "err", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Error("failed to disconnect from mongodb", "err", err)
		}
	}()

	store := orderstore.New(mongoClient, config.GetEnv("MONGO_DATABASE", "order_enrichment"))
	if err := store.EnsureIndexes(context.Background()); err != nil {
		log.Error("failed to ensure order store indexes", "err", err)
		os.Exit(1)
	}

	lockRedis := redis.NewClient(&redis.Options{Addr: config.GetEnv("LOCK_REDIS_ADDR", "localhost:6379")})
	defer lockRedis.Close()
	retryRedis := redis.NewClient(&redis.Options{Addr: config.GetEnv("RETRY_REDIS_ADDR", "localhost:6379")})
	defer retryRedis.Close()

	ch, closeBroker, err := broker.Connect(
		config.GetEnv("AMQP_USER", "guest"),
		config.GetEnv("AMQP_PASS", "guest"),
		config.GetEnv("AMQP_HOST", "localhost"),
		config.GetEnv("AMQP_PORT", "5672"),
	)
	if err != nil {
		log.Error("failed to connect to broker", "err", err)
		os.Exit(1)
	}
	defer closeBroker()

	catalogCfg := catalog.DefaultConfig(config.MustGetEnv("CATALOG_BASE_URL"))
	catalogCfg.Timeout = config.GetEnvDuration("CATALOG_TIMEOUT", catalogCfg.Timeout)
	catalogCfg.BreakerWindow = config.GetEnvInt("CATALOG_BREAKER_WINDOW", catalogCfg.BreakerWindow)
	catalogCfg.BreakerThreshold = config.GetEnvFloat("CATALOG_BREAKER_THRESHOLD", catalogCfg.BreakerThreshold)
	catalogCfg.BreakerCooldown = config.GetEnvDuration("CATALOG_BREAKER_COOLDOWN", catalogCfg.BreakerCooldown)
	catalogCfg.RetryMaxAttempts = config.GetEnvInt("CATALOG_RETRY_MAX_ATTEMPTS", catalogCfg.RetryMaxAttempts)
	catalogCfg.RetryInitialWait = config.GetEnvDuration("CATALOG_RETRY_INITIAL_WAIT", catalogCfg.RetryInitialWait)
	catalogClient := catalog.NewClient(catalogCfg, metrics.NewCatalogMetrics(serviceName), log)

	lockCfg := lock.DefaultConfig()
	lockCfg.WaitTime = config.GetEnvDuration("LOCK_WAIT_TIME", lockCfg.WaitTime)
	lockCfg.LeaseTime = config.GetEnvDuration("LOCK_LEASE_TIME", lockCfg.LeaseTime)
	lockService := lock.NewService(lockRedis, lockCfg, metrics.NewLockMetrics(serviceName), log)

	retryCfg := retryqueue.DefaultConfig()
	retryCfg.InitialDelay = config.GetEnvDuration("RETRY_INITIAL_DELAY", retryCfg.InitialDelay)
	retryCfg.Multiplier = config.GetEnvFloat("RETRY_MULTIPLIER", retryCfg.Multiplier)
	retryCfg.MaxDelay = config.GetEnvDuration("RETRY_MAX_DELAY", retryCfg.MaxDelay)
	retryCfg.MaxAttempts = config.GetEnvInt("RETRY_MAX_ATTEMPTS", retryCfg.MaxAttempts)
	retryQueue := retryqueue.NewQueue(retryRedis, retryCfg, metrics.NewRetryQueueMetrics(serviceName), log, broker.DeadLetterPublisher{Channel: ch})

	enrich := enricher.New(catalogClient, store, metrics.NewEnrichmentMetrics(serviceName), log)
	pipe := pipeline.New(lockService, enrich, retryQueue, log)

	consumerConcurrency := config.GetEnvInt("CONSUMER_CONCURRENCY", 3)
	cons := consumer.New(pipe, consumerConcurrency, log)

	schedulerInterval := config.GetEnvDuration("SCHEDULER_INTERVAL", 30*time.Second)
	sched := scheduler.New(retryQueue, pipe, schedulerInterval, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsAddr := config.GetEnv("METRICS_ADDR", ":9100")
	metricsServer := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Info("metrics endpoint listening", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "err", err)
		}
	}()

	go sched.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		cancel()
	}()

	log.Info("order-enrichment consumer starting", "concurrency", consumerConcurrency)
	if err := cons.Listen(ctx, ch); err != nil && ctx.Err() == nil {
		log.Error("consumer stopped unexpectedly", "err", err)
		os.Exit(1)
	}
	log.Info("order-enrichment consumer stopped")
}

func connectMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetRegistry(orderstore.Registry()))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}
