package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/RuneRubble/rs-proxy/internal/ingest"
	"github.com/RuneRubble/rs-proxy/pkg/cache"
	"github.com/RuneRubble/rs-proxy/pkg/config"
	"github.com/RuneRubble/rs-proxy/pkg/events"
	"github.com/RuneRubble/rs-proxy/pkg/logger"
	"github.com/RuneRubble/rs-proxy/pkg/runemetrics"
	"github.com/RuneRubble/rs-proxy/pkg/server"
	"github.com/RuneRubble/rs-proxy/pkg/store"
)

func main() {
	// 1. Load config
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("tracker service initializing",
		zap.String("env", cfg.Environment),
		zap.String("store", cfg.Store.Backend))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize persistence
	st, err := newStore(ctx, cfg)
	if err != nil {
		l.Error("failed to initialize store", err)
		os.Exit(1)
	}
	defer st.Close(context.Background())

	// 4. Initialize upstream client
	client := runemetrics.NewClient(runemetrics.Config{
		ProfileURL:     cfg.Upstream.ProfileURL,
		HiscoreURL:     cfg.Upstream.HiscoreURL,
		Timeout:        cfg.Upstream.Timeout,
		ActivityWindow: cfg.Upstream.ActivityWindow,
	}, l.Named("runemetrics"))

	// 5. Optional drop-event publisher
	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(events.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
	}
	defer publisher.Close()

	// 6. Optional proxy cache
	var proxyCache cache.Cache = cache.Nop{}
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer redisClient.Close()
		proxyCache = cache.NewRedisCache(redisClient, cfg.Redis.CacheTTL)
	}

	// 7. Ingestion service
	svc := ingest.NewService(l.Named("ingest"), st, client, publisher, ingest.Options{
		ThrottleDelay:   cfg.Tracker.ThrottleDelay,
		ConflictRetries: cfg.Tracker.ConflictRetries,
	})

	// 8. Scheduled batch runs, UTC as the fixed timezone reference
	scheduler := cron.New(cron.WithLocation(time.UTC))
	_, err = scheduler.AddFunc(cfg.Tracker.CronSpec, func() {
		report, err := svc.RunBatch(ctx)
		if err != nil {
			l.Error("batch run failed", err)
			return
		}
		l.Info("batch run report",
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", len(report.Failed)))
	})
	if err != nil {
		l.Error("invalid cron spec", err, zap.String("spec", cfg.Tracker.CronSpec))
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 9. API server
	apiServer := server.New(cfg.Server.Addr, server.Deps{
		Logger:   l.Named("server"),
		Store:    st,
		Ingester: svc,
		Cache:    proxyCache,
		Upstream: cfg.Upstream,
	})
	go func() {
		if err := apiServer.Start(); err != nil {
			l.Error("api server failed", err)
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("tracker service stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		l.Error("api server shutdown failed", err)
	}
}

func newStore(ctx context.Context, cfg *config.AppConfig) (store.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return store.NewPostgresStore(ctx, store.PostgresConfig{
			URI:      cfg.Postgres.URI,
			MinConns: int32(cfg.Postgres.MinConns),
			MaxConns: int32(cfg.Postgres.MaxConns),
		})
	default:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.MongoDB.ConnectTimeout)
		defer cancel()
		return store.NewMongoStore(connectCtx, store.MongoConfig{
			URI:        cfg.MongoDB.URI,
			Database:   cfg.MongoDB.Database,
			Collection: cfg.MongoDB.Collection,
		})
	}
}
