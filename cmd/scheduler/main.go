package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"durable-command-scheduler/internal/activity"
	"durable-command-scheduler/internal/admission"
	"durable-command-scheduler/internal/api"
	"durable-command-scheduler/internal/blobstore"
	"durable-command-scheduler/internal/bus"
	"durable-command-scheduler/internal/clockdriver"
	"durable-command-scheduler/internal/clockregistry"
	"durable-command-scheduler/internal/config"
	"durable-command-scheduler/internal/delivery"
	"durable-command-scheduler/internal/precondition"
	"durable-command-scheduler/internal/ratelimit"
	"durable-command-scheduler/internal/repository"
	"durable-command-scheduler/internal/scheduling"
	"durable-command-scheduler/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	blobBackend, err := newBlobBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("init blob backend: %v", err)
	}
	payload := blobstore.Threshold{Backend: blobBackend, InlineMax: cfg.BlobInlineThreshold}

	pgCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("parse postgres dsn: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	st := store.NewWithPool(pool, payload)
	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	clocks := clockregistry.NewPostgres(pool)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	stream := activity.NewRedisPubSub(redisClient, "scheduler:activity")
	eventBus := bus.NewRedisStreams(redisClient, "scheduler")
	limiter := admission.New(ratelimit.NewTokenBucket(redisClient, cfg.AdmissionRateCapacity, cfg.AdmissionRateRefillPerSec, time.Hour))

	// repository is an external collaborator out of scope for this module;
	// production deployments supply their own. The fake here keeps the
	// daemon runnable standalone for local smoke testing.
	repo := repository.NewFake()
	gate := precondition.New(nil, cfg.PreconditionTimeoutDurable)

	engine := delivery.New(repo, st, stream, gate, time.Now)
	driver := clockdriver.New(clocks, st, engine, cfg.ClockDrainBatchSize)
	frontend := scheduling.New(clocks, st, engine, stream, gate, limiter, time.Now)

	aggregateTypes := []string{"order", "account", "shipment"}
	for _, aggregateType := range aggregateTypes {
		if _, err := eventBus.Subscribe(ctx, aggregateType, frontend.Schedule); err != nil {
			log.Fatalf("subscribe %s: %v", aggregateType, err)
		}
	}

	go runWallClockTicker(ctx, driver, cfg)

	server := api.New(st, clocks, driver)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("scheduler listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}

func newBlobBackend(ctx context.Context, cfg config.Config) (blobstore.Store, error) {
	if cfg.BlobS3Bucket != "" {
		return blobstore.NewS3(ctx, cfg)
	}
	if cfg.BlobLocalDir != "" {
		return blobstore.NewLocal(cfg.BlobLocalDir)
	}
	return nil, nil
}

func runWallClockTicker(ctx context.Context, driver *clockdriver.Driver, cfg config.Config) {
	ticker := time.NewTicker(cfg.WallClockTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := driver.Advance(ctx, cfg.DefaultClockName, now); err != nil {
				log.Printf("wall clock advance: %v", err)
			}
		}
	}
}
