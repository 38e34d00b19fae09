package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/lead-pipeline/internal/config"
	"github.com/ignite/lead-pipeline/internal/delivery"
	"github.com/ignite/lead-pipeline/internal/identity"
	"github.com/ignite/lead-pipeline/internal/pkg/backoff"
	"github.com/ignite/lead-pipeline/internal/queue"
	"github.com/ignite/lead-pipeline/internal/rules"
	"github.com/ignite/lead-pipeline/internal/worker"
)

func main() {
	log.Println("Starting lead-pipeline workers...")

	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	cancel()
	log.Println("Connected to database")

	// Redis is an optional cache; the pipeline runs without it
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unavailable, continuing without cache: %v", err)
			rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
			log.Println("Connected to redis")
		}
		cancel()
	}

	pg := queue.NewPGQueue(db)
	q := queue.WithRetry(pg, queue.RetryPolicy(cfg.Queue.OperationRetries))
	batchSize := cfg.Queue.BatchSize
	vt := cfg.Queue.VisibilityTimeout()

	ruleStore := rules.NewPGStore(db)
	cache := rules.NewCachedLoader(ruleStore, rdb)
	compiler := rules.NewCompiler(ruleStore, cache)

	resolver := identity.NewResolver(identity.NewPGStore(db))
	identifyRetry := backoff.DefaultPolicy()
	identifyRetry.MaxAttempts = cfg.Identity.MaxRetries

	registry := delivery.NewRegistry()
	registry.Register("webhook", delivery.NewWebhookPartner(nil))
	registry.Register("crm", delivery.NewCRMPartner(db))

	handlerRetry := backoff.DefaultPolicy()
	handlerRetry.MaxAttempts = cfg.Delivery.MaxAttempts
	engine := delivery.NewEngine(
		delivery.NewPGLeadStore(db),
		delivery.NewPGConfigStore(db),
		registry,
		q,
		delivery.Options{
			BatchSize:         batchSize,
			VisibilityTimeout: vt,
			HandlerRetry:      handlerRetry,
			PendingStaleness:  cfg.Delivery.PendingStaleness(),
		},
	)

	harness := worker.NewHarness(worker.NewPGStateStore(db), cfg.Worker.Heartbeat())
	host := worker.NewHost(harness, cfg.Worker.PollInterval())
	host.Add(worker.NewIdentifyWorker(resolver, q, identifyRetry, batchSize, vt))
	host.Add(worker.NewRouterWorker(cache, q, batchSize, vt))
	host.Add(worker.NewCompileWorker(compiler, q, batchSize, vt))
	host.Add(worker.NewMetricsWorker(pg))
	for _, partner := range registry.Names() {
		host.Add(worker.NewDeliveryWorker(engine, partner))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host.Run(ctx)
	log.Println("Workers stopped")
}
