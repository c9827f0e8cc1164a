package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	attestationhandler "vcregistry/internal/attestation/handler"
	attestationmetrics "vcregistry/internal/attestation/metrics"
	attestation "vcregistry/internal/attestation/service"
	"vcregistry/internal/attestation/typeddata"
	directoryhandler "vcregistry/internal/directory/handler"
	directorymetrics "vcregistry/internal/directory/metrics"
	directory "vcregistry/internal/directory/service"
	jwttoken "vcregistry/internal/jwt_token"
	"vcregistry/internal/ledger"
	ledgermemory "vcregistry/internal/ledger/memory"
	ledgerpostgres "vcregistry/internal/ledger/postgres"
	"vcregistry/internal/platform/config"
	"vcregistry/internal/platform/database"
	"vcregistry/internal/platform/health"
	"vcregistry/internal/platform/httpserver"
	"vcregistry/internal/platform/kafka/producer"
	"vcregistry/internal/platform/logger"
	"vcregistry/internal/platform/metrics"
	"vcregistry/internal/platform/redis"
	ratelimitmetrics "vcregistry/internal/ratelimit/metrics"
	ratelimit "vcregistry/internal/ratelimit/middleware"
	"vcregistry/internal/ratelimit/store/bucket"
	httptransport "vcregistry/internal/transport/http"
	"vcregistry/migrations"
	"vcregistry/pkg/platform/circuit"
	"vcregistry/pkg/platform/middleware/request"
	"vcregistry/pkg/platform/outbox"
	outboxmetrics "vcregistry/pkg/platform/outbox/metrics"
	outboxmemory "vcregistry/pkg/platform/outbox/store/memory"
	outboxpostgres "vcregistry/pkg/platform/outbox/store/postgres"
	"vcregistry/pkg/platform/outbox/worker"
	"vcregistry/pkg/platform/tracer"
)

const poolStatsInterval = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vcregistry:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing vcregistry",
		"addr", cfg.Server.Addr,
		"env", cfg.Server.Env,
		"owner", cfg.Registry.Owner.String(),
		"chain_id", cfg.Registry.ChainID,
		"verifying_contract", cfg.Registry.VerifyingContract.String(),
	)

	platformMetrics := metrics.New()
	platformMetrics.RecordBuildInfo(health.Version, cfg.Server.Env, strconv.FormatUint(cfg.Registry.ChainID, 10))
	healthHandler := health.New(cfg.Server.Env)

	l, events, closeLedger, err := openLedger(ctx, cfg, healthHandler, platformMetrics, log)
	if err != nil {
		return err
	}
	defer closeLedger()

	publisher, closePublisher, err := openPublisher(cfg, healthHandler, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var buckets bucket.Store = bucket.NewInMemoryBucketStore()
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // shutdown path
		buckets = bucket.NewRedisBucketStore(redisClient.Client)
		healthHandler.RegisterCheck("redis", redisClient.Check)
		log.Info("rate limiting backed by redis")
	}

	tr := tracer.NewOTel()
	directorySvc := directory.New(l, cfg.Registry.Owner,
		directory.WithLogger(log),
		directory.WithMetrics(directorymetrics.New()),
		directory.WithTracer(tr),
	)
	registrySvc := attestation.New(l, typeddata.NewDomain(cfg.Registry.ChainID, cfg.Registry.VerifyingContract),
		attestation.WithLogger(log),
		attestation.WithMetrics(attestationmetrics.New()),
		attestation.WithTracer(tr),
	)

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)
	jwtService.SetEnv(cfg.Server.Env)

	router := httptransport.NewRouter(httptransport.Deps{
		Directory: directoryhandler.New(directorySvc, log),
		Registry:  attestationhandler.New(registrySvc, log),
		Health:    healthHandler,
		Auth:      jwttoken.NewJWTServiceAdapter(jwtService),
		RateLimit: ratelimit.New(buckets, cfg.RateLimit.Requests, cfg.RateLimit.Window, log,
			ratelimit.WithMetrics(ratelimitmetrics.New()),
		),
		Metrics:        request.NewMetrics(),
		MetricsHandler: metrics.Handler(),
		Logger:         log,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	relay := worker.New(events, publisher,
		worker.WithTopic(cfg.Kafka.Topic),
		worker.WithBatchSize(cfg.Outbox.BatchSize),
		worker.WithPollInterval(cfg.Outbox.PollInterval),
		worker.WithRetention(cfg.Outbox.Retention),
		worker.WithMetrics(outboxmetrics.New()),
		worker.WithBreaker(circuit.New("kafka")),
		worker.WithLogger(log),
	)

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		return httpserver.Run(gctx, srv)
	})
	g.Go(func() error { return relay.Run(gctx) })
	if redisClient != nil {
		g.Go(func() error { return redisClient.RunPoolStats(gctx, poolStatsInterval) })
	}

	err = g.Wait()
	log.Info("server stopped")
	return err
}

// openLedger picks postgres when DATABASE_URL is set and the in-memory
// ledger otherwise. The outbox always lives next to the ledger so events
// commit with the mutation that produced them.
func openLedger(ctx context.Context, cfg config.Config, h *health.Handler, m *metrics.Metrics, log *slog.Logger) (ledger.Ledger, outbox.Store, func(), error) {
	if cfg.Database.URL == "" {
		events := outboxmemory.New()
		m.RecordLedgerBackend("memory")
		log.Warn("DATABASE_URL not set, registry state is kept in memory")
		return ledgermemory.New(events), events, func() {}, nil
	}

	pool, err := database.New(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(ctx, pool.DB(), migrations.FS); err != nil {
		pool.Close() //nolint:errcheck // startup failure
		return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	h.RegisterCheck("database", pool.Check)
	m.RecordLedgerBackend("postgres")

	closeFn := func() {
		if err := pool.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}
	return ledgerpostgres.New(pool.DB()), outboxpostgres.New(pool.DB()), closeFn, nil
}

func openPublisher(cfg config.Config, h *health.Handler, log *slog.Logger) (worker.Publisher, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("KAFKA_BROKERS not set, registry events are dropped after commit")
		return producer.NewNoopProducer(log), func() {}, nil
	}
	p, err := producer.New(producer.DefaultConfig(strings.Join(cfg.Kafka.Brokers, ",")), log)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	h.RegisterCheck("kafka", p.Check)
	closeFn := func() {
		if err := p.Close(); err != nil {
			log.Error("failed to close kafka producer", "error", err)
		}
	}
	return p, closeFn, nil
}
