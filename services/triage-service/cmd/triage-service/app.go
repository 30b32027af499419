package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	libconfig "github.com/md-rashed-zaman/notifytriage/libs/config"
	"github.com/md-rashed-zaman/notifytriage/libs/db"
	"github.com/md-rashed-zaman/notifytriage/libs/httpx"
	"github.com/md-rashed-zaman/notifytriage/libs/kafkax"
	otelx "github.com/md-rashed-zaman/notifytriage/libs/otel"
	"github.com/md-rashed-zaman/notifytriage/libs/redislock"
	"github.com/md-rashed-zaman/notifytriage/libs/runtime"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/batch"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/clinic"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/config"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/email"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/finalize"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/manuallist"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/metrics"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/outbox"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/processor"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/report"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/workqueue"
)

type app struct {
	cfg       config.Config
	logger    *slog.Logger
	pool      *db.Pool
	rdb       *redis.Client
	publisher *outbox.Publisher
	bridge    *clinic.Bridge
	registry  *prometheus.Registry
	runner    *batch.Runner
}

// withApp builds the service graph, runs fn and flushes outbox events and
// metrics afterwards whatever fn returned.
func withApp(parent context.Context, needsBridge bool, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := runtime.SignalContext(parent)
	defer stop()

	cfg, err := config.Load(libconfig.New(envFile))
	if err != nil {
		return err
	}
	if needsBridge {
		if err := cfg.RequireBridge(); err != nil {
			return err
		}
	}
	logger := runtime.NewLogger(config.ServiceName, cfg.LogLevel)

	shutdown := setupTracing(ctx, logger)
	defer shutdown()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := runtime.Preflight(ctx, cfg.PreflightTimeout, a.readyChecks(needsBridge)...); err != nil {
		logger.Error("preflight failed", "err", err)
		return err
	}

	runErr := fn(ctx, a)
	if runErr != nil {
		logger.Error("run failed", "run_id", a.runner.RunID(), "err", runErr)
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := a.publisher.Flush(flushCtx); err != nil {
		logger.Error("outbox flush failed", "err", err)
	}
	if err := metrics.Push(flushCtx, cfg.PushgatewayURL, config.ServiceName, a.registry); err != nil {
		logger.Error("metrics push failed", "err", err)
	}
	return runErr
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: int32(cfg.MaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, pool: pool, registry: prometheus.NewRegistry()}

	var lock batch.LockFunc
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		a.rdb = redis.NewClient(opts)
		locker := redislock.New(a.rdb, "triage")
		lock = func(ctx context.Context) (batch.Lease, error) {
			l, err := locker.Acquire(ctx, batch.SessionLockName, cfg.LockTTL)
			if err != nil {
				return nil, err
			}
			return l, nil
		}
	}

	queue := workqueue.NewRepository(pool)
	manualList := manuallist.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	a.publisher = outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		BatchSize: 100,
	})

	bridge := clinic.NewBridge(clinic.BridgeConfig{
		BaseURL:  cfg.BridgeURL,
		Token:    cfg.BridgeToken,
		Location: cfg.Location,
	}, httpx.NewClient(logger, cfg.BridgeTimeout))

	proc := processor.New(manualList, logger, processor.Config{Selector: cfg.Selector, Location: cfg.Location})
	generator := report.NewGenerator(manualList, email.NewSMTPSender(cfg.SMTP), logger, report.Config{
		TempDir:    cfg.TempDir,
		Recipients: cfg.ReportRecipients,
		Body:       cfg.ReportBody,
	})

	a.runner = batch.New(batch.Deps{
		Tx:        pool,
		Queue:     queue,
		Events:    outboxRepo,
		Processor: proc,
		App:       bridge,
		Gate:      finalize.NewGate(queue),
		Reporter:  generator,
	}, logger, batch.Config{
		Lock:    lock,
		Metrics: metrics.NewCollector(a.registry),
	})
	a.bridge = bridge
	return a, nil
}

func (a *app) readyChecks(needsBridge bool) []runtime.ReadyCheck {
	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(a.pool)},
	}
	if a.rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redislock.ReadyCheck(a.rdb)})
	}
	if len(a.cfg.KafkaBrokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(a.cfg.KafkaBrokers)})
	}
	if needsBridge {
		checks = append(checks, runtime.ReadyCheck{Name: "clinic-bridge", Check: a.bridge.ReadyCheck})
	}
	return checks
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.pool.Close()
}

func setupTracing(ctx context.Context, logger *slog.Logger) func() {
	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(config.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}
}
