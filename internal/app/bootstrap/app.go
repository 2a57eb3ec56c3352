package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/arteita/fretebot/internal/api/router"
	"github.com/arteita/fretebot/internal/archive"
	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/internal/events"
	"github.com/arteita/fretebot/internal/extraction"
	httpmiddleware "github.com/arteita/fretebot/internal/http/middleware"
	"github.com/arteita/fretebot/internal/inbound"
	"github.com/arteita/fretebot/internal/notify"
	"github.com/arteita/fretebot/pkg/logging"
)

const processedEventsPurgeInterval = time.Hour

// Clients are the cloud SDK clients the app may use. Any of them may be nil.
type Clients struct {
	Bedrock extraction.BedrockConverseAPI
	S3      archive.S3API
	SQS     inbound.SQSAPI
	SES     notify.SESAPI
}

// App is the fully wired process: the HTTP surface plus its background loops.
type App struct {
	Handler   http.Handler
	Messaging *Messaging

	cfg       *appconfig.Config
	logger    *logging.Logger
	worker    *inbound.Worker
	pipeline  *EventPipeline
	limiter   *httpmiddleware.RateLimiter
	processed *events.ProcessedStore
	pool      *pgxpool.Pool
	db        *sql.DB
	redis     *redis.Client
	oracle    *extraction.Service

	wg sync.WaitGroup
}

// NewApp builds every component from cfg. Optional infrastructure that is not
// configured is replaced by its in-process counterpart.
func NewApp(ctx context.Context, cfg *appconfig.Config, clients Clients, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{cfg: cfg, logger: logger}

	pool, err := BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	app.pool = pool
	if app.db, err = BuildSQLDB(cfg.DatabaseURL); err != nil {
		app.Close()
		return nil, err
	}
	if cfg.SessionBackend == "redis" || cfg.RedisAddr != "" {
		app.redis = BuildRedisClient(ctx, cfg, logger, true)
	}

	m, metricsHandler := BuildMetrics()

	store, locker, err := BuildSessionStore(cfg, app.redis, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	queue, err := BuildQueue(cfg, clients.SQS, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	oracle, err := BuildOracle(ctx, cfg, clients.Bedrock, pool, m, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.oracle = oracle

	msg := BuildMessaging(cfg, pool, m, logger)
	app.Messaging = msg

	notifier := BuildNotifier(cfg, BuildEmailSender(cfg, clients.SES, logger), msg.Gateway, logger)
	app.pipeline = BuildEventPipeline(cfg, pool, notifier, logger)

	repo := BuildFreightRepository(pool, logger)
	engine := BuildEngine(cfg, EngineDeps{
		Store:     store,
		Locker:    locker,
		Messenger: msg.Gateway,
		Freight:   repo,
		Oracle:    oracle,
		Archive:   archive.NewMediaStore(clients.S3, cfg.MediaArchiveBucket, logger),
		Publisher: app.pipeline.Publisher,
		Metrics:   m,
	}, logger)
	opps := BuildOpportunities(cfg, app.db, pool, repo, oracle, notifier, app.pipeline.Publisher, m, logger)

	var groups inbound.GroupProcessor
	if opps.Groups != nil {
		groups = opps.Monitor
	}
	app.worker = inbound.NewWorker(queue, engine, groups, logger,
		inbound.WithWorkerCount(cfg.WorkerCount),
		inbound.WithReadMarker(msg.Gateway),
	)
	dispatcher := inbound.NewDispatcher(queue, logger,
		inbound.WithDeduper(BuildDeduper(cfg, app.redis, pool, logger)),
		inbound.WithDispatcherMetrics(m),
	)
	if pool != nil {
		app.processed = events.NewProcessedStore(pool)
	}

	webhook, waAdmin := BuildMessagingHandlers(cfg, msg, dispatcher, m, logger)
	if cfg.WebhookRatePerSecond > 0 && cfg.WebhookRateBurst > 0 {
		app.limiter = httpmiddleware.NewRateLimiter(cfg.WebhookRatePerSecond, cfg.WebhookRateBurst)
	}
	app.Handler = router.New(&router.Config{
		Logger:          logger,
		Webhook:         webhook,
		WhatsAppAdmin:   waAdmin,
		Opportunities:   opps.Admin,
		MetricsHandler:  metricsHandler,
		AdminAuthSecret: cfg.AdminJWTSecret,
		AdminJWTIssuer:  cfg.AdminJWTIssuer,
		WebhookLimiter:  app.limiter,
		HealthChecks:    app.healthChecks(),
	})
	return app, nil
}

func (a *App) healthChecks() map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if a.pool != nil {
		checks["postgres"] = a.pool.Ping
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}

// Start runs the worker pool and the maintenance loops.
func (a *App) Start(ctx context.Context) {
	a.StartWorkers(ctx)
	a.StartMaintenance(ctx)
}

// StartWorkers launches the inbound consumers. They stop when ctx is canceled.
func (a *App) StartWorkers(ctx context.Context) {
	a.worker.Start(ctx)
	a.logger.Info("inbound workers started", "count", a.cfg.WorkerCount, "queue", a.cfg.QueueBackend)
}

// StartMaintenance launches outbox delivery, rate limiter eviction and the
// processed events purge.
func (a *App) StartMaintenance(ctx context.Context) {
	if d := a.pipeline.Deliverer; d != nil {
		a.goLoop(func() { d.Start(ctx) })
	}
	if a.limiter != nil {
		a.goLoop(func() { a.limiter.Run(ctx, 5*time.Minute) })
	}
	if a.processed != nil {
		a.goLoop(func() { a.purgeProcessed(ctx) })
	}
}

func (a *App) goLoop(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *App) purgeProcessed(ctx context.Context) {
	ticker := time.NewTicker(processedEventsPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.processed.Purge(ctx, time.Now().Add(-a.cfg.DedupTTL))
			if err != nil {
				a.logger.Warn("processed events purge failed", "error", err)
				continue
			}
			if removed > 0 {
				a.logger.Info("processed events purged", "count", removed)
			}
		}
	}
}

// Wait blocks until the workers and background loops exit.
func (a *App) Wait() {
	if a.worker != nil {
		a.worker.Wait()
	}
	a.wg.Wait()
}

// Close releases connections. Call it after Wait.
func (a *App) Close() error {
	var errs []error
	if err := a.pipeline.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.oracle != nil {
		if err := a.oracle.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
