package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	authhandler "vtrack/internal/auth/handler"
	"vtrack/internal/auth/lockout"
	"vtrack/internal/auth/revocation"
	authservice "vtrack/internal/auth/service"
	"vtrack/internal/auth/token"
	"vtrack/internal/authz"
	citationhandler "vtrack/internal/citation/handler"
	citationservice "vtrack/internal/citation/service"
	citationstore "vtrack/internal/citation/store"
	"vtrack/internal/evidence"
	"vtrack/internal/guard"
	orghandler "vtrack/internal/org/handler"
	orgservice "vtrack/internal/org/service"
	orgstore "vtrack/internal/org/store"
	"vtrack/internal/outbox"
	paymenthandler "vtrack/internal/payment/handler"
	paymentservice "vtrack/internal/payment/service"
	paymentstore "vtrack/internal/payment/store"
	"vtrack/internal/platform/config"
	"vtrack/internal/platform/metrics"
	"vtrack/internal/platform/middleware"
	"vtrack/internal/platform/postgres"
	vredis "vtrack/internal/platform/redis"
	schedulehandler "vtrack/internal/schedule/handler"
	scheduleservice "vtrack/internal/schedule/service"
	schedulestore "vtrack/internal/schedule/store"
	"vtrack/internal/storage/memory"
	httptransport "vtrack/internal/transport/http"
	userhandler "vtrack/internal/user/handler"
	userservice "vtrack/internal/user/service"
	userstore "vtrack/internal/user/store"
	violatorhandler "vtrack/internal/violator/handler"
	violatorservice "vtrack/internal/violator/service"
	violatorstore "vtrack/internal/violator/store"
	txcontext "vtrack/pkg/platform/tx"
)

type citationStore interface {
	citationservice.Store
	paymentservice.Citations
}

type outboxStore interface {
	outbox.Appender
	outbox.Store
}

// backend is one consistent set of stores over a single database.
type backend struct {
	db        *sql.DB
	tx        txcontext.Runner
	schedule  scheduleservice.Store
	violators violatorservice.Store
	citations citationStore
	payments  paymentservice.Store
	org       orgservice.Store
	users     userservice.Store
	refs      guard.Checker
	outbox    outboxStore
	health    httptransport.HealthCheck
	close     func() error
}

func newPostgresBackend(db *sql.DB, cfg config.Database) *backend {
	return &backend{
		db:        db,
		tx:        postgres.NewTxRunner(db, cfg.TxTimeout),
		schedule:  schedulestore.NewPostgres(db),
		violators: violatorstore.NewPostgres(db),
		citations: citationstore.NewPostgres(db),
		payments:  paymentstore.NewPostgres(db),
		org:       orgstore.NewPostgres(db),
		users:     userstore.NewPostgres(db),
		refs:      guard.NewPostgresChecker(db),
		outbox:    outbox.NewPostgresStore(db),
		health:    db.PingContext,
		close:     db.Close,
	}
}

func newMemoryBackend() *backend {
	db := memory.New()
	return &backend{
		tx:        db,
		schedule:  db.Schedule(),
		violators: db.Violators(),
		citations: db.Citations(),
		payments:  db.Payments(),
		org:       db.Org(),
		users:     db.Users(),
		refs:      db.References(),
		outbox:    db.Outbox(),
		health:    func(context.Context) error { return nil },
		close:     func() error { return nil },
	}
}

// openBackend picks Postgres when a database URL is configured and the
// in-memory database otherwise.
func openBackend(ctx context.Context, cfg config.Database, log *slog.Logger) (*backend, error) {
	if cfg.URL == "" {
		log.WarnContext(ctx, "DATABASE_URL not set, using in-memory storage")
		return newMemoryBackend(), nil
	}
	db, err := postgres.Open(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	return newPostgresBackend(db, cfg), nil
}

type services struct {
	schedule  *scheduleservice.Service
	violators *violatorservice.Service
	citations *citationservice.Service
	payments  *paymentservice.Service
	org       *orgservice.Service
	users     *userservice.Service
}

func newServices(b *backend, blobs evidence.Store, limits evidence.Limits, m *metrics.Metrics, log *slog.Logger) *services {
	g := guard.New(b.refs, guard.WithLogger(log), guard.WithMetrics(m))

	schedule := scheduleservice.New(b.schedule, b.tx, g,
		scheduleservice.WithLogger(log), scheduleservice.WithEvents(b.outbox))
	// The builder only reads violators; the registry below also lists their citations.
	violatorReads := violatorservice.New(b.violators, b.tx, g)
	citations := citationservice.New(b.citations, b.tx, g, schedule, violatorReads,
		citationservice.WithLogger(log),
		citationservice.WithEvents(b.outbox),
		citationservice.WithMetrics(m),
		citationservice.WithEvidence(blobs, limits),
	)
	violators := violatorservice.New(b.violators, b.tx, g,
		violatorservice.WithLogger(log),
		violatorservice.WithEvents(b.outbox),
		violatorservice.WithCitations(citations),
	)
	payments := paymentservice.New(b.payments, b.citations, b.tx,
		paymentservice.WithLogger(log),
		paymentservice.WithEvents(b.outbox),
		paymentservice.WithMetrics(m),
	)
	org := orgservice.New(b.org, b.tx, g, orgservice.WithLogger(log), orgservice.WithEvents(b.outbox))
	users := userservice.New(b.users, b.tx, g,
		userservice.WithLogger(log),
		userservice.WithEvents(b.outbox),
		userservice.WithTeams(b.org),
	)
	return &services{
		schedule:  schedule,
		violators: violators,
		citations: citations,
		payments:  payments,
		org:       org,
		users:     users,
	}
}

type revocationList interface {
	authservice.Revocations
	middleware.TokenRevocationChecker
}

// newRevocationList uses Redis when configured so logouts survive restarts
// and are shared between replicas.
func newRevocationList(ctx context.Context, cfg config.Redis, log *slog.Logger) (revocationList, *vredis.Client, error) {
	client, err := vredis.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.WarnContext(ctx, "REDIS_URL not set, token revocations are kept in memory")
		return revocation.NewMemory(), nil, nil
	}
	return revocation.NewRedis(client.Client), client, nil
}

type routerDeps struct {
	cfg         config.Config
	backend     *backend
	services    *services
	tokens      *token.Service
	revocations revocationList
	redis       *vredis.Client
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
}

func newRouter(d routerDeps) http.Handler {
	log := d.logger
	policy := authz.NewPolicy()
	svc := d.services
	var attempts lockout.Store = lockout.NewMemoryStore()
	if d.redis != nil {
		attempts = lockout.NewRedisStore(d.redis.Client)
	}
	logins := lockout.New(attempts, lockout.WithLogger(log), lockout.WithConfig(lockout.Config{
		MaxAttempts:  d.cfg.Auth.LoginMaxAttempts,
		Window:       d.cfg.Auth.LoginWindow,
		LockDuration: d.cfg.Auth.LoginLockDuration,
	}))
	auth := authhandler.New(authservice.New(svc.users, d.tokens, d.revocations, log, authservice.WithLockout(logins)), log, policy)

	health := map[string]httptransport.HealthCheck{"database": d.backend.health}
	if d.redis != nil {
		health["redis"] = d.redis.Health
	}

	maxUpload := d.cfg.Evidence.MaxBytes*int64(d.cfg.Evidence.MaxFiles) + 1<<20
	return httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Metrics:        d.metrics,
		Gatherer:       d.gatherer,
		Tokens:         d.tokens,
		Revocations:    d.revocations,
		RequestTimeout: d.cfg.Server.RequestTimeout,
		Health:         health,
	}, []httptransport.PublicRoutes{auth}, []httptransport.Routes{
		auth,
		schedulehandler.New(svc.schedule, log, policy),
		violatorhandler.New(svc.violators, log, policy),
		citationhandler.New(svc.citations, log, policy, maxUpload),
		paymenthandler.New(svc.payments, log, policy),
		orghandler.New(svc.org, log, policy),
		userhandler.New(svc.users, log, policy),
	})
}

// newOutboxWorker returns nil when no brokers are configured.
func newOutboxWorker(ctx context.Context, cfg config.Kafka, b *backend, m *metrics.Metrics, log *slog.Logger) (*outbox.Worker, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.InfoContext(ctx, "KAFKA_BROKERS not set, outbox relay disabled")
		return nil, func() {}, nil
	}
	publisher, err := outbox.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, nil, err
	}
	if err := publisher.EnsureTopic(ctx, -1, -1); err != nil {
		publisher.Close()
		return nil, nil, fmt.Errorf("ensure outbox topic: %w", err)
	}
	worker := outbox.NewWorker(b.outbox, publisher, b.tx, cfg.PollInterval,
		outbox.WithLogger(log), outbox.WithMetrics(m))
	return worker, publisher.Close, nil
}
