package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"oddcert/internal/agentauth"
	certMetrics "oddcert/internal/certification/metrics"
	"oddcert/internal/certification/ports"
	certService "oddcert/internal/certification/service"
	certMemory "oddcert/internal/certification/store/memory"
	certPostgres "oddcert/internal/certification/store/postgres"
	"oddcert/internal/discovery"
	"oddcert/internal/notify"
	"oddcert/internal/platform/config"
	"oddcert/internal/platform/metrics"
	platformpg "oddcert/internal/platform/postgres"
	platformredis "oddcert/internal/platform/redis"
	"oddcert/internal/session/adapters"
	sessionMetrics "oddcert/internal/session/metrics"
	sessionService "oddcert/internal/session/service"
	sessionMemory "oddcert/internal/session/store/memory"
	sessionRedis "oddcert/internal/session/store/redis"
	httptransport "oddcert/internal/transport/http"
	audit "oddcert/pkg/platform/audit"
	"oddcert/pkg/platform/audit/outbox"
	"oddcert/pkg/platform/audit/publisher"
	"oddcert/pkg/platform/audit/publishers/ops"
	auditmemory "oddcert/pkg/platform/audit/store/memory"
	auditpg "oddcert/pkg/platform/audit/store/postgres"
)

const (
	auditSampleRate      = 1.0
	auditBreakerFailures = 5
	auditBreakerCooldown = 30 * time.Second
)

// app is the assembled service graph. Resources are released by close in
// reverse order of acquisition.
type app struct {
	handler  http.Handler
	sessions *sessionService.Service
	certs    *certService.Service
	relay    *outbox.Relay
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires stores, services and the router from cfg. An empty
// DATABASE_URL or REDIS_URL selects the in-memory stores.
func buildApp(ctx context.Context, cfg config.Server, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	health := map[string]httptransport.HealthCheck{}

	var db *sql.DB
	if cfg.Postgres.URL != "" {
		db, err = platformpg.Open(ctx, platformpg.Config{
			URL:             cfg.Postgres.URL,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err = platformpg.Migrate(ctx, db); err != nil {
			return nil, err
		}
		health["postgres"] = db.PingContext
	}

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		health["redis"] = rdb.Health
	}

	var auditStore audit.Store
	if db != nil {
		pgAudit := auditpg.New(db)
		auditStore = pgAudit
		if len(cfg.Kafka.Brokers) > 0 {
			if a.relay, err = newRelay(ctx, cfg, pgAudit, logger, a); err != nil {
				return nil, err
			}
		}
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithSampler(ops.NewSampler(auditSampleRate)),
		publisher.WithCircuitBreaker(ops.NewCircuitBreaker(auditBreakerFailures, auditBreakerCooldown)),
		publisher.WithOpsMetrics(ops.NewMetrics(reg)),
		publisher.WithLogger(logger),
	)
	a.closers = append(a.closers, auditPublisher.Close)

	var notifier ports.Notifier
	if cfg.NATS.URL != "" {
		nc, connErr := notify.Connect(cfg.NATS.URL, logger)
		if connErr != nil {
			return nil, connErr
		}
		a.closers = append(a.closers, nc.Close)
		notifier = nc
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	tokens := agentauth.NewService(cfg.Certification.AgentTokenKey, agentauth.WithTTL(cfg.Certification.AgentTokenTTL))
	registry := discovery.NewRegistry(
		discovery.WithMaxCategories(cfg.Discovery.MaxCategories),
		discovery.WithSafetyMargin(cfg.Discovery.SafetyMargin),
		discovery.WithLogger(logger),
	)

	var sessionStore sessionService.Store
	if rdb != nil {
		sessionStore = sessionRedis.NewRedis(rdb.Client, sessionRedis.WithEndedRetention(cfg.Redis.EndedTTL))
	} else {
		sessionStore = sessionMemory.New()
	}

	var stores certService.Stores
	if db != nil {
		pg := certPostgres.NewPostgres(db)
		stores = certService.Stores{Applications: pg, Certificates: pg, Evidence: pg, Tx: pg}
	} else {
		mem := certMemory.New()
		stores = certService.Stores{Applications: mem, Certificates: mem, Evidence: mem, Tx: mem}
	}

	a.certs = certService.New(stores,
		sessionService.NewDirectory(sessionStore, cfg.Session.HeartbeatTimeout),
		registry,
		certService.WithLogger(logger),
		certService.WithMetrics(certMetrics.New(reg)),
		certService.WithAuditPublisher(auditPublisher),
		certService.WithNotifier(notifier),
		certService.WithCredentialIssuer(tokens),
		certService.WithCAT72Hours(cfg.Certification.CAT72Hours),
		certService.WithCertificateValidity(cfg.Certification.CertificateValidity),
	)
	a.sessions = sessionService.New(sessionStore, adapters.NewCertificationAdapter(a.certs), registry,
		sessionService.WithLogger(logger),
		sessionService.WithMetrics(sessionMetrics.New(reg)),
		sessionService.WithAuditPublisher(auditPublisher),
		sessionService.WithHeartbeatTimeout(cfg.Session.HeartbeatTimeout),
		sessionService.WithEndAfter(cfg.Session.EndAfter),
		sessionService.WithMaxBatch(cfg.Session.MaxBatch),
	)

	a.handler = httptransport.NewRouter(httptransport.Deps{
		Certification: a.certs,
		Sessions:      a.sessions,
		AgentAuth:     tokens,
		Logger:        logger,
		Metrics:       metrics.New(reg),
		Gatherer:      reg,
		Health:        health,
	})
	return a, nil
}

func newRelay(ctx context.Context, cfg config.Server, source outbox.Source, logger *slog.Logger, a *app) (*outbox.Relay, error) {
	client, err := outbox.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	relay := outbox.NewRelay(source, client, cfg.Kafka.TopicPrefix,
		outbox.WithInterval(cfg.Audit.OutboxInterval),
		outbox.WithLogger(logger),
	)
	if err := outbox.EnsureTopics(ctx, client, relay.Topics(), cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
		return nil, fmt.Errorf("ensure audit topics: %w", err)
	}
	return relay, nil
}
