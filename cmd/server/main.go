// Command server runs the meridian session query engine: the
// dual-source transition service, its ops surface, and the audit
// pipeline, wired from environment configuration.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"meridian/internal/authtoken"
	"meridian/internal/flags"
	flagsmetrics "meridian/internal/flags/metrics"
	httpapi "meridian/internal/http"
	"meridian/internal/platform/config"
	"meridian/internal/platform/httpserver"
	"meridian/internal/platform/logger"
	platformmetrics "meridian/internal/platform/metrics"
	platformredis "meridian/internal/platform/redis"
	"meridian/internal/sessions"
	"meridian/internal/timezone"
	tzmetrics "meridian/internal/timezone/metrics"
	"meridian/internal/transition"
	"meridian/internal/transition/handler"
	tranmetrics "meridian/internal/transition/metrics"
	"meridian/internal/transition/ports"
	"meridian/internal/transition/store/events"
	"meridian/internal/transition/store/legacy"
	"meridian/internal/transition/store/profile"
	"meridian/pkg/platform/audit"
	auditkafka "meridian/pkg/platform/audit/store/kafka"
	auditmemory "meridian/pkg/platform/audit/store/memory"
	auditworker "meridian/pkg/platform/audit/worker"
	"meridian/pkg/platform/circuit"
)

const auditInboxSize = 256

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogFormat, cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit pipeline: a bounded channel feeds a background worker so
	// audit persistence stays off the query path.
	auditStore, closeAudit, err := buildAuditStore(cfg)
	if err != nil {
		return err
	}
	defer closeAudit()

	inbox := make(chan audit.Event, auditInboxSize)
	publisher := auditworker.NewPublisher(inbox, log)
	worker := auditworker.New(auditStore, inbox, log)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	tranMetrics := tranmetrics.New()
	onBreakerChange := breakerChangeHook(ctx, tranMetrics, publisher, log)

	legacyBreaker := newBreaker(transition.SourceLegacy, cfg.Breaker, log, onBreakerChange)
	utcBreaker := newBreaker(transition.SourceUTC, cfg.Breaker, log, onBreakerChange)

	tzService := timezone.New(
		timezone.WithLogger(log),
		timezone.WithMetrics(tzmetrics.New()),
	)

	merger, err := sessions.NewMerger(tzService, sessions.WithLogger(log))
	if err != nil {
		return err
	}

	globalMode, err := flags.ParseTransitionMode(cfg.Transition.Mode)
	if err != nil {
		log.Warn("unusable transition mode in config, starting disabled",
			"mode", cfg.Transition.Mode,
			"error", err,
		)
		globalMode = flags.ModeDisabled
	}
	router := flags.NewRouter(transition.FeatureName,
		flags.WithLogger(log),
		flags.WithMetrics(flagsmetrics.New()),
		flags.WithGlobalMode(globalMode),
		flags.WithRoutingConfig(flags.RoutingConfig{
			PreferUTC:        cfg.Transition.PreferUTC,
			FallbackToLegacy: cfg.Transition.FallbackToLegacy,
		}),
		flags.WithResettables(legacyBreaker, utcBreaker),
	)

	legacyStore, closeLegacy, err := buildLegacyStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeLegacy()

	eventStore, closeEvents, err := buildEventStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeEvents()

	engine, err := transition.New(tzService, merger, router,
		legacyStore, eventStore, profile.NewMemoryWithDefault(cfg.DefaultTimezone),
		transition.WithLogger(log),
		transition.WithMetrics(tranMetrics),
		transition.WithAudit(publisher),
		transition.WithBreakers(legacyBreaker, utcBreaker),
	)
	if err != nil {
		return err
	}

	tokens := authtoken.New(cfg.JWTSigningKey)
	transitionHandler := handler.New(engine, tzService, tokens, cfg.AdminTokenHash, log)

	mux := httpapi.NewRouter(log, platformmetrics.New(), transitionHandler)
	srv := httpserver.New(cfg.Addr, mux)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting meridian",
			"addr", cfg.Addr,
			"transition_mode", string(globalMode),
			"prefer_utc", cfg.Transition.PreferUTC,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newBreaker(source string, cfg config.Breaker, log *slog.Logger, onChange func(string, circuit.State, circuit.State)) *circuit.Breaker {
	return circuit.New(source,
		circuit.WithFailureThreshold(cfg.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.SuccessThreshold),
		circuit.WithResetTimeout(cfg.ResetTimeout),
		circuit.WithMonitorWindow(cfg.MonitorWindow),
		circuit.WithMaxRetries(cfg.MaxRetries),
		circuit.WithLogger(log),
		circuit.WithOnStateChange(onChange),
	)
}

// breakerChangeHook exports breaker transitions to the state gauge and
// the audit trail.
func breakerChangeHook(ctx context.Context, m *tranmetrics.Metrics, publisher ports.AuditPublisher, log *slog.Logger) func(string, circuit.State, circuit.State) {
	gaugeValue := map[circuit.State]float64{
		circuit.StateClosed:   0,
		circuit.StateHalfOpen: 1,
		circuit.StateOpen:     2,
	}
	actions := map[circuit.State]audit.Action{
		circuit.StateClosed:   audit.ActionBreakerClosed,
		circuit.StateHalfOpen: audit.ActionBreakerHalfOpened,
		circuit.StateOpen:     audit.ActionBreakerOpened,
	}

	return func(name string, from, to circuit.State) {
		m.SetBreakerState(name, gaugeValue[to])
		if err := publisher.Emit(ctx, audit.Event{
			Action:  actions[to],
			Feature: transition.FeatureName,
			ActorID: name,
			Detail:  []any{"from", from.String(), "to", to.String()},
		}); err != nil {
			log.Warn("audit emit failed for breaker transition",
				"circuit", name,
				"error", err,
			)
		}
	}
}

// buildAuditStore picks the audit sink: Kafka when brokers are
// configured, the in-memory ring otherwise.
func buildAuditStore(cfg config.Config) (audit.Store, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		return auditmemory.New(0), func() {}, nil
	}
	store, err := auditkafka.New(cfg.KafkaBrokers, cfg.AuditTopic)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// buildLegacyStore connects the day-aggregate adapter: PostgreSQL when
// a DSN is configured, in-memory otherwise.
func buildLegacyStore(cfg config.Config, log *slog.Logger) (ports.LegacyStore, func(), error) {
	if cfg.PostgresDSN == "" {
		log.Warn("no postgres DSN configured, legacy store runs in-memory")
		return legacy.NewMemory(), func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return legacy.NewPostgres(db), func() { _ = db.Close() }, nil
}

// buildEventStore connects the UTC event adapter: Redis when a URL is
// configured, in-memory otherwise.
func buildEventStore(ctx context.Context, cfg config.Config, log *slog.Logger) (ports.EventStore, func(), error) {
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Warn("no redis URL configured, UTC event store runs in-memory")
		return events.NewMemory(), func() {}, nil
	}
	return events.NewRedis(client.Client), func() { _ = client.Close() }, nil
}
