package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"arc-framework/rsinit/internal/api"
	"arc-framework/rsinit/internal/bootstrap"
	"arc-framework/rsinit/internal/clients"
	"arc-framework/rsinit/internal/config"
	"arc-framework/rsinit/internal/replset"
	"arc-framework/rsinit/internal/telemetry"
)

const closeTimeout = 5 * time.Second

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE; every subcommand must
// call close on the way out.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	mongo        *clients.MongoClient
	initiator    *bootstrap.Initiator
	router       *api.Router
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Creates the node client and, when configured, the NATS notifier,
//     each with its own circuit breaker
//  3. Creates the initiator
//  4. Creates the HTTP router
func buildAppContext(cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// When OTLPEndpoint is empty telemetry is disabled entirely, which avoids
	// periodic-reader noise when no collector is running locally.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(
			context.Background(),
			cfg.Telemetry.OTLPEndpoint,
			cfg.Telemetry.ServiceName,
			cfg.Telemetry.OTLPInsecure,
		)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
			// Fan out: keep stderr (TraceHandler+JSONHandler) and add OTEL logs.
			slog.SetDefault(slog.New(telemetry.NewTeeHandler(
				slog.Default().Handler(),
				tp.LogHandler,
			)))
		}
	}

	node, err := clients.NewMongoClient(cfg.Bootstrap.Target, clients.NewCircuitBreaker("mongodb"))
	if err != nil {
		app.close()
		return nil, err
	}
	app.mongo = node

	// A nil *NATSNotifier stored in the interface would not compare equal to
	// nil, so the interface stays unset when notify is disabled.
	var notifier bootstrap.Notifier
	if cfg.Bootstrap.Notify.NATS.URL != "" {
		notifier = clients.NewNATSNotifier(cfg.Bootstrap.Notify.NATS, clients.NewCircuitBreaker("nats"))
	}

	app.initiator = bootstrap.New(node, notifier, bootstrap.Options{
		ReplicaSet:         replicaSetConfig(cfg.Bootstrap),
		PollInterval:       cfg.Bootstrap.PollInterval,
		ReadinessTimeout:   cfg.Bootstrap.ReadinessTimeout,
		ConvergenceTimeout: cfg.Bootstrap.ConvergenceTimeout,
		CommandTimeout:     cfg.Bootstrap.CommandTimeout,
	})
	app.router = api.NewRouter(app.initiator, cfg.Bootstrap.Timeout)

	slog.Debug("app context ready",
		"target", node.Addr(),
		"replica_set", cfg.Bootstrap.ReplicaSet.ID,
		"notify", notifier != nil,
	)
	return app, nil
}

// replicaSetConfig builds the configuration to initiate. With no members
// configured the set has one member: the target itself.
func replicaSetConfig(b config.BootstrapConfig) replset.Config {
	if len(b.ReplicaSet.Members) == 0 {
		return replset.SingleMember(b.ReplicaSet.ID, b.Target.Addr())
	}
	members := make([]replset.Member, len(b.ReplicaSet.Members))
	for i, m := range b.ReplicaSet.Members {
		members[i] = replset.Member{ID: m.ID, Host: m.Host}
	}
	return replset.Config{ID: b.ReplicaSet.ID, Members: members}
}

// close disconnects from the node and flushes telemetry. It is safe to call
// on a partially built AppContext.
func (a *AppContext) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			slog.Warn("mongo disconnect error", "err", err)
		}
	}
	if a.otelProvider != nil {
		if err := a.otelProvider.Shutdown(ctx); err != nil {
			slog.Warn("OTEL shutdown error", "err", err)
		}
	}
}

// describe is used in error messages that name the bootstrap target.
func (a *AppContext) describe() string {
	return fmt.Sprintf("%s (replica set %s)", a.mongo.Addr(), a.cfg.Bootstrap.ReplicaSet.ID)
}
