package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"arc-framework/rsinit/internal/replset"
)

const instrumentationName = "arc-rsinit"

// ErrBootstrapInProgress is returned when Run is called while a bootstrap is
// already running.
var ErrBootstrapInProgress = errors.New("bootstrap already in progress")

// NodeClient is the administrative surface of the target node. It is
// satisfied by *clients.MongoClient.
type NodeClient interface {
	Ping(ctx context.Context) error
	// ExistingConfig returns replset.ErrNotInitialized when the node has no
	// replica set configuration yet.
	ExistingConfig(ctx context.Context) (*replset.Config, error)
	// Initiate returns replset.ErrAlreadyInitialized when a configuration
	// was installed concurrently.
	Initiate(ctx context.Context, cfg replset.Config) error
	Status(ctx context.Context) (*replset.Status, error)
	Probe(ctx context.Context) ProbeResult
}

// Notifier announces a converged replica set. It is satisfied by
// *clients.NATSNotifier.
type Notifier interface {
	Notify(ctx context.Context, ev ReadyEvent) error
	Probe(ctx context.Context) ProbeResult
}

// Options configure the initiator. All durations must be positive.
type Options struct {
	ReplicaSet         replset.Config
	PollInterval       time.Duration
	ReadinessTimeout   time.Duration
	ConvergenceTimeout time.Duration
	CommandTimeout     time.Duration
}

// Initiator drives a fresh node into a converged replica set.
type Initiator struct {
	node     NodeClient
	notifier Notifier
	opts     Options

	tracer   trace.Tracer
	runs     metric.Int64Counter
	attempts metric.Int64Histogram

	bootstrapInProgress atomic.Bool
	lastResult          *Result
	resultMu            sync.RWMutex
}

// New constructs an Initiator. notifier may be nil, in which case the notify
// phase is skipped.
func New(node NodeClient, notifier Notifier, opts Options) *Initiator {
	meter := otel.Meter(instrumentationName)

	// Instrument creation only fails on invalid names; a nil instrument is
	// never recorded to.
	runs, err := meter.Int64Counter("rsinit.bootstrap.runs",
		metric.WithDescription("Bootstrap runs by final status"))
	if err != nil {
		slog.Warn("creating runs counter", "err", err)
	}
	attempts, err := meter.Int64Histogram("rsinit.phase.attempts",
		metric.WithDescription("Polling attempts per bootstrap phase"))
	if err != nil {
		slog.Warn("creating attempts histogram", "err", err)
	}

	return &Initiator{
		node:     node,
		notifier: notifier,
		opts:     opts,
		tracer:   otel.Tracer(instrumentationName),
		runs:     runs,
		attempts: attempts,
	}
}

// Run executes readiness → initiate → convergence → status → notify. The
// first failing phase halts the sequence; its error is returned alongside
// the result, which is always non-nil unless ErrBootstrapInProgress is
// returned. A notify failure is recorded but does not fail the run.
func (i *Initiator) Run(ctx context.Context) (*Result, error) {
	if !i.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	defer i.bootstrapInProgress.Store(false)

	result := &Result{
		RunID:      uuid.NewString(),
		ReplicaSet: i.opts.ReplicaSet.ID,
		Status:     StatusInProgress,
		State:      StateUnready,
	}

	ctx, span := i.tracer.Start(ctx, "rsinit.bootstrap", trace.WithAttributes(
		attribute.String("bootstrap.run_id", result.RunID),
		attribute.String("replset.id", result.ReplicaSet),
	))
	defer span.End()

	logger := slog.Default().With("run_id", result.RunID, "replica_set", result.ReplicaSet)
	logger.InfoContext(ctx, "bootstrap started", "members", i.opts.ReplicaSet.Hosts())

	err := i.run(ctx, logger, result)

	if err != nil {
		result.Status = StatusError
		result.State = StateFailed
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "bootstrap failed")
		logger.ErrorContext(ctx, "bootstrap failed", "err", err)
	} else {
		result.Status = StatusOK
		span.SetStatus(codes.Ok, "")
		logger.InfoContext(ctx, "bootstrap completed", "initiated", result.Initiated)
	}
	span.SetAttributes(attribute.String("bootstrap.status", result.Status))
	if i.runs != nil {
		i.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", result.Status)))
	}

	i.resultMu.Lock()
	i.lastResult = result
	i.resultMu.Unlock()

	return result, err
}

func (i *Initiator) run(ctx context.Context, logger *slog.Logger, result *Result) error {
	cfg := i.opts.ReplicaSet

	if err := i.phase(ctx, logger, result, PhaseReadiness, func(ctx context.Context) (int, error) {
		return i.AwaitReadiness(ctx)
	}); err != nil {
		return err
	}
	result.State = StateReady

	if err := i.phase(ctx, logger, result, PhaseInitiate, func(ctx context.Context) (int, error) {
		initiated, err := i.InitiateReplicaSet(ctx, cfg)
		result.Initiated = initiated
		return 1, err
	}); err != nil {
		return err
	}
	result.State = StateConfigured

	if err := i.phase(ctx, logger, result, PhaseConvergence, func(ctx context.Context) (int, error) {
		return i.AwaitConvergence(ctx, cfg.ID)
	}); err != nil {
		return err
	}
	result.State = StateConverged

	if err := i.phase(ctx, logger, result, PhaseStatus, func(ctx context.Context) (int, error) {
		status, err := i.ReportStatus(ctx)
		result.Snapshot = status
		return 1, err
	}); err != nil {
		return err
	}
	result.State = StateReported

	i.notify(ctx, logger, result)
	return nil
}

// phase runs fn inside a child span and appends its PhaseResult.
func (i *Initiator) phase(ctx context.Context, logger *slog.Logger, result *Result, name string, fn func(ctx context.Context) (int, error)) error {
	ctx, span := i.tracer.Start(ctx, "rsinit.phase."+name)
	defer span.End()

	start := time.Now()
	attempts, err := fn(ctx)

	p := PhaseResult{
		Name:       name,
		Status:     StatusOK,
		Attempts:   attempts,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		p.Status = StatusError
		p.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
	}
	result.Phases = append(result.Phases, p)

	span.SetAttributes(attribute.Int("phase.attempts", attempts))
	if i.attempts != nil {
		i.attempts.Record(ctx, int64(attempts), metric.WithAttributes(attribute.String("phase", name)))
	}
	logPhase(ctx, logger, p)

	return err
}

func (i *Initiator) notify(ctx context.Context, logger *slog.Logger, result *Result) {
	if i.notifier == nil {
		result.Phases = append(result.Phases, PhaseResult{Name: PhaseNotify, Status: StatusSkipped})
		return
	}

	ev := ReadyEvent{
		RunID:      result.RunID,
		ReplicaSet: result.ReplicaSet,
		Members:    i.opts.ReplicaSet.Hosts(),
		Initiated:  result.Initiated,
		Timestamp:  time.Now().UTC(),
	}
	if s := result.Snapshot; s != nil {
		ev.Term = s.Term
		if primary, ok := s.Primary(); ok {
			ev.Primary = primary.Name
		}
	}

	// The replica set is already converged; a failed announcement is
	// reported but must not turn the run into a failure.
	_ = i.phase(ctx, logger, result, PhaseNotify, func(ctx context.Context) (int, error) {
		callCtx, cancel := context.WithTimeout(ctx, i.opts.CommandTimeout)
		defer cancel()
		return 1, i.notifier.Notify(callCtx, ev)
	})
}

// AwaitReadiness polls the node with ping until it answers. It returns the
// number of attempts made. No configuration command is issued.
func (i *Initiator) AwaitReadiness(ctx context.Context) (int, error) {
	attempts, err := poll(ctx, i.opts.PollInterval, i.opts.ReadinessTimeout, func(ctx context.Context) (bool, error) {
		callCtx, cancel := context.WithTimeout(ctx, i.opts.CommandTimeout)
		defer cancel()

		if err := i.node.Ping(callCtx); err != nil {
			slog.DebugContext(ctx, "node not ready", "err", err)
			return false, err
		}
		return true, nil
	})
	if errors.Is(err, errGaveUp) {
		return attempts, fmt.Errorf("%w: %w", replset.ErrReadinessTimeout, err)
	}
	return attempts, err
}

// InitiateReplicaSet submits cfg unless the node already carries it. The
// returned bool is true only when this call installed the configuration.
// An existing set with a different identifier or membership is left untouched
// and reported as replset.ErrAlreadyInitializedDifferently.
func (i *Initiator) InitiateReplicaSet(ctx context.Context, cfg replset.Config) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}

	existing, err := i.existingConfig(ctx)
	switch {
	case errors.Is(err, replset.ErrNotInitialized):
	case err != nil:
		return false, err
	default:
		slog.InfoContext(ctx, "replica set already configured", "replica_set", existing.ID, "version", existing.Version)
		return false, compareExisting(cfg, existing)
	}

	callCtx, cancel := context.WithTimeout(ctx, i.opts.CommandTimeout)
	defer cancel()

	err = i.node.Initiate(callCtx, cfg)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "replica set initiated", "replica_set", cfg.ID, "members", cfg.Hosts())
		return true, nil
	case errors.Is(err, replset.ErrAlreadyInitialized):
		// Someone else initiated between our check and submit.
		existing, err := i.existingConfig(ctx)
		if err != nil {
			return false, err
		}
		return false, compareExisting(cfg, existing)
	default:
		return false, withKind(err, replset.ErrUnreachable)
	}
}

func (i *Initiator) existingConfig(ctx context.Context) (*replset.Config, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.opts.CommandTimeout)
	defer cancel()

	existing, err := i.node.ExistingConfig(callCtx)
	if err != nil {
		if errors.Is(err, replset.ErrNotInitialized) {
			return nil, err
		}
		return nil, withKind(err, replset.ErrUnreachable)
	}
	return existing, nil
}

func compareExisting(want replset.Config, existing *replset.Config) error {
	if want.Matches(*existing) {
		return nil
	}
	return fmt.Errorf("%w: node has set %q with members %v, requested %q with members %v",
		replset.ErrAlreadyInitializedDifferently, existing.ID, existing.Hosts(), want.ID, want.Hosts())
}

// AwaitConvergence polls replica set status until the answering node is
// primary of set id. It returns the number of attempts made.
func (i *Initiator) AwaitConvergence(ctx context.Context, id string) (int, error) {
	attempts, err := poll(ctx, i.opts.PollInterval, i.opts.ConvergenceTimeout, func(ctx context.Context) (bool, error) {
		callCtx, cancel := context.WithTimeout(ctx, i.opts.CommandTimeout)
		defer cancel()

		status, err := i.node.Status(callCtx)
		if err != nil {
			if errors.Is(err, replset.ErrConfigurationRejected) {
				return false, permanent(err)
			}
			return false, err
		}
		if status.Converged(id) {
			return true, nil
		}

		state := "no self entry"
		if self, ok := status.Self(); ok {
			state = self.StateStr
		}
		slog.DebugContext(ctx, "replica set not converged", "set", status.Set, "state", state)
		return false, fmt.Errorf("set %q member state %s", status.Set, state)
	})
	if errors.Is(err, errGaveUp) {
		return attempts, fmt.Errorf("%w: %w", replset.ErrConvergenceTimeout, err)
	}
	return attempts, err
}

// ReportStatus fetches the current status snapshot.
func (i *Initiator) ReportStatus(ctx context.Context) (*replset.Status, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.opts.CommandTimeout)
	defer cancel()

	status, err := i.node.Status(callCtx)
	if err != nil {
		if errors.Is(err, replset.ErrNotInitialized) {
			return nil, err
		}
		return nil, withKind(err, replset.ErrUnreachable)
	}
	return status, nil
}

// RunDeepHealth probes the node and, when configured, the notifier
// concurrently and returns a map of dependency name to ProbeResult.
func (i *Initiator) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, 2)
	var mu sync.Mutex
	var g errgroup.Group

	g.Go(func() error {
		probe := i.node.Probe(ctx)
		mu.Lock()
		results["mongodb"] = probe
		mu.Unlock()
		return nil
	})

	if i.notifier != nil {
		g.Go(func() error {
			probe := i.notifier.Probe(ctx)
			mu.Lock()
			results["nats"] = probe
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// IsBootstrapInProgress returns true while a bootstrap run is active.
func (i *Initiator) IsBootstrapInProgress() bool {
	return i.bootstrapInProgress.Load()
}

// IsReady returns true if the last bootstrap completed with StatusOK.
func (i *Initiator) IsReady() bool {
	i.resultMu.RLock()
	defer i.resultMu.RUnlock()
	return i.lastResult != nil && i.lastResult.Status == StatusOK
}

// LastResult returns the result of the most recent completed run, or nil.
func (i *Initiator) LastResult() *Result {
	i.resultMu.RLock()
	defer i.resultMu.RUnlock()
	return i.lastResult
}

// withKind wraps err with kind unless it already carries a failure kind.
func withKind(err, kind error) error {
	if replset.Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// logPhase emits a trace-correlated log for a bootstrap phase result.
func logPhase(ctx context.Context, logger *slog.Logger, p PhaseResult) {
	if p.Status == StatusOK {
		logger.InfoContext(ctx, "bootstrap phase ok", "phase", p.Name, "attempts", p.Attempts, "duration_ms", p.DurationMs)
		return
	}
	logger.WarnContext(ctx, "bootstrap phase failed", "phase", p.Name, "attempts", p.Attempts, "error", p.Error)
}
