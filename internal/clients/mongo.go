package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"arc-framework/rsinit/internal/bootstrap"
	"arc-framework/rsinit/internal/config"
	"arc-framework/rsinit/internal/replset"
)

const mongoProbeName = "mongodb"

// Server error codes the bootstrap sequence reacts to.
const (
	codeBadValue                = 2
	codeAlreadyInitialized      = 23
	codeNodeNotFound            = 74
	codeNoReplicationEnabled    = 76
	codeInvalidReplicaSetConfig = 93
	codeNotYetInitialized       = 94
	codeNewConfigIncompatible   = 103
)

// commandRunner runs an admin database command and decodes the reply into
// result, which may be nil. It is implemented by the real driver and by
// test doubles.
type commandRunner interface {
	RunCommand(ctx context.Context, cmd bson.D, result any) error
	Close(ctx context.Context) error
}

// realCommandRunner adapts *mongo.Client to commandRunner.
type realCommandRunner struct {
	client *mongo.Client
}

func (r *realCommandRunner) RunCommand(ctx context.Context, cmd bson.D, result any) error {
	res := r.client.Database("admin").RunCommand(ctx, cmd)
	if result == nil {
		return res.Err()
	}
	return res.Decode(result)
}

func (r *realCommandRunner) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// MongoClient issues the replica set administrative commands against a
// single node over a direct connection. It owns the connection handle for the
// lifetime of the process; callers must Close it.
type MongoClient struct {
	addr   string
	cb     *gobreaker.CircuitBreaker
	runner commandRunner
}

// NewMongoClient creates a MongoClient. The driver connects lazily, so no
// network traffic happens until the first command.
func NewMongoClient(cfg config.TargetConfig, cb *gobreaker.CircuitBreaker) (*MongoClient, error) {
	opts := options.Client().
		SetHosts([]string{cfg.Addr()}).
		SetDirect(true).
		SetAppName("arc-rsinit").
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout)
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		return nil, fmt.Errorf("creating mongo client for %s: %w", cfg.Addr(), err)
	}

	return &MongoClient{
		addr:   cfg.Addr(),
		cb:     cb,
		runner: &realCommandRunner{client: client},
	}, nil
}

// Addr returns the host:port this client talks to.
func (c *MongoClient) Addr() string { return c.addr }

// Ping checks that the node accepts commands.
func (c *MongoClient) Ping(ctx context.Context) error {
	if err := c.runner.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}, nil); err != nil {
		return classify("ping", err)
	}
	return nil
}

// ExistingConfig returns the installed replica set configuration, or
// replset.ErrNotInitialized if the node has none yet.
func (c *MongoClient) ExistingConfig(ctx context.Context) (*replset.Config, error) {
	var reply struct {
		Config replset.Config `bson:"config"`
	}
	if err := c.runner.RunCommand(ctx, bson.D{{Key: "replSetGetConfig", Value: 1}}, &reply); err != nil {
		return nil, classify("replSetGetConfig", err)
	}
	return &reply.Config, nil
}

// Initiate submits cfg with replSetInitiate.
func (c *MongoClient) Initiate(ctx context.Context, cfg replset.Config) error {
	if err := c.runner.RunCommand(ctx, bson.D{{Key: "replSetInitiate", Value: cfg}}, nil); err != nil {
		return classify("replSetInitiate", err)
	}
	return nil
}

// Status returns the replSetGetStatus snapshot.
func (c *MongoClient) Status(ctx context.Context) (*replset.Status, error) {
	var status replset.Status
	if err := c.runner.RunCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}}, &status); err != nil {
		return nil, classify("replSetGetStatus", err)
	}
	return &status, nil
}

// Probe pings the node for health checks. The call is wrapped in the circuit
// breaker; after 3 consecutive failures the breaker opens and subsequent
// calls return immediately with "circuit open". Readiness polling uses Ping
// directly so that the breaker never short-circuits a bootstrap run.
func (c *MongoClient) Probe(ctx context.Context) bootstrap.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.Ping(ctx)
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return bootstrap.ProbeResult{
			Name:      mongoProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return bootstrap.ProbeResult{
		Name:      mongoProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

// Close disconnects from the node.
func (c *MongoClient) Close(ctx context.Context) error {
	return c.runner.Close(ctx)
}

// classify maps driver errors onto the replset error kinds. Server-side
// command errors are matched by code; anything else means the node could
// not be reached.
func classify(op string, err error) error {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case codeNotYetInitialized:
			return fmt.Errorf("%s: %w: %w", op, replset.ErrNotInitialized, err)
		case codeAlreadyInitialized:
			return fmt.Errorf("%s: %w: %w", op, replset.ErrAlreadyInitialized, err)
		case codeNoReplicationEnabled:
			return fmt.Errorf("%w: %s: node was not started with --replSet: %w", replset.ErrConfigurationRejected, op, err)
		case codeBadValue, codeNodeNotFound, codeInvalidReplicaSetConfig, codeNewConfigIncompatible:
			return fmt.Errorf("%w: %s: %w", replset.ErrConfigurationRejected, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", replset.ErrUnreachable, op, err)
}
