package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"arc-framework/rsinit/internal/bootstrap"
	"arc-framework/rsinit/internal/config"
)

const (
	natsProbeName = "arc-flash"
	eventsMaxAge  = 168 * time.Hour
)

// jsContext is the subset of nats.JetStreamContext used to announce a ready
// replica set. Test doubles implement it without a live NATS server.
type jsContext interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSNotifier publishes bootstrap.ReadyEvent messages to a JetStream stream
// on arc-flash.
type NATSNotifier struct {
	url           string
	stream        string
	subjectPrefix string
	cb            *gobreaker.CircuitBreaker
	newJS         func(url string) (jsContext, func(), error)
}

// NewNATSNotifier constructs a NATSNotifier. No connection is made at
// construction time; each Notify and Probe opens its own.
func NewNATSNotifier(cfg config.NATSConfig, cb *gobreaker.CircuitBreaker) *NATSNotifier {
	return &NATSNotifier{
		url:           cfg.URL,
		stream:        cfg.Stream,
		subjectPrefix: cfg.SubjectPrefix,
		cb:            cb,
		newJS:         realNewJS,
	}
}

// Subject returns the subject a ready event for replicaSet is published on.
func (n *NATSNotifier) Subject(replicaSet string) string {
	return n.subjectPrefix + "." + replicaSet + ".ready"
}

// Notify ensures the events stream exists and publishes ev to it. The run ID
// is used as the message ID so JetStream drops duplicate announcements of
// the same run. The whole operation is wrapped in the circuit breaker.
func (n *NATSNotifier) Notify(ctx context.Context, ev bootstrap.ReadyEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding ready event: %w", err)
	}

	_, err = n.cb.Execute(func() (any, error) {
		js, cleanup, err := n.newJS(n.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		if err := n.provisionStream(js); err != nil {
			return nil, err
		}

		subject := n.Subject(ev.ReplicaSet)
		opts := []nats.PubOpt{nats.Context(ctx)}
		if ev.RunID != "" {
			opts = append(opts, nats.MsgId(ev.RunID))
		}
		if _, err := js.Publish(subject, data, opts...); err != nil {
			return nil, fmt.Errorf("publishing %s: %w", subject, err)
		}
		return nil, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("circuit open: %w", err)
		}
		return err
	}
	return nil
}

// Probe verifies NATS connectivity. A missing events stream is not a failure;
// it is created on the first Notify.
func (n *NATSNotifier) Probe(ctx context.Context) bootstrap.ProbeResult {
	start := time.Now()

	_, err := n.cb.Execute(func() (any, error) {
		js, cleanup, err := n.newJS(n.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		_, infoErr := js.StreamInfo(n.stream, nats.Context(ctx))
		if infoErr != nil && !errors.Is(infoErr, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("stream info: %w", infoErr)
		}
		return nil, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return bootstrap.ProbeResult{
			Name:      natsProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return bootstrap.ProbeResult{
		Name:      natsProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

// provisionStream creates the events stream if it does not exist, or updates
// it if it does. nats.ErrStreamNotFound signals "create".
func (n *NATSNotifier) provisionStream(js jsContext) error {
	cfg := &nats.StreamConfig{
		Name:      n.stream,
		Subjects:  []string{n.subjectPrefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    eventsMaxAge,
	}

	_, err := js.StreamInfo(n.stream)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		if _, addErr := js.AddStream(cfg); addErr != nil {
			return fmt.Errorf("creating stream %s: %w", n.stream, addErr)
		}
	case err != nil:
		return fmt.Errorf("querying stream %s: %w", n.stream, err)
	default:
		if _, updErr := js.UpdateStream(cfg); updErr != nil {
			return fmt.Errorf("updating stream %s: %w", n.stream, updErr)
		}
	}
	return nil
}

// realNewJS opens a real NATS connection and returns a JetStreamContext plus a
// cleanup function that closes the connection.
func realNewJS(url string) (jsContext, func(), error) {
	nc, err := nats.Connect(url, nats.Name("arc-rsinit"), nats.Timeout(2*time.Second))
	if err != nil {
		return nil, func() {}, fmt.Errorf("nats connect %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, func() {}, fmt.Errorf("nats jetstream context: %w", err)
	}

	return js, func() { nc.Close() }, nil
}
