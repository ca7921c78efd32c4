package clients

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/rsinit/internal/bootstrap"
	"arc-framework/rsinit/internal/config"
)

// fakeJS is a test double for jsContext. It records calls and returns
// preconfigured responses.
type fakeJS struct {
	// streamInfoErr is keyed by stream name; a missing or nil value means
	// "stream exists".
	streamInfoErr map[string]error

	addStreamErr    error
	updateStreamErr error
	publishErr      error

	addStreams    []*nats.StreamConfig
	updateStreams []*nats.StreamConfig
	published     map[string][]byte
}

func (f *fakeJS) StreamInfo(stream string, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if err := f.streamInfoErr[stream]; err != nil {
		return nil, err
	}
	return &nats.StreamInfo{}, nil
}

func (f *fakeJS) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.addStreams = append(f.addStreams, cfg)
	return &nats.StreamInfo{}, f.addStreamErr
}

func (f *fakeJS) UpdateStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.updateStreams = append(f.updateStreams, cfg)
	return &nats.StreamInfo{}, f.updateStreamErr
}

func (f *fakeJS) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	if f.published == nil {
		f.published = map[string][]byte{}
	}
	f.published[subj] = data
	return &nats.PubAck{Stream: "REPLSET_EVENTS", Sequence: uint64(len(f.published))}, nil
}

var testNATSConfig = config.NATSConfig{
	URL:           "nats://localhost:4222",
	Stream:        "REPLSET_EVENTS",
	SubjectPrefix: "replset",
}

// makeNATSNotifier builds a NATSNotifier backed by the provided fakeJS.
func makeNATSNotifier(js jsContext, cb *gobreaker.CircuitBreaker) *NATSNotifier {
	n := NewNATSNotifier(testNATSConfig, cb)
	n.newJS = func(_ string) (jsContext, func(), error) {
		return js, func() {}, nil
	}
	return n
}

// makeNATSNotifierWithConnErr builds a NATSNotifier whose connection always
// fails.
func makeNATSNotifierWithConnErr(connErr error, cb *gobreaker.CircuitBreaker) *NATSNotifier {
	n := NewNATSNotifier(testNATSConfig, cb)
	n.newJS = func(_ string) (jsContext, func(), error) {
		return nil, func() {}, connErr
	}
	return n
}

func readyEvent() bootstrap.ReadyEvent {
	return bootstrap.ReadyEvent{
		RunID:      "run-1",
		ReplicaSet: "rs0",
		Members:    []string{"localhost:27017"},
		Primary:    "localhost:27017",
		Term:       1,
		Initiated:  true,
		Timestamp:  time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewNATSNotifier(t *testing.T) {
	t.Parallel()

	n := NewNATSNotifier(config.NATSConfig{
		URL:           "nats://arc-flash:4222",
		Stream:        "REPLSET_EVENTS",
		SubjectPrefix: "replset",
	}, NewCircuitBreaker("new-nats-test"))

	assert.Equal(t, "nats://arc-flash:4222", n.url)
	assert.NotNil(t, n.newJS)
	assert.Equal(t, "replset.rs0.ready", n.Subject("rs0"))
}

func TestNotify_CreatesStreamAndPublishes(t *testing.T) {
	t.Parallel()

	js := &fakeJS{streamInfoErr: map[string]error{"REPLSET_EVENTS": nats.ErrStreamNotFound}}
	n := makeNATSNotifier(js, NewCircuitBreaker("notify-new-stream"))

	require.NoError(t, n.Notify(context.Background(), readyEvent()))

	require.Len(t, js.addStreams, 1)
	assert.Empty(t, js.updateStreams)
	assert.Equal(t, "REPLSET_EVENTS", js.addStreams[0].Name)
	assert.Equal(t, []string{"replset.>"}, js.addStreams[0].Subjects)
	assert.Equal(t, nats.LimitsPolicy, js.addStreams[0].Retention)

	data, ok := js.published["replset.rs0.ready"]
	require.True(t, ok, "event must be published on the ready subject")

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got["runId"])
	assert.Equal(t, "rs0", got["replicaSet"])
	assert.Equal(t, "localhost:27017", got["primary"])
	assert.Equal(t, true, got["initiated"])
}

func TestNotify_ExistingStreamIsUpdated(t *testing.T) {
	t.Parallel()

	js := &fakeJS{}
	n := makeNATSNotifier(js, NewCircuitBreaker("notify-existing-stream"))

	require.NoError(t, n.Notify(context.Background(), readyEvent()))

	assert.Empty(t, js.addStreams)
	require.Len(t, js.updateStreams, 1)
	assert.Contains(t, js.published, "replset.rs0.ready")
}

func TestNotify_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		js      *fakeJS
		wantErr string
	}{
		{
			name: "add stream fails",
			js: &fakeJS{
				streamInfoErr: map[string]error{"REPLSET_EVENTS": nats.ErrStreamNotFound},
				addStreamErr:  errors.New("server unavailable"),
			},
			wantErr: "creating stream REPLSET_EVENTS: server unavailable",
		},
		{
			name:    "stream info fails",
			js:      &fakeJS{streamInfoErr: map[string]error{"REPLSET_EVENTS": errors.New("jetstream not enabled")}},
			wantErr: "querying stream REPLSET_EVENTS",
		},
		{
			name:    "update stream fails",
			js:      &fakeJS{updateStreamErr: errors.New("subjects overlap")},
			wantErr: "updating stream REPLSET_EVENTS: subjects overlap",
		},
		{
			name:    "publish fails",
			js:      &fakeJS{publishErr: nats.ErrNoResponders},
			wantErr: "publishing replset.rs0.ready",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := makeNATSNotifier(tc.js, NewCircuitBreaker("notify-err-"+tc.name))
			err := n.Notify(context.Background(), readyEvent())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			assert.Empty(t, tc.js.published)
		})
	}
}

func TestNotify_CircuitBreakerOpensAfterThreeFailures(t *testing.T) {
	t.Parallel()

	connErr := errors.New("dial tcp: connection refused")
	n := makeNATSNotifierWithConnErr(connErr, NewCircuitBreaker("notify-cb-open"))

	for i := range 3 {
		err := n.Notify(context.Background(), readyEvent())
		require.Error(t, err, "attempt %d should fail", i+1)
		assert.NotContains(t, err.Error(), "circuit open",
			"circuit should not be open yet on attempt %d", i+1)
	}

	// The 4th call must be rejected by the open circuit breaker.
	err := n.Notify(context.Background(), readyEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
}

func TestNATSProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		js      *fakeJS
		connErr error
		wantOK  bool
		wantErr string
	}{
		{name: "stream exists", js: &fakeJS{}, wantOK: true},
		{
			name:   "stream not provisioned yet",
			js:     &fakeJS{streamInfoErr: map[string]error{"REPLSET_EVENTS": nats.ErrStreamNotFound}},
			wantOK: true,
		},
		{
			name:    "stream info fails",
			js:      &fakeJS{streamInfoErr: map[string]error{"REPLSET_EVENTS": errors.New("jetstream not enabled")}},
			wantErr: "jetstream not enabled",
		},
		{name: "connection refused", connErr: errors.New("connection refused"), wantErr: "connection refused"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cb := NewCircuitBreaker("nats-probe-" + tc.name)
			var n *NATSNotifier
			if tc.connErr != nil {
				n = makeNATSNotifierWithConnErr(tc.connErr, cb)
			} else {
				n = makeNATSNotifier(tc.js, cb)
			}

			result := n.Probe(context.Background())

			assert.Equal(t, natsProbeName, result.Name)
			assert.Equal(t, tc.wantOK, result.OK)
			if tc.wantErr != "" {
				assert.Contains(t, result.Error, tc.wantErr)
			} else {
				assert.Empty(t, result.Error)
			}
		})
	}
}

func TestNATSProbe_CircuitOpenAfterThreeFailures(t *testing.T) {
	t.Parallel()

	n := makeNATSNotifierWithConnErr(errors.New("connection refused"), NewCircuitBreaker("nats-probe-cb-open"))

	for i := range 3 {
		result := n.Probe(context.Background())
		assert.False(t, result.OK, "probe %d should fail", i+1)
		assert.NotEqual(t, "circuit open", result.Error,
			"probe %d should not be circuit-open yet", i+1)
	}

	result := n.Probe(context.Background())
	assert.False(t, result.OK)
	assert.Equal(t, "circuit open", result.Error)
}
