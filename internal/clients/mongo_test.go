package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"arc-framework/rsinit/internal/config"
	"arc-framework/rsinit/internal/replset"
)

// fakeRunner is a test double for commandRunner. Replies are keyed by the
// command name and round-tripped through BSON so decoding is exercised the
// same way the driver does it.
type fakeRunner struct {
	replies map[string]bson.M
	errs    map[string]error
	sent    []bson.D
	closed  bool
}

func (f *fakeRunner) RunCommand(_ context.Context, cmd bson.D, result any) error {
	f.sent = append(f.sent, cmd)
	name := cmd[0].Key
	if err, ok := f.errs[name]; ok {
		return err
	}
	if result == nil {
		return nil
	}
	data, err := bson.Marshal(f.replies[name])
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, result)
}

func (f *fakeRunner) Close(_ context.Context) error {
	f.closed = true
	return nil
}

func makeMongoClient(runner commandRunner, name string) *MongoClient {
	return &MongoClient{
		addr:   "localhost:27017",
		cb:     NewCircuitBreaker(name),
		runner: runner,
	}
}

func cmdErr(code int32, name string) mongo.CommandError {
	return mongo.CommandError{Code: code, Name: name, Message: name}
}

func TestNewMongoClient(t *testing.T) {
	t.Parallel()

	client, err := NewMongoClient(config.TargetConfig{
		Host:                   "localhost",
		Port:                   27017,
		Username:               "root",
		Password:               "secret",
		AuthSource:             "admin",
		ConnectTimeout:         time.Second,
		ServerSelectionTimeout: time.Second,
	}, NewCircuitBreaker("new-mongo-test"))

	require.NoError(t, err)
	assert.Equal(t, "localhost:27017", client.Addr())
	assert.NoError(t, client.Close(context.Background()))
}

func TestMongoExistingConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		reply    bson.M
		err      error
		want     *replset.Config
		wantIs   error
		wantKind error
	}{
		{
			name: "installed config",
			reply: bson.M{
				"ok": 1.0,
				"config": bson.M{
					"_id":     "rs0",
					"version": int32(1),
					"term":    int64(1),
					"members": bson.A{
						bson.M{"_id": int32(0), "host": "localhost:27017", "priority": 1.0, "votes": int32(1)},
					},
					"protocolVersion": int64(1),
				},
			},
			want: &replset.Config{ID: "rs0", Version: 1, Members: []replset.Member{{ID: 0, Host: "localhost:27017"}}},
		},
		{
			name:   "not yet initialized",
			err:    cmdErr(94, "NotYetInitialized"),
			wantIs: replset.ErrNotInitialized,
		},
		{
			name:     "started without replSet",
			err:      cmdErr(76, "NoReplicationEnabled"),
			wantKind: replset.ErrConfigurationRejected,
		},
		{
			name:     "server selection failure",
			err:      errors.New("server selection error: context deadline exceeded"),
			wantKind: replset.ErrUnreachable,
		},
		{
			name:     "unauthorized",
			err:      cmdErr(13, "Unauthorized"),
			wantKind: replset.ErrUnreachable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runner := &fakeRunner{
				replies: map[string]bson.M{"replSetGetConfig": tc.reply},
				errs:    map[string]error{},
			}
			if tc.err != nil {
				runner.errs["replSetGetConfig"] = tc.err
			}
			client := makeMongoClient(runner, "existing-config-"+tc.name)

			got, err := client.ExistingConfig(context.Background())

			switch {
			case tc.want != nil:
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			case tc.wantIs != nil:
				assert.ErrorIs(t, err, tc.wantIs)
				assert.Nil(t, replset.Kind(err))
			default:
				assert.Equal(t, tc.wantKind, replset.Kind(err))
			}
		})
	}
}

func TestMongoInitiate(t *testing.T) {
	t.Parallel()

	t.Run("sends the configuration document", func(t *testing.T) {
		t.Parallel()

		runner := &fakeRunner{}
		client := makeMongoClient(runner, "initiate-ok")

		cfg := replset.SingleMember("rs0", "localhost:27017")
		require.NoError(t, client.Initiate(context.Background(), cfg))

		require.Len(t, runner.sent, 1)
		cmd := runner.sent[0]
		assert.Equal(t, "replSetInitiate", cmd[0].Key)

		// Round-trip the command to check the wire shape mongod expects.
		data, err := bson.Marshal(cmd)
		require.NoError(t, err)
		var doc bson.M
		require.NoError(t, bson.Unmarshal(data, &doc))

		body := doc["replSetInitiate"].(bson.M)
		assert.Equal(t, "rs0", body["_id"])
		_, hasVersion := body["version"]
		assert.False(t, hasVersion, "zero version must be omitted")
		members := body["members"].(bson.A)
		require.Len(t, members, 1)
		member := members[0].(bson.M)
		assert.EqualValues(t, 0, member["_id"])
		assert.Equal(t, "localhost:27017", member["host"])
	})

	tests := []struct {
		name     string
		err      error
		wantIs   error
		wantKind error
	}{
		{name: "already initialized", err: cmdErr(23, "AlreadyInitialized"), wantIs: replset.ErrAlreadyInitialized},
		{name: "invalid config", err: cmdErr(93, "InvalidReplicaSetConfig"), wantKind: replset.ErrConfigurationRejected},
		{name: "host not self", err: cmdErr(74, "NodeNotFound"), wantKind: replset.ErrConfigurationRejected},
		{name: "bad value", err: cmdErr(2, "BadValue"), wantKind: replset.ErrConfigurationRejected},
		{name: "connection reset", err: errors.New("connection(localhost:27017) incomplete read"), wantKind: replset.ErrUnreachable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runner := &fakeRunner{errs: map[string]error{"replSetInitiate": tc.err}}
			client := makeMongoClient(runner, "initiate-"+tc.name)

			err := client.Initiate(context.Background(), replset.SingleMember("rs0", "localhost:27017"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err.Error(), "driver error must stay in the message")
			if tc.wantIs != nil {
				assert.ErrorIs(t, err, tc.wantIs)
			}
			if tc.wantKind != nil {
				assert.Equal(t, tc.wantKind, replset.Kind(err))
			}
		})
	}
}

func TestMongoStatus(t *testing.T) {
	t.Parallel()

	date := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	runner := &fakeRunner{replies: map[string]bson.M{
		"replSetGetStatus": {
			"set":     "rs0",
			"date":    date,
			"myState": int32(1),
			"term":    int64(1),
			"members": bson.A{
				bson.M{
					"_id":           int32(0),
					"name":          "localhost:27017",
					"health":        1.0,
					"state":         int32(1),
					"stateStr":      "PRIMARY",
					"uptime":        int32(12),
					"configVersion": int32(1),
					"configTerm":    int64(1),
					"self":          true,
				},
			},
			"ok": 1.0,
		},
	}}
	client := makeMongoClient(runner, "status-ok")

	status, err := client.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "rs0", status.Set)
	assert.True(t, date.Equal(status.Date))
	assert.Equal(t, replset.StatePrimary, status.MyState)
	require.Len(t, status.Members, 1)
	m := status.Members[0]
	assert.Equal(t, "localhost:27017", m.Name)
	assert.Equal(t, "primary", m.Role())
	assert.Equal(t, int64(12), m.Uptime)
	assert.True(t, m.Self)
	assert.True(t, status.Converged("rs0"))
}

func TestMongoStatus_NotInitialized(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{errs: map[string]error{"replSetGetStatus": cmdErr(94, "NotYetInitialized")}}
	client := makeMongoClient(runner, "status-uninit")

	_, err := client.Status(context.Background())
	assert.ErrorIs(t, err, replset.ErrNotInitialized)
}

func TestMongoPing(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	client := makeMongoClient(runner, "ping-ok")
	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "ping", runner.sent[0][0].Key)

	failing := makeMongoClient(&fakeRunner{errs: map[string]error{"ping": errors.New("connection refused")}}, "ping-fail")
	err := failing.Ping(context.Background())
	assert.ErrorIs(t, err, replset.ErrUnreachable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMongoProbe(t *testing.T) {
	t.Parallel()

	ok := makeMongoClient(&fakeRunner{}, "probe-ok").Probe(context.Background())
	assert.Equal(t, mongoProbeName, ok.Name)
	assert.True(t, ok.OK)
	assert.Empty(t, ok.Error)

	bad := makeMongoClient(&fakeRunner{errs: map[string]error{"ping": errors.New("connection refused")}}, "probe-bad").
		Probe(context.Background())
	assert.False(t, bad.OK)
	assert.Contains(t, bad.Error, "connection refused")
}

func TestMongoProbeCircuitBreaker_OpensAfterThreeFailures(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{errs: map[string]error{"ping": errors.New("connection refused")}}
	client := makeMongoClient(runner, "mongo-cb-open-test")

	// Three consecutive failures should trip the breaker.
	for i := range 3 {
		result := client.Probe(context.Background())
		assert.False(t, result.OK, "probe %d should fail", i+1)
		assert.NotEqual(t, "circuit open", result.Error,
			"probe %d should not be circuit-open yet", i+1)
	}

	// The 4th call must be rejected immediately by the open breaker.
	result := client.Probe(context.Background())
	assert.False(t, result.OK)
	assert.Equal(t, "circuit open", result.Error)
	assert.Len(t, runner.sent, 3)
}

func TestMongoBreakerDoesNotAffectPing(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{errs: map[string]error{"ping": errors.New("connection refused")}}
	client := makeMongoClient(runner, "mongo-cb-ping-test")

	for range 4 {
		client.Probe(context.Background())
	}

	// Recovery is visible to Ping even while the breaker is open.
	delete(runner.errs, "ping")
	assert.NoError(t, client.Ping(context.Background()))
}

func TestMongoClose(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	client := makeMongoClient(runner, "close-test")
	require.NoError(t, client.Close(context.Background()))
	assert.True(t, runner.closed)
}
