package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewListener(t *testing.T) {
	var received KillNotice
	l := NewListener("host=localhost dbname=test", "replica-1", func(n KillNotice) { received = n })

	assert.NotNil(t, l)
	assert.Equal(t, "host=localhost dbname=test", l.connString)
	assert.Equal(t, "replica-1", l.replicaID)
	assert.NotNil(t, l.handler)
	_ = received
}

func TestListener_SubscribeWithoutConnectionReturnsError(t *testing.T) {
	l := NewListener("host=localhost dbname=test", "replica-1", func(KillNotice) {})
	err := l.subscribe(t.Context())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not established")
}

func TestListener_PublishWithoutConnectionReturnsError(t *testing.T) {
	l := NewListener("host=localhost dbname=test", "replica-1", func(KillNotice) {})
	err := l.Publish(t.Context(), "session-1", "cost_overflow")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestListener_StopWithoutStartDoesNotPanic(t *testing.T) {
	l := NewListener("host=localhost dbname=test", "replica-1", func(KillNotice) {})
	assert.NotPanics(t, func() { l.Stop(t.Context()) })
}

func TestKillNotice_JSONRoundTrip(t *testing.T) {
	n := KillNotice{SessionID: "s1", Classification: "cost_overflow", ReplicaID: "replica-1"}
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"s1","classification":"cost_overflow","replica_id":"replica-1"}`, string(raw))

	var got KillNotice
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "cost_overflow", got.Classification)
	assert.Equal(t, "replica-1", got.ReplicaID)
}
