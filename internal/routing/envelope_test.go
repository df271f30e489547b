package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	env := Envelope{"auth_token": "abc"}

	token, ok := env.Token("auth_token")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = env.Token("missing_field")
	assert.False(t, ok)

	_, ok = Envelope{"auth_token": ""}.Token("auth_token")
	assert.False(t, ok, "empty token counts as missing")

	_, ok = Envelope{"auth_token": 42}.Token("auth_token")
	assert.False(t, ok, "non-string token counts as missing")
}

func TestEventType_Default(t *testing.T) {
	assert.Equal(t, "unknown", Envelope{}.EventType())
	assert.Equal(t, "save", Envelope{FieldEventType: "save"}.EventType())
}

func TestChannel_Fallback(t *testing.T) {
	assert.Equal(t, "results:default", Envelope{}.Channel("results:default"))
	assert.Equal(t, "songs:out", Envelope{FieldChannel: "songs:out"}.Channel("results:default"))
}

func TestReplyAddress_PrefersOriginal(t *testing.T) {
	env := Envelope{
		FieldOriginalReplyAddress: "addr-original",
		FieldProxyReplyAddress:    "addr-proxy",
	}
	assert.Equal(t, "addr-original", env.ReplyAddress())

	assert.Equal(t, "addr-proxy", Envelope{FieldProxyReplyAddress: "addr-proxy"}.ReplyAddress())
	assert.Empty(t, Envelope{}.ReplyAddress())
}

func TestHops_NumericTypes(t *testing.T) {
	assert.Equal(t, 0, Envelope{}.Hops())
	assert.Equal(t, 2, Envelope{FieldHops: 2}.Hops())
	assert.Equal(t, 2, Envelope{FieldHops: float64(2)}.Hops(), "JSON numbers decode to float64")
}

func TestEnrich(t *testing.T) {
	original := Envelope{FieldOperation: "save", FieldHops: 1}
	now := time.Now()

	enriched := original.Enrich("req-1", now)

	assert.Equal(t, "req-1", enriched.String(FieldRequestID))
	assert.Equal(t, 2, enriched.Hops())
	assert.Equal(t, "save", enriched.Operation())

	stamp, err := time.Parse(time.RFC3339Nano, enriched.String(FieldProxyTimestamp))
	require.NoError(t, err)
	assert.WithinDuration(t, now.UTC(), stamp, time.Second)

	// Enrichment must not mutate the caller's envelope.
	assert.Equal(t, 1, original.Hops())
	assert.Empty(t, original.String(FieldRequestID))
}

func TestRoleForOperation(t *testing.T) {
	for _, op := range []string{"delete", "create", "index", "bulk-index"} {
		assert.Equal(t, RoleInternal, RoleForOperation(op, "user"), op)
	}
	assert.Equal(t, "user", RoleForOperation("search", "user"))
	assert.Equal(t, "user", RoleForOperation("", "user"))
}
