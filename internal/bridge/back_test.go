package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/cassiomorais/relay/internal/channel"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/cassiomorais/relay/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fallbackChannel = "results:default"

func newBackFixture(resultChannels map[string]string) (*BackBridge, *testutil.MockBinder) {
	binder := testutil.NewMockBinder()
	registry := channel.NewRegistry(binder, zerolog.Nop(), nil)
	return NewBackBridge(registry, resultChannels, fallbackChannel, zerolog.Nop(), nil), binder
}

func resultEnvelope(operation string) routing.Envelope {
	return routing.Envelope{
		routing.FieldOperation:   operation,
		routing.FieldStatus:      "success",
		routing.FieldData:        map[string]any{"title": "test"},
		routing.FieldAggregateID: "agg-1",
		routing.FieldID:          "msg-1",
	}
}

func TestBackBridge_RoutesByResultKind(t *testing.T) {
	bridge, binder := newBackFixture(map[string]string{"search": "results:search"})

	delivery, state := testutil.NewTestDelivery("m1", "search:results", resultEnvelope("search"))
	require.NoError(t, bridge.OnResult(context.Background(), delivery))

	published := binder.Publisher("results:search").Published()
	require.Len(t, published, 1)
	assert.Equal(t, "search", published[0].Operation())
	assert.Equal(t, "success", published[0][routing.FieldStatus])
	assert.Equal(t, "agg-1", published[0].AggregateID())
	assert.True(t, state.Acked())
}

func TestBackBridge_UnknownKindUsesPayloadChannel(t *testing.T) {
	bridge, binder := newBackFixture(map[string]string{"search": "results:search"})

	env := resultEnvelope("export")
	env[routing.FieldChannel] = "results:export"
	delivery, state := testutil.NewTestDelivery("m1", "search:results", env)
	require.NoError(t, bridge.OnResult(context.Background(), delivery))

	require.Len(t, binder.Publisher("results:export").Published(), 1)
	assert.True(t, state.Acked())
}

func TestBackBridge_FallsBackToDefaultChannel(t *testing.T) {
	bridge, binder := newBackFixture(nil)

	delivery, state := testutil.NewTestDelivery("m1", "search:results", resultEnvelope("export"))
	require.NoError(t, bridge.OnResult(context.Background(), delivery))

	require.Len(t, binder.Publisher(fallbackChannel).Published(), 1)
	assert.True(t, state.Acked())
}

func TestBackBridge_CarriesReplyAddressForward(t *testing.T) {
	bridge, binder := newBackFixture(nil)

	env := resultEnvelope("search")
	env[routing.FieldOriginalReplyAddress] = "relay:reply:req-1"
	delivery, _ := testutil.NewTestDelivery("m1", "search:results", env)
	require.NoError(t, bridge.OnResult(context.Background(), delivery))

	published := binder.Publisher(fallbackChannel).Published()
	require.Len(t, published, 1)
	assert.Equal(t, "relay:reply:req-1", published[0].ReplyAddress())
	assert.Equal(t, "msg-1", published[0].String(routing.FieldID))
}

func TestBackBridge_PublishFailureNacks(t *testing.T) {
	bridge, binder := newBackFixture(nil)

	// Prime the handle so we can inject the publish failure.
	warmup, _ := testutil.NewTestDelivery("m0", "search:results", resultEnvelope("search"))
	require.NoError(t, bridge.OnResult(context.Background(), warmup))

	cause := errors.New("stream gone")
	binder.Publisher(fallbackChannel).PublishErr = cause

	delivery, state := testutil.NewTestDelivery("m1", "search:results", resultEnvelope("search"))
	err := bridge.OnResult(context.Background(), delivery)

	require.ErrorIs(t, err, cause)
	assert.False(t, state.Acked())
	nacked, got := state.Nacked()
	assert.True(t, nacked)
	assert.ErrorIs(t, got, cause)
}

func TestBackBridge_BindFailureNacks(t *testing.T) {
	bridge, binder := newBackFixture(nil)
	cause := errors.New("broker down")
	binder.BindErr = cause

	delivery, state := testutil.NewTestDelivery("m1", "search:results", resultEnvelope("search"))
	err := bridge.OnResult(context.Background(), delivery)

	require.ErrorIs(t, err, cause)
	nacked, _ := state.Nacked()
	assert.True(t, nacked)
}
