package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/relay/internal/domain/errors"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/cassiomorais/relay/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontBridge_DeliversToReplyAddress(t *testing.T) {
	responder := testutil.NewMockResponder()
	bridge := NewFrontBridge(responder, zerolog.Nop(), nil)

	env := resultEnvelope("search")
	env[routing.FieldOriginalReplyAddress] = "relay:reply:req-1"
	delivery, state := testutil.NewTestDelivery("m1", "results:search", env)

	require.NoError(t, bridge.OnResult(context.Background(), delivery))

	replies := responder.Responses("relay:reply:req-1")
	require.Len(t, replies, 1)
	assert.Equal(t, "agg-1", replies[0].AggregateID())
	assert.Equal(t, "search", replies[0].Operation())
	assert.Equal(t, "msg-1", replies[0][routing.FieldOriginalMessageID])

	_, err := time.Parse(time.RFC3339Nano, replies[0].String(routing.FieldProcessedAt))
	assert.NoError(t, err)
	assert.True(t, state.Acked())
}

func TestFrontBridge_PrefersOriginalOverProxyAddress(t *testing.T) {
	responder := testutil.NewMockResponder()
	bridge := NewFrontBridge(responder, zerolog.Nop(), nil)

	env := resultEnvelope("search")
	env[routing.FieldOriginalReplyAddress] = "relay:reply:original"
	env[routing.FieldProxyReplyAddress] = "relay:reply:proxy"
	delivery, _ := testutil.NewTestDelivery("m1", "results:search", env)

	require.NoError(t, bridge.OnResult(context.Background(), delivery))
	assert.Len(t, responder.Responses("relay:reply:original"), 1)
	assert.Empty(t, responder.Responses("relay:reply:proxy"))
}

func TestFrontBridge_MissingReplyAddressNacksWithoutResponding(t *testing.T) {
	responder := testutil.NewMockResponder()
	bridge := NewFrontBridge(responder, zerolog.Nop(), nil)

	delivery, state := testutil.NewTestDelivery("m1", "results:search", resultEnvelope("search"))
	err := bridge.OnResult(context.Background(), delivery)

	require.ErrorIs(t, err, domainErrors.ErrMissingReplyAddress)
	assert.False(t, state.Acked())
	nacked, cause := state.Nacked()
	assert.True(t, nacked)
	assert.ErrorIs(t, cause, domainErrors.ErrMissingReplyAddress)
	assert.Empty(t, responder.Responses("relay:reply:req-1"))
}

func TestFrontBridge_RespondFailureNacks(t *testing.T) {
	responder := testutil.NewMockResponder()
	cause := errors.New("reply list unreachable")
	responder.RespondErr = cause
	bridge := NewFrontBridge(responder, zerolog.Nop(), nil)

	env := resultEnvelope("search")
	env[routing.FieldOriginalReplyAddress] = "relay:reply:req-1"
	delivery, state := testutil.NewTestDelivery("m1", "results:search", env)

	err := bridge.OnResult(context.Background(), delivery)
	require.ErrorIs(t, err, cause)
	nacked, got := state.Nacked()
	assert.True(t, nacked)
	assert.ErrorIs(t, got, cause)
}
