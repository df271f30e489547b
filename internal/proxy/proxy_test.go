package proxy

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/relay/internal/domain/errors"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/cassiomorais/relay/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const backendAddress = "relay:index:inbound"

func newService(requester *testutil.MockRequester) *Service {
	return NewService(requester, backendAddress, time.Second, zerolog.Nop(), nil)
}

func TestHandle_EnrichesBeforeForwarding(t *testing.T) {
	requester := &testutil.MockRequester{Reply: routing.Envelope{"status": "success"}}
	svc := newService(requester)

	req := testutil.NewTestEnvelope("search", "search", "token")
	reply, err := svc.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "success", reply.String("status"))

	sent := requester.Requests()
	require.Len(t, sent, 1)

	// The forwarded copy is stamped; the caller's envelope is untouched.
	_, err = uuid.Parse(sent[0].String(routing.FieldRequestID))
	assert.NoError(t, err)
	_, err = time.Parse(time.RFC3339Nano, sent[0].String(routing.FieldProxyTimestamp))
	assert.NoError(t, err)
	assert.Equal(t, 1, sent[0].Hops())
	assert.NotContains(t, req, routing.FieldRequestID)
}

func TestHandle_IncrementsExistingHopCount(t *testing.T) {
	requester := &testutil.MockRequester{Reply: routing.Envelope{}}
	svc := newService(requester)

	req := testutil.NewTestEnvelope("search", "search", "token")
	req[routing.FieldHops] = 2
	_, err := svc.Handle(context.Background(), req)
	require.NoError(t, err)

	sent := requester.Requests()
	require.Len(t, sent, 1)
	assert.Equal(t, 3, sent[0].Hops())
}

func TestHandle_TimeoutSurfacesToCaller(t *testing.T) {
	requester := &testutil.MockRequester{RequestErr: domainErrors.ErrReplyTimeout}
	svc := newService(requester)

	_, err := svc.Handle(context.Background(), testutil.NewTestEnvelope("search", "search", "token"))
	require.ErrorIs(t, err, domainErrors.ErrReplyTimeout)
}

func TestHandle_WrapsBackendErrorsWithCode(t *testing.T) {
	requester := &testutil.MockRequester{RequestErr: assert.AnError}
	svc := newService(requester)

	_, err := svc.Handle(context.Background(), testutil.NewTestEnvelope("search", "search", "token"))
	require.Error(t, err)

	var domainErr *domainErrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "backend_error", domainErr.Code)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "timeout", failureKind(domainErrors.ErrReplyTimeout))
	assert.Equal(t, "timeout", failureKind(context.DeadlineExceeded))
	assert.Equal(t, "backend_unavailable", failureKind(domainErrors.ErrBackendUnavailable))
	assert.Equal(t, "backend_error", failureKind(assert.AnError))
}
