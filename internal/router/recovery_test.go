package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/relay/internal/broker"
	"github.com/cassiomorais/relay/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClaimer struct {
	batch []broker.Delivery
	err   error
}

func (s *stubClaimer) ClaimStale(context.Context) ([]broker.Delivery, error) {
	batch := s.batch
	s.batch = nil
	return batch, s.err
}

func TestRecovery_ReprocessesAndAcksClaimedBatch(t *testing.T) {
	env := testutil.NewTestEnvelope("search", "search", "good-token")
	d1, s1 := testutil.NewTestDelivery("m1", inputChannel, env)
	d2, s2 := testutil.NewTestDelivery("m2", inputChannel, env)

	processor := &stubProcessor{fn: func(context.Context) (*Outcome, error) {
		return &Outcome{Processed: 2}, nil
	}}
	rec := NewRecovery(&stubClaimer{batch: []broker.Delivery{d1, d2}}, processor, inputChannel, time.Hour, zerolog.Nop())

	rec.runOnce(context.Background())

	assert.Equal(t, int64(1), processor.calls.Load())
	assert.True(t, s1.Acked())
	assert.True(t, s2.Acked())
}

func TestRecovery_FailedBatchStaysPending(t *testing.T) {
	env := testutil.NewTestEnvelope("search", "search", "good-token")
	d, state := testutil.NewTestDelivery("m1", inputChannel, env)

	cause := errors.New("store down")
	processor := &stubProcessor{fn: func(context.Context) (*Outcome, error) { return nil, cause }}
	rec := NewRecovery(&stubClaimer{batch: []broker.Delivery{d}}, processor, inputChannel, time.Hour, zerolog.Nop())

	rec.runOnce(context.Background())

	assert.False(t, state.Acked())
	nacked, got := state.Nacked()
	assert.True(t, nacked)
	assert.ErrorIs(t, got, cause)
}

func TestRecovery_NothingToClaimIsANoop(t *testing.T) {
	processor := &stubProcessor{fn: func(context.Context) (*Outcome, error) {
		return &Outcome{}, nil
	}}
	rec := NewRecovery(&stubClaimer{}, processor, inputChannel, time.Hour, zerolog.Nop())

	rec.runOnce(context.Background())
	assert.Equal(t, int64(0), processor.calls.Load())
}

func TestRecovery_ClaimErrorDoesNotReachProcessor(t *testing.T) {
	processor := &stubProcessor{fn: func(context.Context) (*Outcome, error) {
		return &Outcome{}, nil
	}}
	rec := NewRecovery(&stubClaimer{err: errors.New("redis gone")}, processor, inputChannel, time.Hour, zerolog.Nop())

	rec.runOnce(context.Background())
	require.Equal(t, int64(0), processor.calls.Load())
}
