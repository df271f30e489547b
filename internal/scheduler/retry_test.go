package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/relay/internal/channel"
	"github.com/cassiomorais/relay/internal/domain/outbox"
	"github.com/cassiomorais/relay/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const retryFallback = "results:default"

func newRetryFixture() (*RetryJob, *testutil.MockOutboxRepository, *testutil.MockBinder) {
	store := testutil.NewMockOutboxRepository()
	binder := testutil.NewMockBinder()
	registry := channel.NewRegistry(binder, zerolog.Nop(), nil)
	job := NewRetryJob(store, registry, retryFallback, zerolog.Nop(), nil)
	return job, store, binder
}

func TestRetryJob_EmptyStore(t *testing.T) {
	job, _, _ := newRetryFixture()

	outcome, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmpty, outcome)
}

func TestRetryJob_SuccessfulRetryLandsProcessed(t *testing.T) {
	job, store, binder := newRetryFixture()
	rec := testutil.NewRecordWithStatus(outbox.StatusFailed, time.Minute, map[string]any{
		"operation": "save",
		"channel":   "store:write",
	})
	store.AddRecord(rec)

	outcome, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)

	assert.Equal(t, outbox.StatusProcessed, store.GetRecord(rec.ID).Status)
	published := binder.Publisher("store:write").Published()
	require.Len(t, published, 1)
	assert.Equal(t, "save", published[0].Operation())
}

func TestRetryJob_UsesFallbackWhenPayloadNamesNoChannel(t *testing.T) {
	job, store, binder := newRetryFixture()
	rec := testutil.NewRecordWithStatus(outbox.StatusFailed, time.Minute, nil)
	store.AddRecord(rec)

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, binder.Publisher(retryFallback).Published(), 1)
}

func TestRetryJob_SendFailureLandsBackOnFailed(t *testing.T) {
	job, store, binder := newRetryFixture()
	binder.BindErr = errors.New("broker down")
	rec := testutil.NewRecordWithStatus(outbox.StatusFailed, time.Minute, nil)
	store.AddRecord(rec)

	outcome, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)

	// Back on FAILED, never stranded at RETRY.
	assert.Equal(t, outbox.StatusFailed, store.GetRecord(rec.ID).Status)
}

func TestRetryJob_NoRecordStrandedAtRetry(t *testing.T) {
	job, store, _ := newRetryFixture()

	for i := 0; i < 5; i++ {
		store.AddRecord(testutil.NewRecordWithStatus(outbox.StatusFailed, time.Minute, nil))
	}

	_, err := job.Run(context.Background())
	require.NoError(t, err)

	stranded, err := store.FindByStatus(context.Background(), outbox.StatusRetry)
	require.NoError(t, err)
	assert.Empty(t, stranded)
}

func TestRetryJob_FindErrorFailsRun(t *testing.T) {
	job, store, _ := newRetryFixture()
	cause := errors.New("connection refused")
	store.FindByStatusFunc = func(context.Context, outbox.Status) ([]*outbox.Record, error) {
		return nil, cause
	}

	_, err := job.Run(context.Background())
	require.ErrorIs(t, err, cause)
}
