package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingJob struct {
	runs atomic.Int64
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(context.Context) (string, error) {
	j.runs.Add(1)
	return OutcomeSuccess, nil
}

type fakeLock struct {
	acquired bool
	releases atomic.Int64
}

func (l *fakeLock) Acquire(context.Context) (bool, error) { return l.acquired, nil }
func (l *fakeLock) Release(context.Context) error {
	l.releases.Add(1)
	return nil
}

func TestRunner_RunsOnThePeriodUntilCancelled(t *testing.T) {
	job := &countingJob{}
	runner := NewRunner(job, 10*time.Millisecond, nil, zerolog.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, runner.Run(ctx))
	assert.Greater(t, job.runs.Load(), int64(1))
}

func TestRunner_SkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &countingJob{}
	lock := &fakeLock{acquired: false}
	runner := NewRunner(job, 10*time.Millisecond, func(string) Locker { return lock }, zerolog.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	assert.NoError(t, runner.Run(ctx))

	assert.Equal(t, int64(0), job.runs.Load())
	assert.Equal(t, int64(0), lock.releases.Load(), "a lock never acquired is never released")
}

func TestRunner_ReleasesLockAfterRun(t *testing.T) {
	job := &countingJob{}
	lock := &fakeLock{acquired: true}
	runner := NewRunner(job, 10*time.Millisecond, func(string) Locker { return lock }, zerolog.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	assert.NoError(t, runner.Run(ctx))

	assert.Greater(t, job.runs.Load(), int64(0))
	assert.Equal(t, job.runs.Load(), lock.releases.Load())
}
