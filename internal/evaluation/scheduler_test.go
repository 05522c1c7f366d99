package evaluation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingJob struct {
	mu    sync.Mutex
	ctxs  []context.Context
	calls atomic.Int32
}

func (r *recordingJob) run(ctx context.Context) {
	r.mu.Lock()
	r.ctxs = append(r.ctxs, ctx)
	r.mu.Unlock()
	r.calls.Add(1)
}

func (r *recordingJob) contexts() []context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]context.Context(nil), r.ctxs...)
}

func TestSchedulerRunsAndStops(t *testing.T) {
	job := &recordingJob{}
	s := newScheduler(job.run)

	require.NoError(t, s.Start(5*time.Millisecond))
	assert.True(t, s.Running())
	assert.Eventually(t, func() bool { return job.calls.Load() >= 2 }, time.Second, time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())

	after := job.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, job.calls.Load())

	for _, ctx := range job.contexts() {
		assert.Error(t, ctx.Err())
	}
}

func TestSchedulerStartReplacesLoop(t *testing.T) {
	job := &recordingJob{}
	s := newScheduler(job.run)

	require.NoError(t, s.Start(5*time.Millisecond))
	assert.Eventually(t, func() bool { return job.calls.Load() >= 1 }, time.Second, time.Millisecond)
	first := job.contexts()

	require.NoError(t, s.Start(time.Hour))
	assert.Equal(t, time.Hour, s.Interval())

	// The first loop was cancelled before the replacement started.
	for _, ctx := range first {
		assert.Error(t, ctx.Err())
	}

	before := job.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, job.calls.Load())

	s.Stop()
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := newScheduler(func(context.Context) {})

	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})

	require.NoError(t, s.Start(time.Hour))
	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
}

func TestSchedulerRejectsNonPositiveInterval(t *testing.T) {
	s := newScheduler(func(context.Context) {})
	assert.ErrorIs(t, s.Start(0), ErrInvalidInterval)
	assert.False(t, s.Running())
}

func TestSchedulerCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	s := newScheduler(func(ctx context.Context) {
		once.Do(func() { close(started) })
		<-ctx.Done()
	})

	require.NoError(t, s.Start(time.Millisecond))
	<-started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return while a job was running")
	}
}
