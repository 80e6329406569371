package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	started chan struct{}
}

func (r *countingRunner) run(ctx context.Context) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestStartStop(t *testing.T) {
	runner := &countingRunner{}
	s := New(5, runner.run)

	assert.False(t, s.IsRunning())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	// double start is an error
	assert.Error(t, s.Start())

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	// stopping again is a no-op
	require.NoError(t, s.Stop())
}

func TestRunOnceWithoutStart(t *testing.T) {
	runner := &countingRunner{}
	s := New(5, runner.run)

	require.NoError(t, s.RunOnce())
	assert.Equal(t, 1, runner.count())
}

func TestOverlappingCyclesAreSkipped(t *testing.T) {
	runner := &countingRunner{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	s := New(5, runner.run)

	go func() { _ = s.RunOnce() }()
	<-runner.started

	// second trigger while the first is still in flight must be dropped
	require.NoError(t, s.RunOnce())
	assert.Equal(t, 1, runner.count())

	close(runner.block)
	s.Wait()
}

func TestNextRunZeroWhenStopped(t *testing.T) {
	s := New(5, func(ctx context.Context) {})
	assert.True(t, s.GetNextRun().IsZero())
	assert.True(t, s.GetLastRun().IsZero())

	require.NoError(t, s.Start())
	assert.False(t, s.GetNextRun().IsZero())
	next := s.GetNextRun()
	assert.True(t, next.After(time.Now().Add(-time.Second)))
	require.NoError(t, s.Stop())
}
