package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunnerRunsTask(t *testing.T) {
	t.Parallel()

	r := NewRunner(zap.NewNop())
	var ran atomic.Bool
	r.Go("analysis/1", func() { ran.Store(true) })

	require.NoError(t, r.Drain(context.Background()))
	assert.True(t, ran.Load())
	assert.Empty(t, r.InFlight())
}

func TestRunnerSurvivesPanic(t *testing.T) {
	t.Parallel()

	r := NewRunner(zap.NewNop())
	r.Go("analysis/boom", func() { panic("detector exploded") })

	require.NoError(t, r.Drain(context.Background()))
	assert.Empty(t, r.InFlight())

	// Runner stays usable after a panic.
	var ran atomic.Bool
	r.Go("analysis/2", func() { ran.Store(true) })
	require.NoError(t, r.Drain(context.Background()))
	assert.True(t, ran.Load())
}

func TestRunnerInFlightSorted(t *testing.T) {
	t.Parallel()

	r := NewRunner(zap.NewNop())
	release := make(chan struct{})
	r.Go("b-task", func() { <-release })
	r.Go("a-task", func() { <-release })

	assert.Eventually(t, func() bool {
		names := r.InFlight()
		return len(names) == 2 && names[0] == "a-task" && names[1] == "b-task"
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, r.Drain(context.Background()))
}

func TestDrainHonorsDeadline(t *testing.T) {
	t.Parallel()

	r := NewRunner(zap.NewNop())
	release := make(chan struct{})
	defer close(release)
	r.Go("stuck", func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Drain(ctx), context.DeadlineExceeded)
}
