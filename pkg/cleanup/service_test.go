package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPruner struct {
	calls  atomic.Int64
	cutoff atomic.Value
}

func (c *countingPruner) PruneIdle(_ context.Context, cutoff time.Time) (int, error) {
	c.calls.Add(1)
	c.cutoff.Store(cutoff)
	return 1, nil
}

func TestServiceSweepsOnStart(t *testing.T) {
	pruner := &countingPruner{}
	svc := NewService(pruner, 24*time.Hour, time.Hour)

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return pruner.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond, "an initial sweep runs before the first tick")

	cutoff, ok := pruner.cutoff.Load().(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), cutoff, 5*time.Second)
}

func TestServiceSweepsOnInterval(t *testing.T) {
	pruner := &countingPruner{}
	svc := NewService(pruner, time.Hour, 20*time.Millisecond)

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return pruner.calls.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServiceStopIsIdempotent(t *testing.T) {
	pruner := &countingPruner{}
	svc := NewService(pruner, time.Hour, time.Hour)

	// Stop before Start is a no-op.
	svc.Stop()

	svc.Start(context.Background())
	svc.Start(context.Background()) // second Start is a no-op
	svc.Stop()

	calls := pruner.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, pruner.calls.Load(), "no sweeps after Stop returns")
}
