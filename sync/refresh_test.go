// ABOUTME: Tests for scheduled silent refresh
// ABOUTME: Checks cron wiring, cancellation, and single-pass refresh
package sync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls  atomic.Int32
	result bool
}

func (c *countingRefresher) RefreshSilently(context.Context) bool {
	c.calls.Add(1)
	return c.result
}

func TestRefresherRunOnce(t *testing.T) {
	target := &countingRefresher{result: true}
	r := NewRefresher(target, "", nil)

	assert.True(t, r.RunOnce(context.Background()))
	assert.Equal(t, int32(1), target.calls.Load())
	assert.Equal(t, DefaultRefreshSpec, r.spec)
}

func TestRefresherRejectsBadSchedule(t *testing.T) {
	r := NewRefresher(&countingRefresher{}, "every tuesday", nil)

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid refresh schedule")
}

func TestRefresherRunsUntilCancelled(t *testing.T) {
	target := &countingRefresher{}
	r := NewRefresher(target, EverySpec(time.Second), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return target.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("refresher did not stop after cancel")
	}
}

func TestEverySpec(t *testing.T) {
	assert.Equal(t, "@every 15m0s", EverySpec(15*time.Minute))
}
