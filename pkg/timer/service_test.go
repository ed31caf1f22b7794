package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningService(t *testing.T) *Service {
	t.Helper()
	cfg := Config{WorkerPoolSize: 4, MaxTimersPerController: 1024, DefaultResolution: time.Duration(MillisPerTick) * time.Millisecond}
	svc := NewService(cfg, log.NewNopLogger(), prometheus.NewRegistry())
	require.NoError(t, services.StartAndAwaitRunning(context.Background(), svc))
	t.Cleanup(func() {
		require.NoError(t, services.StopAndAwaitTerminated(context.Background(), svc))
	})
	return svc
}

// TestTimerStopDuringFireBlocksUntilCallbackReturns: a concurrent Stop
// from a foreign goroutine must
// not return until the already-firing callback has completed, and must
// report false since it did not prevent the fire.
func TestTimerStopDuringFireBlocksUntilCallbackReturns(t *testing.T) {
	svc := newRunningService(t)
	c := svc.NewController(64, time.Duration(MillisPerTick)*time.Millisecond)
	defer svc.CleanupController(c)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished bool
	var mu sync.Mutex

	id := svc.Start(c, func(ctx context.Context, id uint64, userData any) {
		close(started)
		<-release
		mu.Lock()
		finished = true
		mu.Unlock()
	}, 0, nil)

	<-started
	stopDone := make(chan bool, 1)
	go func() {
		stopDone <- svc.Stop(context.Background(), c, id)
	}()

	// The stop call must still be blocked while the callback is parked.
	select {
	case <-stopDone:
		t.Fatal("Stop returned before the in-flight callback finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	result := <-stopDone

	assert.False(t, result, "Stop must report false: it did not prevent the callback from firing")
	mu.Lock()
	assert.True(t, finished)
	mu.Unlock()
}

// TestTimerResetDelaysFiringPastNewDeadline: resetting a pending timer to
// a longer delay must push its
// fire time out accordingly rather than firing on the original schedule.
func TestTimerResetDelaysFiringPastNewDeadline(t *testing.T) {
	svc := newRunningService(t)
	c := svc.NewController(64, time.Duration(MillisPerTick)*time.Millisecond)
	defer svc.CleanupController(c)

	fired := make(chan time.Time, 1)
	start := time.Now()
	id := svc.Start(c, func(ctx context.Context, id uint64, userData any) {
		fired <- time.Now()
	}, 300, nil)

	time.Sleep(100 * time.Millisecond)
	ok := svc.Reset(context.Background(), c, id, func(ctx context.Context, id uint64, userData any) {
		fired <- time.Now()
	}, 600, nil)
	require.True(t, ok)

	select {
	case ts := <-fired:
		assert.GreaterOrEqual(t, ts.Sub(start).Milliseconds(), int64(650))
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired after reset")
	}
}

// TestStopAndClearZeroesHandleRegardlessOfOutcome: the caller's id
// variable is always zeroed,
// whether or not the stop actually won the race.
func TestStopAndClearZeroesHandleRegardlessOfOutcome(t *testing.T) {
	svc := newRunningService(t)
	c := svc.NewController(64, time.Duration(MillisPerTick)*time.Millisecond)
	defer svc.CleanupController(c)

	id := svc.Start(c, func(ctx context.Context, id uint64, userData any) {}, 10_000, nil)
	require.NotZero(t, id)

	ok := svc.StopAndClear(context.Background(), c, &id)
	assert.True(t, ok)
	assert.Zero(t, id)
}

// TestStartRefusesTimersBeyondControllerBudget checks the allocation-failure
// contract: once maxTimers are outstanding, Start returns the null id, and
// stopping one frees the slot for the next Start.
func TestStartRefusesTimersBeyondControllerBudget(t *testing.T) {
	svc := newRunningService(t)
	c := svc.NewController(2, time.Duration(MillisPerTick)*time.Millisecond)
	defer svc.CleanupController(c)

	noop := func(ctx context.Context, id uint64, userData any) {}
	a := svc.Start(c, noop, 60_000, nil)
	b := svc.Start(c, noop, 60_000, nil)
	require.NotZero(t, a)
	require.NotZero(t, b)

	assert.Zero(t, svc.Start(c, noop, 60_000, nil))

	require.True(t, svc.Stop(context.Background(), c, a))
	assert.NotZero(t, svc.Start(c, noop, 60_000, nil))
}

// TestTimerCallbackFiresAtMostOnce: a started timer that is never stopped
// fires exactly once, and its callback does not run again afterwards.
func TestTimerCallbackFiresAtMostOnce(t *testing.T) {
	svc := newRunningService(t)
	c := svc.NewController(64, time.Duration(MillisPerTick)*time.Millisecond)
	defer svc.CleanupController(c)

	var fireCount int32
	var mu sync.Mutex
	done := make(chan struct{})
	svc.Start(c, func(ctx context.Context, id uint64, userData any) {
		mu.Lock()
		fireCount++
		mu.Unlock()
		close(done)
	}, 50, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), fireCount)
}
