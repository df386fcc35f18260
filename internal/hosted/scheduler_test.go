package hosted

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func scheduledScript(id, expression string) *Script {
	return &Script{
		ID:           id,
		OwnerID:      "owner-1",
		Name:         "ticker",
		EndpointSlug: "ticker-abc123",
		Schedule:     ScheduleConfig{Enabled: true, Expression: expression},
	}
}

func TestParseSchedule(t *testing.T) {
	for _, expr := range []string{"* * * * *", "0 12 * * MON", "@hourly", "@every 30s"} {
		_, err := ParseSchedule(expr)
		require.NoError(t, err, expr)
	}

	_, err := ParseSchedule("not a schedule")
	require.Error(t, err)
	_, err = ParseSchedule("")
	require.Error(t, err)
}

func TestScheduler_Fires(t *testing.T) {
	var fires atomic.Int32
	s := NewScheduler(func(ctx context.Context, script *Script) {
		fires.Add(1)
	})
	defer s.Stop()

	require.NoError(t, s.Register(scheduledScript("s1", "@every 100ms")))

	require.Eventually(t, func() bool {
		return fires.Load() >= 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestScheduler_RegisterInvalidExpression(t *testing.T) {
	s := NewScheduler(func(ctx context.Context, script *Script) {})
	defer s.Stop()

	err := s.Register(scheduledScript("s1", "bogus"))
	require.Error(t, err)
	require.False(t, s.Registered("s1"))
}

func TestScheduler_SkipsWhileBusy(t *testing.T) {
	var started atomic.Int32
	release := make(chan struct{})

	s := NewScheduler(func(ctx context.Context, script *Script) {
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	defer s.Stop()
	defer close(release)

	require.NoError(t, s.Register(scheduledScript("s1", "@every 100ms")))

	require.Eventually(t, func() bool {
		return started.Load() == 1
	}, 5*time.Second, 20*time.Millisecond)

	// Further ticks fire while the first run blocks; none may start a
	// second invocation.
	time.Sleep(500 * time.Millisecond)
	require.Equal(t, int32(1), started.Load())
}

func TestScheduler_Deregister(t *testing.T) {
	var fires atomic.Int32
	s := NewScheduler(func(ctx context.Context, script *Script) {
		fires.Add(1)
	})
	defer s.Stop()

	require.NoError(t, s.Register(scheduledScript("s1", "@every 100ms")))
	require.True(t, s.Registered("s1"))

	require.Eventually(t, func() bool {
		return fires.Load() >= 1
	}, 5*time.Second, 20*time.Millisecond)

	s.Deregister("s1")
	require.False(t, s.Registered("s1"))

	// Let any in-flight tick drain before sampling the count.
	time.Sleep(150 * time.Millisecond)
	count := fires.Load()
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, count, fires.Load())
}

func TestScheduler_RegisterReplacesTimer(t *testing.T) {
	var fires atomic.Int32
	s := NewScheduler(func(ctx context.Context, script *Script) {
		fires.Add(1)
	})
	defer s.Stop()

	require.NoError(t, s.Register(scheduledScript("s1", "@every 1h")))
	// Re-registering with a faster schedule takes effect immediately.
	require.NoError(t, s.Register(scheduledScript("s1", "@every 100ms")))

	require.Eventually(t, func() bool {
		return fires.Load() >= 1
	}, 5*time.Second, 20*time.Millisecond)
}
