package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scriptd/scriptd/internal/config"
)

var shellRuntime = &Runtime{
	Name:      "shell",
	Extension: ".sh",
	Command:   []string{"/bin/sh"},
}

func testManager(t *testing.T, mutate func(*config.EngineConfig)) *Manager {
	t.Helper()

	cfg := &config.EngineConfig{
		WorkspaceDir:        t.TempDir(),
		Timeout:             10 * time.Second,
		InstallTimeout:      5 * time.Second,
		CleanupDelay:        100 * time.Millisecond,
		InstallDependencies: false,
	}
	if mutate != nil {
		mutate(cfg)
	}

	m := NewManager(cfg, nil, WithRuntime("shell", shellRuntime))
	t.Cleanup(m.Shutdown)
	return m
}

func waitForStatus(t *testing.T, m *Manager, owner, id string, want Status) *Execution {
	t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := m.Status(context.Background(), owner, id)
		require.NoError(t, err)
		if exec.Status == want {
			return exec
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("execution %s never reached status %s", id, want)
	return nil
}

func logMessages(exec *Execution, level LogLevel) []string {
	var msgs []string
	for _, entry := range exec.Logs {
		if entry.Level == level {
			msgs = append(msgs, entry.Message)
		}
	}
	return msgs
}

func TestManager_SubmitAndComplete(t *testing.T) {
	m := testManager(t, nil)

	id, err := m.Submit(context.Background(), SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   `echo hello`,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	exec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, exec.Status)
	require.Contains(t, logMessages(exec, LogLevelInfo), "hello")
	require.NotNil(t, exec.CompletedAt)
	require.GreaterOrEqual(t, exec.DurationMs, 0)
}

func TestManager_ParameterRoundTrip(t *testing.T) {
	m := testManager(t, nil)

	id, err := m.Submit(context.Background(), SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   `echo ${NAME}`,
		Params:   map[string]string{"NAME": "Ada"},
	})
	require.NoError(t, err)

	exec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, exec.Status)
	require.Contains(t, exec.Output(), "Ada")
}

func TestManager_NonZeroExit(t *testing.T) {
	m := testManager(t, nil)

	id, err := m.Submit(context.Background(), SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   "exit 3",
	})
	require.NoError(t, err)

	exec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusError, exec.Status)

	errs := logMessages(exec, LogLevelError)
	require.NotEmpty(t, errs)
	require.Contains(t, errs[len(errs)-1], "exited with code 3")
}

func TestManager_StderrBecomesErrorEntries(t *testing.T) {
	m := testManager(t, nil)

	id, err := m.Submit(context.Background(), SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   "echo out\necho oops 1>&2",
	})
	require.NoError(t, err)

	exec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, exec.Status)
	require.Contains(t, logMessages(exec, LogLevelInfo), "out")
	require.Contains(t, logMessages(exec, LogLevelError), "oops")
}

func TestManager_EnvOverrides(t *testing.T) {
	m := testManager(t, nil)

	id, err := m.Submit(context.Background(), SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   `echo "$GREETING"`,
		Env:      map[string]string{"GREETING": "bonjour"},
	})
	require.NoError(t, err)

	exec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	require.Contains(t, exec.Output(), "bonjour")
}

func TestManager_ConcurrentExecutionRejected(t *testing.T) {
	m := testManager(t, nil)
	ctx := context.Background()

	idA, err := m.Submit(ctx, SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   "sleep 10",
	})
	require.NoError(t, err)
	waitForStatus(t, m, "owner-1", idA, StatusRunning)

	_, err = m.Submit(ctx, SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   "echo never",
	})
	require.Error(t, err)
	require.Equal(t, KindConcurrentExecution, KindOf(err))
	require.Equal(t, idA, ExecutionIDOf(err))

	// A different owner is not blocked.
	idB, err := m.Submit(ctx, SubmitRequest{
		OwnerID:  "owner-2",
		Language: "shell",
		Script:   "echo fine",
	})
	require.NoError(t, err)
	exec, err := m.Wait(ctx, idB)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, exec.Status)

	require.NoError(t, m.Stop(ctx, "owner-1", idA))
}

func TestManager_NearSimultaneousSubmissions(t *testing.T) {
	m := testManager(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	ids := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ids[n], errs[n] = m.Submit(ctx, SubmitRequest{
				OwnerID:  "owner-1",
				Language: "shell",
				Script:   "sleep 5",
			})
		}(i)
	}
	wg.Wait()

	failures := 0
	var winner string
	for i := range errs {
		if errs[i] != nil {
			failures++
			require.Equal(t, KindConcurrentExecution, KindOf(errs[i]))
		} else {
			winner = ids[i]
		}
	}
	require.Equal(t, 1, failures)
	require.NotEmpty(t, winner)

	waitForStatus(t, m, "owner-1", winner, StatusRunning)
	require.NoError(t, m.Stop(ctx, "owner-1", winner))
}

func TestManager_Stop(t *testing.T) {
	m := testManager(t, nil)
	ctx := context.Background()

	id, err := m.Submit(ctx, SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   "sleep 30",
	})
	require.NoError(t, err)
	waitForStatus(t, m, "owner-1", id, StatusRunning)

	require.NoError(t, m.Stop(ctx, "owner-1", id))

	exec, err := m.Status(ctx, "owner-1", id)
	require.NoError(t, err)
	require.Equal(t, StatusStopped, exec.Status)
	require.Contains(t, logMessages(exec, LogLevelWarning), "Execution stopped by user")
	require.Equal(t, 0, m.Registry().Len())

	// A second stop is an invalid-state operation.
	err = m.Stop(ctx, "owner-1", id)
	require.Equal(t, KindNotRunning, KindOf(err))

	// The owner's slot is free again.
	_, err = m.Submit(ctx, SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   "echo again",
	})
	require.NoError(t, err)
}

func TestManager_ProcessRegisteredWhenRunning(t *testing.T) {
	m := testManager(t, nil)
	ctx := context.Background()

	id, err := m.Submit(ctx, SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   "sleep 5",
	})
	require.NoError(t, err)

	// As soon as the status reads running, Stop must be able to find the
	// process handle.
	waitForStatus(t, m, "owner-1", id, StatusRunning)
	pid, ok := m.Registry().PID("owner-1", id)
	require.True(t, ok)
	require.Greater(t, pid, 0)

	require.NoError(t, m.Stop(ctx, "owner-1", id))
	exec, err := m.Status(ctx, "owner-1", id)
	require.NoError(t, err)
	require.Equal(t, StatusStopped, exec.Status)
}

func TestManager_StopUnknownExecution(t *testing.T) {
	m := testManager(t, nil)

	err := m.Stop(context.Background(), "owner-1", "nope")
	require.Equal(t, KindNotRunning, KindOf(err))
}

func TestManager_Timeout(t *testing.T) {
	m := testManager(t, func(cfg *config.EngineConfig) {
		cfg.Timeout = 300 * time.Millisecond
	})

	id, err := m.Submit(context.Background(), SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   "sleep 30",
	})
	require.NoError(t, err)

	exec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusError, exec.Status)

	var sawTimeout bool
	for _, msg := range logMessages(exec, LogLevelError) {
		if strings.Contains(msg, "timed out") {
			sawTimeout = true
		}
	}
	require.True(t, sawTimeout)
}

func TestManager_UnsupportedLanguage(t *testing.T) {
	m := testManager(t, nil)

	_, err := m.Submit(context.Background(), SubmitRequest{
		OwnerID:  "owner-1",
		Language: "cobol",
		Script:   "DISPLAY 'HI'",
	})
	require.Equal(t, KindUnsupportedLanguage, KindOf(err))
}

func TestManager_SpawnFailure(t *testing.T) {
	m := testManager(t, nil)
	broken := &Runtime{
		Name:      "broken",
		Extension: ".x",
		Command:   []string{"/nonexistent/interpreter"},
	}
	m.runtimes["broken"] = broken

	id, err := m.Submit(context.Background(), SubmitRequest{
		OwnerID:  "owner-1",
		Language: "broken",
		Script:   "whatever",
	})
	require.NoError(t, err)

	exec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusError, exec.Status)
	require.NotEmpty(t, logMessages(exec, LogLevelError))
}

func TestManager_StatusUnknown(t *testing.T) {
	m := testManager(t, nil)

	_, err := m.Status(context.Background(), "owner-1", "missing")
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestManager_StatusWrongOwner(t *testing.T) {
	m := testManager(t, nil)

	id, err := m.Submit(context.Background(), SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   "echo private",
	})
	require.NoError(t, err)

	_, err = m.Status(context.Background(), "owner-2", id)
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestManager_LogOrderingPerStream(t *testing.T) {
	m := testManager(t, nil)

	id, err := m.Submit(context.Background(), SubmitRequest{
		OwnerID:  "owner-1",
		Language: "shell",
		Script:   "echo one\necho two\necho three",
	})
	require.NoError(t, err)

	exec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three"}, logMessages(exec, LogLevelInfo))

	for i := 1; i < len(exec.Logs); i++ {
		require.False(t, exec.Logs[i].Timestamp.Before(exec.Logs[i-1].Timestamp))
	}
}
