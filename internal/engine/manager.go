package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/scriptd/scriptd/internal/config"
	"github.com/scriptd/scriptd/internal/metrics"
)

const maxLogLineSize = 1024 * 1024

// Manager orchestrates script executions: it renders parameters, installs
// dependencies, spawns interpreter processes, streams their output into
// ordered log entries, and enforces the per-owner concurrency limit and the
// wall-clock timeout.
type Manager struct {
	cfg       *config.EngineConfig
	store     *Store
	registry  *ProcessRegistry
	installer *Installer
	runtimes  map[string]*Runtime

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	live    map[string]*execState
	byOwner map[string]string
}

// execState is the live, mutable side of an execution. The Execution
// snapshot inside is guarded by mu; done closes at the first terminal
// transition.
type execState struct {
	mu            sync.Mutex
	exec          Execution
	done          chan struct{}
	stopRequested bool
}

func (st *execState) snapshot() *Execution {
	st.mu.Lock()
	defer st.mu.Unlock()

	copied := st.exec
	copied.Logs = append([]LogEntry(nil), st.exec.Logs...)
	if st.exec.Params != nil {
		copied.Params = make(map[string]string, len(st.exec.Params))
		for k, v := range st.exec.Params {
			copied.Params[k] = v
		}
	}
	return &copied
}

// SubmitRequest describes one script submission.
type SubmitRequest struct {
	OwnerID  string
	Language string
	Script   string
	Params   map[string]string
	Env      map[string]string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRuntime registers an additional runtime under the given language tag.
func WithRuntime(language string, rt *Runtime) ManagerOption {
	return func(m *Manager) {
		m.runtimes[language] = rt
	}
}

// NewManager creates an execution manager. The store may be nil, in which
// case no history is persisted.
func NewManager(cfg *config.EngineConfig, store *Store, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:       cfg,
		store:     store,
		registry:  NewProcessRegistry(),
		installer: NewInstaller(cfg.InstallTimeout),
		runtimes:  make(map[string]*Runtime),
		ctx:       ctx,
		cancel:    cancel,
		live:      make(map[string]*execState),
		byOwner:   make(map[string]string),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins background history cleanup.
func (m *Manager) Start(ctx context.Context) {
	if m.store == nil || m.cfg.HistoryRetention <= 0 {
		return
	}

	m.wg.Add(1)
	go m.cleanupLoop(m.ctx, time.Hour)
}

// Shutdown cancels all running executions and waits for them to finish.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
	log.Info().Msg("Execution manager stopped")
}

// Registry returns the process registry, used for process stats lookups.
func (m *Manager) Registry() *ProcessRegistry {
	return m.registry
}

// Supports reports whether the manager can execute the given language.
func (m *Manager) Supports(language string) bool {
	_, ok := m.lookupRuntime(language)
	return ok
}

func (m *Manager) lookupRuntime(language string) (*Runtime, bool) {
	if rt, ok := m.runtimes[language]; ok {
		return rt, true
	}
	return LookupRuntime(language)
}

// Submit accepts a script for execution and returns its execution id
// immediately. The script runs asynchronously; callers poll Status or block
// on Wait. Fails when the owner already has a running execution.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	rt, ok := m.lookupRuntime(req.Language)
	if !ok {
		return "", newUnsupportedLanguageError(req.Language)
	}

	rendered := RenderParams(req.Script, rt.Name, req.Params)

	m.mu.Lock()
	if blockingID, running := m.byOwner[req.OwnerID]; running {
		m.mu.Unlock()
		return "", newConcurrentExecutionError(blockingID)
	}

	st := &execState{
		exec: Execution{
			ID:        uuid.New().String(),
			OwnerID:   req.OwnerID,
			Language:  rt.Name,
			Script:    rendered,
			Params:    req.Params,
			Status:    StatusPending,
			StartedAt: time.Now().UTC(),
			Logs:      []LogEntry{},
		},
		done: make(chan struct{}),
	}
	m.live[st.exec.ID] = st
	m.byOwner[req.OwnerID] = st.exec.ID
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Create(ctx, st.snapshot()); err != nil {
			log.Error().Err(err).Str("execution_id", st.exec.ID).Msg("Failed to persist execution")
		}
	}

	metrics.ExecutionStarted()

	log.Info().
		Str("execution_id", st.exec.ID).
		Str("owner", req.OwnerID).
		Str("language", rt.Name).
		Msg("Execution submitted")

	m.wg.Add(1)
	go m.run(st, rt, req.Env)

	return st.exec.ID, nil
}

// Stop kills a running execution and marks it stopped. Valid only while the
// execution is running; anything else fails with a not-running error.
func (m *Manager) Stop(ctx context.Context, ownerID, execID string) error {
	m.mu.Lock()
	st, ok := m.live[execID]
	m.mu.Unlock()

	if !ok || st.exec.OwnerID != ownerID {
		return newNotRunningError(execID)
	}

	st.mu.Lock()
	if st.exec.Status != StatusRunning {
		st.mu.Unlock()
		return newNotRunningError(execID)
	}
	st.stopRequested = true
	st.mu.Unlock()

	m.registry.Kill(ownerID, execID)

	// Wait for the run goroutine to observe the kill so callers see the
	// stopped status.
	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a read-only snapshot of an execution.
func (m *Manager) Status(ctx context.Context, ownerID, execID string) (*Execution, error) {
	m.mu.Lock()
	st, ok := m.live[execID]
	m.mu.Unlock()

	if ok {
		if st.exec.OwnerID != ownerID {
			return nil, newNotFoundError(execID)
		}
		return st.snapshot(), nil
	}

	if m.store == nil {
		return nil, newNotFoundError(execID)
	}

	exec, err := m.store.Get(ctx, execID)
	if err != nil {
		return nil, err
	}
	if exec.OwnerID != ownerID {
		return nil, newNotFoundError(execID)
	}
	return exec, nil
}

// Wait blocks until the execution reaches a terminal state and returns its
// final snapshot.
func (m *Manager) Wait(ctx context.Context, execID string) (*Execution, error) {
	m.mu.Lock()
	st, ok := m.live[execID]
	m.mu.Unlock()

	if ok {
		select {
		case <-st.done:
			return st.snapshot(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.store == nil {
		return nil, newNotFoundError(execID)
	}

	exec, err := m.store.Get(ctx, execID)
	if err != nil {
		return nil, err
	}
	if !exec.Status.Terminal() {
		return nil, newNotFoundError(execID)
	}
	return exec, nil
}

// run drives one execution from dependency install to terminal state.
func (m *Manager) run(st *execState, rt *Runtime, env map[string]string) {
	defer m.wg.Done()

	execID := st.exec.ID
	ownerID := st.exec.OwnerID
	script := st.exec.Script

	m.installDependencies(st, rt, script)

	scriptPath, err := m.writeWorkspaceFile(execID, rt, script)
	if err != nil {
		m.appendLog(st, LogLevelError, fmt.Sprintf("Failed to prepare workspace: %v", err))
		m.finish(st, StatusError)
		return
	}

	runCtx, cancel := context.WithTimeout(m.ctx, m.cfg.Timeout)
	defer cancel()

	argv := append(append([]string{}, rt.Command...), scriptPath)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	// Grandchildren can hold the pipes open past the kill; give Wait a
	// bounded exit.
	cmd.WaitDelay = 10 * time.Second
	cmd.Dir = filepath.Dir(scriptPath)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.appendLog(st, LogLevelError, fmt.Sprintf("Failed to open stdout pipe: %v", err))
		m.finish(st, StatusError)
		m.scheduleCleanup(execID, scriptPath)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.appendLog(st, LogLevelError, fmt.Sprintf("Failed to open stderr pipe: %v", err))
		m.finish(st, StatusError)
		m.scheduleCleanup(execID, scriptPath)
		return
	}

	if err := cmd.Start(); err != nil {
		m.appendLog(st, LogLevelError, fmt.Sprintf("Failed to start interpreter: %v", err))
		m.finish(st, StatusError)
		m.scheduleCleanup(execID, scriptPath)
		return
	}

	// The registry entry must exist before the status flips, or a Stop
	// racing the transition would find nothing to kill.
	m.registry.Register(ownerID, execID, cmd.Process, cmd.Process.Pid)
	m.setRunning(st)

	// One blocking reader per stream keeps per-stream ordering; cross-
	// stream interleaving is best-effort.
	var streams sync.WaitGroup
	streams.Add(2)
	go func() {
		defer streams.Done()
		m.streamOutput(st, stdout, LogLevelInfo)
	}()
	go func() {
		defer streams.Done()
		m.streamOutput(st, stderr, LogLevelError)
	}()
	streams.Wait()

	waitErr := cmd.Wait()
	m.registry.Remove(ownerID, execID)

	st.mu.Lock()
	stopped := st.stopRequested
	st.mu.Unlock()

	switch {
	case stopped:
		m.appendLog(st, LogLevelWarning, "Execution stopped by user")
		m.finish(st, StatusStopped)

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		m.appendLog(st, LogLevelError, fmt.Sprintf("Execution timed out after %s and was killed", m.cfg.Timeout))
		m.finish(st, StatusError)

	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			m.appendLog(st, LogLevelError, fmt.Sprintf("Process exited with code %d", exitErr.ExitCode()))
		} else {
			m.appendLog(st, LogLevelError, fmt.Sprintf("Process failed: %v", waitErr))
		}
		m.finish(st, StatusError)

	default:
		m.finish(st, StatusCompleted)
	}

	m.scheduleCleanup(execID, scriptPath)
}

// installDependencies resolves and installs missing packages. Failures are
// logged as warnings and never abort the execution.
func (m *Manager) installDependencies(st *execState, rt *Runtime, script string) {
	if !m.cfg.InstallDependencies || len(rt.InstallCommand) == 0 {
		return
	}

	for _, pkg := range ResolveDependencies(script, rt.Name) {
		if m.installer.Installed(rt.Name + ":" + pkg) {
			continue
		}

		m.appendLog(st, LogLevelInfo, fmt.Sprintf("Installing dependency %s", pkg))
		if _, err := m.installer.EnsureInstalled(m.ctx, rt, pkg); err != nil {
			m.appendLog(st, LogLevelWarning, fmt.Sprintf("Failed to install %s, continuing: %v", pkg, err))
			log.Warn().
				Err(err).
				Str("execution_id", st.exec.ID).
				Str("package", pkg).
				Msg("Dependency install failed")
		}
	}
}

func (m *Manager) writeWorkspaceFile(execID string, rt *Runtime, script string) (string, error) {
	if err := os.MkdirAll(m.cfg.WorkspaceDir, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}

	path := filepath.Join(m.cfg.WorkspaceDir, "exec-"+execID+rt.Extension)
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		return "", fmt.Errorf("writing script file: %w", err)
	}

	return path, nil
}

func (m *Manager) streamOutput(st *execState, r io.Reader, level LogLevel) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLogLineSize)

	for scanner.Scan() {
		m.appendLog(st, level, scanner.Text())
	}
}

func (m *Manager) appendLog(st *execState, level LogLevel, message string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.exec.Status.Terminal() {
		return
	}

	st.exec.Logs = append(st.exec.Logs, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	})
}

func (m *Manager) setRunning(st *execState) {
	st.mu.Lock()
	st.exec.Status = StatusRunning
	st.mu.Unlock()

	m.persist(st)
}

// finish performs the single transition into a terminal state: it sets
// completed-at and duration exactly once, closes the done channel, and
// releases the owner's concurrency slot.
func (m *Manager) finish(st *execState, status Status) {
	st.mu.Lock()
	if st.exec.Status.Terminal() {
		st.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	st.exec.Status = status
	st.exec.CompletedAt = &now
	st.exec.DurationMs = int(now.Sub(st.exec.StartedAt).Milliseconds())
	duration := now.Sub(st.exec.StartedAt)
	st.mu.Unlock()

	close(st.done)

	m.mu.Lock()
	if m.byOwner[st.exec.OwnerID] == st.exec.ID {
		delete(m.byOwner, st.exec.OwnerID)
	}
	m.mu.Unlock()

	m.persist(st)
	metrics.ExecutionFinished(st.exec.Language, string(status), duration)

	log.Info().
		Str("execution_id", st.exec.ID).
		Str("owner", st.exec.OwnerID).
		Str("status", string(status)).
		Dur("duration", duration).
		Msg("Execution finished")
}

func (m *Manager) persist(st *execState) {
	if m.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.store.Update(ctx, st.snapshot()); err != nil {
		log.Error().Err(err).Str("execution_id", st.exec.ID).Msg("Failed to persist execution state")
	}
}

// scheduleCleanup removes the workspace file and evicts the in-memory state
// after a grace delay. Status reads fall back to the store afterwards.
func (m *Manager) scheduleCleanup(execID, scriptPath string) {
	time.AfterFunc(m.cfg.CleanupDelay, func() {
		if scriptPath != "" {
			if err := os.Remove(scriptPath); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", scriptPath).Msg("Failed to remove workspace file")
			}
		}

		m.mu.Lock()
		delete(m.live, execID)
		m.mu.Unlock()
	})
}

func (m *Manager) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := m.store.DeleteOlderThan(ctx, m.cfg.HistoryRetention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to clean up execution history")
			} else if deleted > 0 {
				log.Debug().Int64("count", deleted).Msg("Cleaned up old executions")
			}
		}
	}
}
