package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scriptd/scriptd/internal/metrics"
)

// Installer installs script dependencies, caching what it has already
// installed. The cache is process-wide and grows monotonically: a package
// installs at most once for the life of the daemon, no matter how many
// executions or owners need it.
type Installer struct {
	timeout time.Duration

	mu        sync.Mutex
	installed map[string]bool
	inflight  map[string]*sync.Mutex
}

// NewInstaller creates an installer with a per-package install timeout.
func NewInstaller(timeout time.Duration) *Installer {
	return &Installer{
		timeout:   timeout,
		installed: make(map[string]bool),
		inflight:  make(map[string]*sync.Mutex),
	}
}

// Installed reports whether a package is already in the cache.
func (i *Installer) Installed(pkg string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.installed[pkg]
}

// EnsureInstalled installs a package unless the cache already has it.
// Concurrent calls for the same package serialize on a per-package lock so
// the install runs once. Returns true when the cache was hit.
func (i *Installer) EnsureInstalled(ctx context.Context, rt *Runtime, pkg string) (bool, error) {
	if len(rt.InstallCommand) == 0 {
		return false, fmt.Errorf("runtime %s has no installer", rt.Name)
	}

	key := rt.Name + ":" + pkg

	i.mu.Lock()
	if i.installed[key] {
		i.mu.Unlock()
		return true, nil
	}
	pkgMu, ok := i.inflight[key]
	if !ok {
		pkgMu = &sync.Mutex{}
		i.inflight[key] = pkgMu
	}
	i.mu.Unlock()

	pkgMu.Lock()
	defer pkgMu.Unlock()

	// Another execution may have finished the install while we waited.
	i.mu.Lock()
	if i.installed[key] {
		i.mu.Unlock()
		return true, nil
	}
	i.mu.Unlock()

	installCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	argv := append(append([]string{}, rt.InstallCommand...), pkg)
	cmd := exec.CommandContext(installCtx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		metrics.DependencyInstall("error")
		if installCtx.Err() == context.DeadlineExceeded {
			return false, fmt.Errorf("installing %s: timed out after %s", pkg, i.timeout)
		}
		return false, fmt.Errorf("installing %s: %w: %s", pkg, err, strings.TrimSpace(string(output)))
	}

	i.mu.Lock()
	i.installed[key] = true
	delete(i.inflight, key)
	i.mu.Unlock()

	metrics.DependencyInstall("success")
	log.Debug().
		Str("package", pkg).
		Str("runtime", rt.Name).
		Msg("Dependency installed")

	return false, nil
}
