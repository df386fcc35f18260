package engine

import (
	"sync"
)

// processHandle is the minimal surface the registry needs from a live
// process. *os.Process satisfies it.
type processHandle interface {
	Kill() error
}

type registryKey struct {
	ownerID string
	execID  string
}

type registryEntry struct {
	handle processHandle
	pid    int
}

// ProcessRegistry is a concurrency-safe map from (owner, execution id) to a
// live process handle. Entries exist only while the execution is running;
// this is the only place a raw OS-level handle is held.
type ProcessRegistry struct {
	mu      sync.RWMutex
	entries map[registryKey]registryEntry
}

func NewProcessRegistry() *ProcessRegistry {
	return &ProcessRegistry{
		entries: make(map[registryKey]registryEntry),
	}
}

// Register records a live process handle for an execution.
func (r *ProcessRegistry) Register(ownerID, execID string, handle processHandle, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[registryKey{ownerID, execID}] = registryEntry{handle: handle, pid: pid}
}

// PID returns the OS process id for a running execution.
func (r *ProcessRegistry) PID(ownerID, execID string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[registryKey{ownerID, execID}]
	return entry.pid, ok
}

// Remove drops the registry entry. Safe to call for absent entries.
func (r *ProcessRegistry) Remove(ownerID, execID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, registryKey{ownerID, execID})
}

// Kill sends a termination signal to the registered process and removes the
// entry. Idempotent: a missing entry or an already-exited process is not an
// error. Returns whether an entry existed.
func (r *ProcessRegistry) Kill(ownerID, execID string) bool {
	r.mu.Lock()
	entry, ok := r.entries[registryKey{ownerID, execID}]
	delete(r.entries, registryKey{ownerID, execID})
	r.mu.Unlock()

	if !ok {
		return false
	}

	// The process may have exited between lookup and kill.
	_ = entry.handle.Kill()
	return true
}

// Len returns the number of live entries.
func (r *ProcessRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
