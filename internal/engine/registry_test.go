package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	mu     sync.Mutex
	killed int
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed++
	return nil
}

func TestProcessRegistry_RegisterAndPID(t *testing.T) {
	r := NewProcessRegistry()
	proc := &fakeProcess{}

	r.Register("owner-1", "exec-1", proc, 1234)

	pid, ok := r.PID("owner-1", "exec-1")
	require.True(t, ok)
	require.Equal(t, 1234, pid)

	_, ok = r.PID("owner-2", "exec-1")
	require.False(t, ok)
}

func TestProcessRegistry_Kill(t *testing.T) {
	r := NewProcessRegistry()
	proc := &fakeProcess{}

	r.Register("owner-1", "exec-1", proc, 1234)

	require.True(t, r.Kill("owner-1", "exec-1"))
	require.Equal(t, 1, proc.killed)
	require.Equal(t, 0, r.Len())

	// Idempotent: the entry is already gone.
	require.False(t, r.Kill("owner-1", "exec-1"))
	require.Equal(t, 1, proc.killed)
}

func TestProcessRegistry_Remove(t *testing.T) {
	r := NewProcessRegistry()
	r.Register("owner-1", "exec-1", &fakeProcess{}, 1)

	r.Remove("owner-1", "exec-1")
	require.Equal(t, 0, r.Len())

	// Removing an absent entry is fine.
	r.Remove("owner-1", "exec-1")
}

func TestProcessRegistry_ConcurrentAccess(t *testing.T) {
	r := NewProcessRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			r.Register("owner", id, &fakeProcess{}, n)
			r.PID("owner", id)
			r.Kill("owner", id)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 0, r.Len())
}
