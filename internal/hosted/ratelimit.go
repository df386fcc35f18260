package hosted

import (
	"sync"
	"time"
)

const rateLimitWindow = time.Minute

// RateLimiter implements a per-script token bucket with a one-minute window.
// Each script carries its own requests-per-minute cap, so the cap is passed
// on every Allow call rather than fixed at construction.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	cleanup *time.Ticker
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		cleanup: time.NewTicker(rateLimitWindow * 2),
		stopCh:  make(chan struct{}),
	}

	rl.wg.Add(1)
	go func() {
		defer rl.wg.Done()
		rl.cleanupLoop()
	}()

	return rl
}

// Allow checks whether another request for the given key fits under max
// requests per window. A non-positive max disables the limit.
func (rl *RateLimiter) Allow(key string, max int) bool {
	if max <= 0 {
		return true
	}

	rl.mu.RLock()
	b, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		b, exists = rl.buckets[key]
		if !exists {
			b = &bucket{
				tokens:     max,
				lastRefill: time.Now(),
			}
			rl.buckets[key] = b
		}
		rl.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Sub(b.lastRefill) >= rateLimitWindow {
		b.tokens = max
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// Forget drops the bucket for a key, e.g. when its script is deleted.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	delete(rl.buckets, key)
	rl.mu.Unlock()
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanup.C:
			rl.mu.Lock()
			now := time.Now()
			for key, b := range rl.buckets {
				b.mu.Lock()
				if now.Sub(b.lastRefill) > rateLimitWindow*2 {
					delete(rl.buckets, key)
				}
				b.mu.Unlock()
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
	rl.cleanup.Stop()
	rl.wg.Wait()
}
