package hosted

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/scriptd/scriptd/internal/metrics"
)

// scheduleParser accepts five-field cron expressions plus descriptors such as
// "@hourly" and "@every 30s".
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a schedule expression.
func ParseSchedule(expression string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule expression %q: %w", expression, err)
	}
	return sched, nil
}

// Scheduler fires hosted scripts on their schedules. Each registered script
// gets its own timer goroutine; a tick is skipped, never queued, while the
// previous triggered run is still going.
type Scheduler struct {
	invoke func(ctx context.Context, script *Script)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]context.CancelFunc
	busy    map[string]bool
}

// NewScheduler creates a scheduler that calls invoke on every fired tick.
func NewScheduler(invoke func(ctx context.Context, script *Script)) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		invoke:  invoke,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]context.CancelFunc),
		busy:    make(map[string]bool),
	}
}

// Register arms a timer for the script, replacing any existing one. Fails
// when the schedule expression does not parse.
func (s *Scheduler) Register(script *Script) error {
	sched, err := ParseSchedule(script.Schedule.Expression)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if cancel, ok := s.entries[script.ID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.entries[script.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, script, sched)

	log.Info().
		Str("script_id", script.ID).
		Str("endpoint", script.EndpointSlug).
		Str("expression", script.Schedule.Expression).
		Msg("Schedule registered")

	return nil
}

// Deregister stops the script's timer. The cancellation is synchronous with
// respect to future fires: once Deregister returns, no new tick fires.
func (s *Scheduler) Deregister(scriptID string) {
	s.mu.Lock()
	cancel, ok := s.entries[scriptID]
	if ok {
		cancel()
		delete(s.entries, scriptID)
	}
	s.mu.Unlock()

	if ok {
		log.Info().Str("script_id", scriptID).Msg("Schedule deregistered")
	}
}

// Registered reports whether the script currently has an armed timer.
func (s *Scheduler) Registered(scriptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[scriptID]
	return ok
}

// Stop cancels all timers and waits for in-flight invocations.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, script *Script, sched cron.Schedule) {
	defer s.wg.Done()

	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.tryAcquire(script.ID) {
			log.Debug().
				Str("script_id", script.ID).
				Str("endpoint", script.EndpointSlug).
				Msg("Skipping schedule tick, previous run still going")
			metrics.ScheduledInvocation("skipped")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release(script.ID)
			s.invoke(ctx, script)
		}()
	}
}

func (s *Scheduler) tryAcquire(scriptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy[scriptID] {
		return false
	}
	s.busy[scriptID] = true
	return true
}

func (s *Scheduler) release(scriptID string) {
	s.mu.Lock()
	delete(s.busy, scriptID)
	s.mu.Unlock()
}
