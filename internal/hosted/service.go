package hosted

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/scriptd/scriptd/internal/config"
	"github.com/scriptd/scriptd/internal/database"
	"github.com/scriptd/scriptd/internal/engine"
	"github.com/scriptd/scriptd/internal/metrics"
)

// slugAttempts bounds the retry loop on endpoint slug collisions. With a
// six-character random suffix collisions are vanishingly rare.
const slugAttempts = 5

// Service manages the hosted script lifecycle: registration, slug-addressed
// invocation, scheduling, and rate limiting.
type Service struct {
	cfg       *config.HostedConfig
	store     *Store
	manager   *engine.Manager
	scheduler *Scheduler
	limiter   *RateLimiter
}

func NewService(cfg *config.HostedConfig, db *database.DB, manager *engine.Manager) *Service {
	s := &Service{
		cfg:     cfg,
		store:   NewStore(db),
		manager: manager,
		limiter: NewRateLimiter(),
	}
	s.scheduler = NewScheduler(s.runScheduled)
	return s
}

// Start arms timers for every active scheduled script.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.SchedulerEnabled {
		log.Info().Msg("Hosted script scheduler disabled")
		return nil
	}

	scripts, err := s.store.ListActiveScheduled(ctx)
	if err != nil {
		return fmt.Errorf("loading scheduled scripts: %w", err)
	}

	for _, script := range scripts {
		if err := s.scheduler.Register(script); err != nil {
			log.Error().
				Err(err).
				Str("script_id", script.ID).
				Str("endpoint", script.EndpointSlug).
				Msg("Failed to arm schedule")
		}
	}

	log.Info().Int("count", len(scripts)).Msg("Hosted script scheduler started")
	return nil
}

// Stop shuts down the scheduler and rate limiter.
func (s *Service) Stop() {
	s.scheduler.Stop()
	s.limiter.Stop()
}

// CreateRequest describes a new hosted script.
type CreateRequest struct {
	OwnerID   string
	Name      string
	Language  string
	Script    string
	Params    map[string]string
	Env       map[string]string
	Schedule  ScheduleConfig
	RateLimit RateLimitConfig
}

// Create registers a script as a hosted endpoint and returns it with its
// assigned slug. The slug never changes afterwards.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Script, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("script name is required")
	}
	if strings.TrimSpace(req.Script) == "" {
		return nil, fmt.Errorf("script body is required")
	}
	if !s.manager.Supports(req.Language) {
		return nil, fmt.Errorf("unsupported language %q", req.Language)
	}
	if req.Schedule.Enabled {
		if _, err := ParseSchedule(req.Schedule.Expression); err != nil {
			return nil, err
		}
	}
	if req.RateLimit.Enabled && req.RateLimit.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("rate limit requires a positive requests-per-minute value")
	}

	now := time.Now().UTC()
	script := &Script{
		ID:        uuid.New().String(),
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		Language:  req.Language,
		Script:    req.Script,
		Params:    req.Params,
		Env:       req.Env,
		IsActive:  true,
		Schedule:  req.Schedule,
		RateLimit: req.RateLimit,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var err error
	for attempt := 0; attempt < slugAttempts; attempt++ {
		script.EndpointSlug = makeSlug(req.Name)
		err = s.store.Create(ctx, script)
		if err == nil {
			break
		}
		if !database.IsUniqueError(err) {
			return nil, err
		}
	}
	if err != nil {
		return nil, ErrSlugTaken
	}

	if s.cfg.SchedulerEnabled && script.Schedule.Enabled {
		if err := s.scheduler.Register(script); err != nil {
			log.Error().Err(err).Str("script_id", script.ID).Msg("Failed to arm schedule")
		}
	}

	log.Info().
		Str("script_id", script.ID).
		Str("owner", script.OwnerID).
		Str("endpoint", script.EndpointSlug).
		Msg("Hosted script created")

	return script, nil
}

// Get retrieves a hosted script by id, scoped to its owner.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*Script, error) {
	return s.store.Get(ctx, ownerID, id)
}

// List retrieves an owner's hosted scripts.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Script, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Invoke runs a hosted script by its endpoint slug, merging override
// parameters over the stored defaults, and waits for the result. The
// execution runs as the script's owner, not the caller.
func (s *Service) Invoke(ctx context.Context, slug string, overrides map[string]string) (*InvokeResult, error) {
	script, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !script.IsActive {
		return nil, ErrNotFound
	}

	if script.RateLimit.Enabled && !s.limiter.Allow(script.ID, script.RateLimit.RequestsPerMinute) {
		return nil, ErrRateLimited
	}

	return s.run(ctx, script, overrides)
}

// run executes a hosted script and waits for its terminal state.
func (s *Service) run(ctx context.Context, script *Script, overrides map[string]string) (*InvokeResult, error) {
	params := make(map[string]string, len(script.Params)+len(overrides))
	for k, v := range script.Params {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}

	execID, err := s.manager.Submit(ctx, engine.SubmitRequest{
		OwnerID:  script.OwnerID,
		Language: script.Language,
		Script:   script.Script,
		Params:   params,
		Env:      script.Env,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.RecordInvocation(ctx, script.ID); err != nil {
		log.Error().Err(err).Str("script_id", script.ID).Msg("Failed to record invocation")
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.InvokeTimeout)
	defer cancel()

	exec, err := s.manager.Wait(waitCtx, execID)
	if err != nil {
		return nil, &InvokeError{ExecutionID: execID, Status: "unknown", ParametersUsed: params, Cause: err}
	}

	if exec.Status != engine.StatusCompleted {
		return nil, &InvokeError{
			ExecutionID:    execID,
			Status:         string(exec.Status),
			Output:         exec.Output(),
			ParametersUsed: params,
		}
	}

	return &InvokeResult{
		ExecutionID:    execID,
		Output:         exec.Output(),
		ParametersUsed: params,
	}, nil
}

// runScheduled is the scheduler's tick callback. Failures are logged and
// counted, never propagated: a broken script must not take down the timer.
func (s *Service) runScheduled(ctx context.Context, script *Script) {
	result, err := s.run(ctx, script, nil)
	if err != nil {
		metrics.ScheduledInvocation("error")
		log.Warn().
			Err(err).
			Str("script_id", script.ID).
			Str("endpoint", script.EndpointSlug).
			Msg("Scheduled invocation failed")
		return
	}

	metrics.ScheduledInvocation("ok")
	log.Debug().
		Str("script_id", script.ID).
		Str("endpoint", script.EndpointSlug).
		Str("execution_id", result.ExecutionID).
		Msg("Scheduled invocation completed")
}

// ToggleActive flips a script's active flag. Deactivating also disarms its
// timer; reactivating rearms it when scheduling is enabled.
func (s *Service) ToggleActive(ctx context.Context, ownerID, id string) (*Script, error) {
	script, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	script.IsActive = !script.IsActive
	if err := s.store.Update(ctx, script); err != nil {
		return nil, err
	}

	s.rearm(script)

	log.Info().
		Str("script_id", script.ID).
		Bool("is_active", script.IsActive).
		Msg("Hosted script toggled")

	return script, nil
}

// UpdateRequest carries optional field updates; nil fields are unchanged.
// The endpoint slug is immutable and cannot appear here.
type UpdateRequest struct {
	Name      *string
	Language  *string
	Script    *string
	Params    map[string]string
	Env       map[string]string
	IsActive  *bool
	Schedule  *ScheduleConfig
	RateLimit *RateLimitConfig
}

// Update applies partial changes to a hosted script and rearms its timer to
// reflect the new schedule.
func (s *Service) Update(ctx context.Context, ownerID, id string, req UpdateRequest) (*Script, error) {
	script, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		script.Name = *req.Name
	}
	if req.Language != nil {
		if !s.manager.Supports(*req.Language) {
			return nil, fmt.Errorf("unsupported language %q", *req.Language)
		}
		script.Language = *req.Language
	}
	if req.Script != nil {
		script.Script = *req.Script
	}
	if req.Params != nil {
		script.Params = req.Params
	}
	if req.Env != nil {
		script.Env = req.Env
	}
	if req.IsActive != nil {
		script.IsActive = *req.IsActive
	}
	if req.Schedule != nil {
		if req.Schedule.Enabled {
			if _, err := ParseSchedule(req.Schedule.Expression); err != nil {
				return nil, err
			}
		}
		script.Schedule = *req.Schedule
	}
	if req.RateLimit != nil {
		if req.RateLimit.Enabled && req.RateLimit.RequestsPerMinute <= 0 {
			return nil, fmt.Errorf("rate limit requires a positive requests-per-minute value")
		}
		script.RateLimit = *req.RateLimit
	}

	if err := s.store.Update(ctx, script); err != nil {
		return nil, err
	}

	s.rearm(script)

	log.Info().Str("script_id", script.ID).Msg("Hosted script updated")
	return script, nil
}

// Delete removes a hosted script. The timer is disarmed before the row goes
// away so no tick can fire for a deleted script.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	script, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	s.scheduler.Deregister(script.ID)
	s.limiter.Forget(script.ID)

	if err := s.store.Delete(ctx, script.ID); err != nil {
		return err
	}

	log.Info().
		Str("script_id", script.ID).
		Str("endpoint", script.EndpointSlug).
		Msg("Hosted script deleted")

	return nil
}

// rearm brings the script's timer in line with its current state.
func (s *Service) rearm(script *Script) {
	s.scheduler.Deregister(script.ID)

	if s.cfg.SchedulerEnabled && script.IsActive && script.Schedule.Enabled {
		if err := s.scheduler.Register(script); err != nil {
			log.Error().Err(err).Str("script_id", script.ID).Msg("Failed to arm schedule")
		}
	}
}
