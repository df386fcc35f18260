package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scriptd/scriptd/internal/engine"
	"github.com/scriptd/scriptd/internal/hosted"
	"github.com/scriptd/scriptd/internal/requestctx"
)

// CreateHostedScriptRequest is the body of POST /api/hosted-scripts.
type CreateHostedScriptRequest struct {
	Name      string                 `json:"name"`
	Language  string                 `json:"language"`
	Script    string                 `json:"script"`
	Params    map[string]string      `json:"params,omitempty"`
	Env       map[string]string      `json:"env,omitempty"`
	Schedule  hosted.ScheduleConfig  `json:"schedule"`
	RateLimit hosted.RateLimitConfig `json:"rateLimit"`
}

// CreateHostedScript registers a script as an invocable endpoint.
func (h *Handlers) CreateHostedScript(w http.ResponseWriter, r *http.Request) {
	var req CreateHostedScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}

	script, err := h.hostedSvc.Create(r.Context(), hosted.CreateRequest{
		OwnerID:   requestctx.OwnerID(r.Context()),
		Name:      req.Name,
		Language:  req.Language,
		Script:    req.Script,
		Params:    req.Params,
		Env:       req.Env,
		Schedule:  req.Schedule,
		RateLimit: req.RateLimit,
	})
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"script":   script,
		"endpoint": script.EndpointSlug,
		"url":      h.endpointURL(script.EndpointSlug),
	})
}

// ListHostedScripts returns the owner's hosted scripts.
func (h *Handlers) ListHostedScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.hostedSvc.List(r.Context(), requestctx.OwnerID(r.Context()))
	if err != nil {
		InternalError(w, "Failed to list hosted scripts")
		return
	}
	if scripts == nil {
		scripts = []*hosted.Script{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"scripts": scripts,
		"count":   len(scripts),
	})
}

// RunHostedScript invokes a hosted script by its endpoint slug and waits for
// the result. Parameter overrides come from the query string on GET and from
// the JSON body on POST.
func (h *Handlers) RunHostedScript(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("endpoint")

	overrides, err := h.invokeOverrides(r)
	if err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}

	result, err := h.hostedSvc.Invoke(r.Context(), slug, overrides)
	if err != nil {
		h.writeInvokeError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"executionId":    result.ExecutionID,
		"output":         result.Output,
		"parametersUsed": result.ParametersUsed,
	})
}

func (h *Handlers) invokeOverrides(r *http.Request) (map[string]string, error) {
	if r.Method == http.MethodGet {
		overrides := make(map[string]string)
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				overrides[key] = values[0]
			}
		}
		return overrides, nil
	}

	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}

	var body struct {
		Params map[string]string `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Params, nil
}

func (h *Handlers) writeInvokeError(w http.ResponseWriter, err error) {
	var invokeErr *hosted.InvokeError

	switch {
	case errors.Is(err, hosted.ErrNotFound):
		NotFound(w, "Hosted script not found")
	case errors.Is(err, hosted.ErrRateLimited):
		TooManyRequests(w, "Rate limit exceeded for this endpoint")
	case errors.As(err, &invokeErr):
		JSON(w, http.StatusInternalServerError, map[string]any{
			"success":        false,
			"error":          "Execution finished with status " + invokeErr.Status,
			"executionId":    invokeErr.ExecutionID,
			"output":         invokeErr.Output,
			"parametersUsed": invokeErr.ParametersUsed,
		})
	case engine.KindOf(err) == engine.KindConcurrentExecution:
		Conflict(w, "CONCURRENT_EXECUTION", "Another execution is already running for this owner",
			map[string]string{"executionId": engine.ExecutionIDOf(err)})
	default:
		InternalError(w, "Invocation failed")
	}
}

// ToggleHostedScript flips a script between active and inactive.
func (h *Handlers) ToggleHostedScript(w http.ResponseWriter, r *http.Request) {
	script, err := h.hostedSvc.ToggleActive(r.Context(), requestctx.OwnerID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeHostedError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"isActive": script.IsActive})
}

// UpdateHostedScriptRequest is the body of PATCH /api/hosted-scripts/{id}.
// Absent fields are left unchanged; the endpoint slug cannot be changed.
type UpdateHostedScriptRequest struct {
	Name      *string                 `json:"name,omitempty"`
	Language  *string                 `json:"language,omitempty"`
	Script    *string                 `json:"script,omitempty"`
	Params    map[string]string       `json:"params,omitempty"`
	Env       map[string]string       `json:"env,omitempty"`
	IsActive  *bool                   `json:"isActive,omitempty"`
	Schedule  *hosted.ScheduleConfig  `json:"schedule,omitempty"`
	RateLimit *hosted.RateLimitConfig `json:"rateLimit,omitempty"`
}

// UpdateHostedScript applies partial changes to a hosted script.
func (h *Handlers) UpdateHostedScript(w http.ResponseWriter, r *http.Request) {
	var req UpdateHostedScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}

	script, err := h.hostedSvc.Update(r.Context(), requestctx.OwnerID(r.Context()), r.PathValue("id"), hosted.UpdateRequest{
		Name:      req.Name,
		Language:  req.Language,
		Script:    req.Script,
		Params:    req.Params,
		Env:       req.Env,
		IsActive:  req.IsActive,
		Schedule:  req.Schedule,
		RateLimit: req.RateLimit,
	})
	if err != nil {
		h.writeHostedError(w, err)
		return
	}

	JSON(w, http.StatusOK, script)
}

// DeleteHostedScript removes a hosted script and disarms its schedule.
func (h *Handlers) DeleteHostedScript(w http.ResponseWriter, r *http.Request) {
	if err := h.hostedSvc.Delete(r.Context(), requestctx.OwnerID(r.Context()), r.PathValue("id")); err != nil {
		h.writeHostedError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) writeHostedError(w http.ResponseWriter, err error) {
	if errors.Is(err, hosted.ErrNotFound) {
		NotFound(w, "Hosted script not found")
		return
	}
	BadRequest(w, err.Error())
}

func (h *Handlers) endpointURL(slug string) string {
	return h.cfg.Server.BaseURL() + "/api/hosted-scripts/run/" + slug
}
