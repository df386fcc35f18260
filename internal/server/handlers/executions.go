package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/scriptd/scriptd/internal/engine"
	"github.com/scriptd/scriptd/internal/requestctx"
)

// SubmitExecutionRequest is the body of POST /api/executions.
type SubmitExecutionRequest struct {
	Language string            `json:"language"`
	Script   string            `json:"script"`
	Params   map[string]string `json:"params,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
}

// SubmitExecution accepts a script and returns its execution id immediately.
func (h *Handlers) SubmitExecution(w http.ResponseWriter, r *http.Request) {
	var req SubmitExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Script) == "" {
		BadRequest(w, "Script body is required")
		return
	}

	owner := requestctx.OwnerID(r.Context())

	id, err := h.manager.Submit(r.Context(), engine.SubmitRequest{
		OwnerID:  owner,
		Language: req.Language,
		Script:   req.Script,
		Params:   req.Params,
		Env:      req.Env,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"executionId": id,
	})
}

// GetExecution returns the current snapshot of an execution: status, logs,
// timestamps, and duration.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	owner := requestctx.OwnerID(r.Context())
	id := r.PathValue("id")

	exec, err := h.manager.Status(r.Context(), owner, id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	JSON(w, http.StatusOK, exec)
}

// StopExecution kills a running execution.
func (h *Handlers) StopExecution(w http.ResponseWriter, r *http.Request) {
	owner := requestctx.OwnerID(r.Context())
	id := r.PathValue("id")

	if err := h.manager.Stop(r.Context(), owner, id); err != nil {
		h.writeEngineError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListExecutions returns the owner's execution history, newest first.
// Supports status, limit, and offset query parameters.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	owner := requestctx.OwnerID(r.Context())

	status := engine.Status(r.URL.Query().Get("status"))
	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)

	execs, err := h.execStore.ListByOwner(r.Context(), owner, status, limit, offset)
	if err != nil {
		InternalError(w, "Failed to list executions")
		return
	}
	if execs == nil {
		execs = []*engine.Execution{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}

func (h *Handlers) writeEngineError(w http.ResponseWriter, err error) {
	switch engine.KindOf(err) {
	case engine.KindUnsupportedLanguage:
		BadRequest(w, err.Error())
	case engine.KindConcurrentExecution:
		Conflict(w, "CONCURRENT_EXECUTION", "Another execution is already running for this owner",
			map[string]string{"executionId": engine.ExecutionIDOf(err)})
	case engine.KindNotRunning:
		Conflict(w, "NOT_RUNNING", "Execution is not running", nil)
	case engine.KindNotFound:
		NotFound(w, "Execution not found")
	default:
		InternalError(w, "Execution failed")
	}
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
