package handlers

import (
	"net/http"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/scriptd/scriptd/internal/requestctx"
)

// ExecutionStatsResponse carries resource usage of a running execution's
// process.
type ExecutionStatsResponse struct {
	ExecutionID string  `json:"executionId"`
	PID         int     `json:"pid"`
	CPUPercent  float64 `json:"cpuPercent"`
	MemoryRSS   uint64  `json:"memoryRssBytes"`
	NumThreads  int32   `json:"numThreads"`
}

// ExecutionStats reports CPU and memory usage of a running execution. Only
// available while the process is alive.
func (h *Handlers) ExecutionStats(w http.ResponseWriter, r *http.Request) {
	owner := requestctx.OwnerID(r.Context())
	id := r.PathValue("id")

	pid, ok := h.manager.Registry().PID(owner, id)
	if !ok {
		NotFound(w, "No running process for this execution")
		return
	}

	proc, err := process.NewProcessWithContext(r.Context(), int32(pid))
	if err != nil {
		NotFound(w, "Process already exited")
		return
	}

	resp := ExecutionStatsResponse{
		ExecutionID: id,
		PID:         pid,
	}

	if cpu, err := proc.CPUPercentWithContext(r.Context()); err == nil {
		resp.CPUPercent = cpu
	}
	if memInfo, err := proc.MemoryInfoWithContext(r.Context()); err == nil && memInfo != nil {
		resp.MemoryRSS = memInfo.RSS
	}
	if threads, err := proc.NumThreadsWithContext(r.Context()); err == nil {
		resp.NumThreads = threads
	}

	JSON(w, http.StatusOK, resp)
}
