// Package engine executes user-supplied scripts as managed OS processes.
package engine

import "time"

// Status represents the lifecycle state of an execution.
type Status string

const (
	// StatusPending indicates the execution has been accepted but the
	// interpreter process has not started yet.
	StatusPending Status = "pending"
	// StatusRunning indicates the interpreter process is running.
	StatusRunning Status = "running"
	// StatusCompleted indicates the process exited with code zero.
	StatusCompleted Status = "completed"
	// StatusError indicates the process failed, timed out, or could not
	// be spawned.
	StatusError Status = "error"
	// StatusStopped indicates the execution was stopped by its owner.
	StatusStopped Status = "stopped"
)

// Terminal reports whether the status is final. Terminal executions are
// never mutated again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusStopped:
		return true
	}
	return false
}

// LogLevel classifies a log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogEntry is a single line of execution output or engine commentary.
// Entries are append-only and timestamp-ordered within an execution.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// Execution is a snapshot of one script run.
type Execution struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"ownerId"`
	Language    string            `json:"language"`
	Script      string            `json:"script"`
	Params      map[string]string `json:"params,omitempty"`
	Status      Status            `json:"status"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	DurationMs  int               `json:"durationMs"`
	Logs        []LogEntry        `json:"logs"`
}

// Output joins the info-level log entries, which carry the process stdout,
// into a single string.
func (e *Execution) Output() string {
	var out []byte
	for _, entry := range e.Logs {
		if entry.Level != LogLevelInfo {
			continue
		}
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, entry.Message...)
	}
	return string(out)
}
