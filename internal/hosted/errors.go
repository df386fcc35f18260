package hosted

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both unknown and inactive scripts so callers cannot
	// distinguish the two.
	ErrNotFound = errors.New("hosted script not found")

	// ErrRateLimited indicates the script's per-minute invocation cap was hit.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrSlugTaken indicates slug generation could not find a free endpoint.
	ErrSlugTaken = errors.New("endpoint slug already taken")
)

// InvokeError reports a hosted invocation whose execution failed or was
// stopped. It carries the execution id so callers can fetch the full log,
// plus the output produced before failure and the parameters the run used.
type InvokeError struct {
	ExecutionID    string
	Status         string
	Output         string
	ParametersUsed map[string]string
	Cause          error
}

func (e *InvokeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("execution %s %s: %v", e.ExecutionID, e.Status, e.Cause)
	}
	return fmt.Sprintf("execution %s finished with status %s", e.ExecutionID, e.Status)
}

func (e *InvokeError) Unwrap() error {
	return e.Cause
}
