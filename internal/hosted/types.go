// Package hosted manages persistent scripts exposed as named endpoints and
// optionally fired on a schedule.
package hosted

import "time"

// Script is a saved script registered as an invocable endpoint.
type Script struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"ownerId"`
	Name           string            `json:"name"`
	Language       string            `json:"language"`
	Script         string            `json:"script"`
	EndpointSlug   string            `json:"endpointSlug"`
	Params         map[string]string `json:"params,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	IsActive       bool              `json:"isActive"`
	ExecutionCount int               `json:"executionCount"`
	LastExecutedAt *time.Time        `json:"lastExecutedAt,omitempty"`
	Schedule       ScheduleConfig    `json:"schedule"`
	RateLimit      RateLimitConfig   `json:"rateLimit"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// ScheduleConfig describes automatic invocation of a hosted script. The
// expression is a five-field cron spec or a descriptor such as "@hourly" or
// "@every 5m".
type ScheduleConfig struct {
	Enabled    bool   `json:"enabled"`
	Expression string `json:"expression,omitempty"`
}

// RateLimitConfig caps manual invocations of a hosted script. Scheduled
// invocations are not counted against the limit.
type RateLimitConfig struct {
	Enabled           bool `json:"enabled"`
	RequestsPerMinute int  `json:"requestsPerMinute,omitempty"`
}

// InvokeResult is the outcome of a synchronous hosted-script invocation.
type InvokeResult struct {
	ExecutionID    string            `json:"executionId"`
	Output         string            `json:"output"`
	ParametersUsed map[string]string `json:"parametersUsed,omitempty"`
}
