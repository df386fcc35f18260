// Package requestctx carries request-scoped values through handler chains.
package requestctx

import (
	"context"
	"time"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	requestTimeKey contextKey = "request_time"
	ownerIDKey     contextKey = "owner_id"
)

// AnonymousOwner is the identity assigned to requests without an owner
// header.
const AnonymousOwner = "anonymous"

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func WithRequestTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}

func WithOwnerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ownerIDKey, id)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func RequestTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// OwnerID returns the request's owner identity, falling back to the
// anonymous owner when none was set.
func OwnerID(ctx context.Context) string {
	if id, ok := ctx.Value(ownerIDKey).(string); ok && id != "" {
		return id
	}
	return AnonymousOwner
}
