// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	actor := requestcontext.Actor(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithActor(ctx, id.Actor{ID: "reviewer-1", Role: id.RoleOperator})
package requestcontext

import (
	"context"
	"time"

	id "oddcert/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	actorKey            struct{}
	agentApplicationKey struct{}
	requestIDKey        struct{}
	requestTimeKey      struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyActor            = actorKey{}
	ContextKeyAgentApplication = agentApplicationKey{}
	ContextKeyRequestID        = requestIDKey{}
	ContextKeyRequestTime      = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Identity
// -----------------------------------------------------------------------------

// Actor retrieves the caller identity from the context.
// Returns the zero Actor if not set.
func Actor(ctx context.Context) id.Actor {
	if a, ok := ctx.Value(ContextKeyActor).(id.Actor); ok {
		return a
	}
	return id.Actor{}
}

// WithActor injects a caller identity into the context.
func WithActor(ctx context.Context, actor id.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// AgentApplicationID retrieves the application bound to the agent credential
// presented on the request.
func AgentApplicationID(ctx context.Context) (id.ApplicationID, bool) {
	appID, ok := ctx.Value(ContextKeyAgentApplication).(id.ApplicationID)
	return appID, ok
}

// WithAgentApplicationID injects the application an agent credential is bound to.
func WithAgentApplicationID(ctx context.Context, appID id.ApplicationID) context.Context {
	return context.WithValue(ctx, ContextKeyAgentApplication, appID)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Timers that need one consistent time for a whole sweep
//   - CLI commands
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
