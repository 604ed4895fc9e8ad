// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services read them. Keeping this package free
// of net/http lets domain packages import it without pulling in transport
// code.
//
// Usage in services (read values):
//
//	actor := requestcontext.Actor(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithActor(ctx, requestcontext.ActorInfo{ID: analystID, Role: requestcontext.RoleAnalyst})
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "limsd/pkg/domain"
)

// Role is the acting user's role as asserted by the identity collaborator.
// The core trusts it; it never authenticates.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleAnalyst      Role = "ANALYST"
	RoleReviewer     Role = "REVIEWER"
	RoleSampler      Role = "SAMPLER"
	RoleInvestigator Role = "INVESTIGATOR"
)

// ActorInfo identifies who is performing the current mutating call.
type ActorInfo struct {
	ID   id.UserID
	Role Role
}

type (
	actorKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithActor attaches the verified actor identity to the context.
func WithActor(ctx context.Context, actor ActorInfo) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor retrieves the acting user. The zero value means no identity was set,
// which services treat as unauthorized for mutating calls.
func Actor(ctx context.Context) ActorInfo {
	if a, ok := ctx.Value(actorKey{}).(ActorInfo); ok {
		return a
	}
	return ActorInfo{}
}

// WithRequestID attaches the correlation id set by middleware.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID retrieves the correlation id, or "" when absent.
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

// WithTime pins the request time. Tests use this to make timestamps
// deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
