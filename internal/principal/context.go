package principal

import (
	"context"
	"net/http"

	"github.com/safetrack/platform/internal/role"
	"github.com/safetrack/platform/internal/shared/auth"
)

type contextKey string

const resolutionContextKey contextKey = "resolution"

// Middleware resolves the request identity into a Resolution and stores
// it on the context. It never rejects the request itself; handlers decide
// what each state may reach.
func Middleware(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolution := resolver.Resolve(r.Context(), auth.GetIdentity(r.Context()))
			ctx := WithResolution(r.Context(), resolution)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithResolution returns a context carrying the given resolution. Used by
// the middleware and by tests.
func WithResolution(ctx context.Context, resolution Resolution) context.Context {
	return context.WithValue(ctx, resolutionContextKey, resolution)
}

// ResolutionFromContext extracts the resolution, defaulting to
// unauthenticated when absent.
func ResolutionFromContext(ctx context.Context) Resolution {
	resolution, ok := ctx.Value(resolutionContextKey).(Resolution)
	if !ok {
		return Resolution{State: StateUnauthenticated}
	}
	return resolution
}

// FromContext extracts the resolved principal, or nil when the caller is
// not fully resolved.
func FromContext(ctx context.Context) *Principal {
	return ResolutionFromContext(ctx).Principal
}

// PermissionsFromContext yields the caller's effective permission set.
// The bool is false when no principal is resolved; callers fail closed.
func PermissionsFromContext(ctx context.Context) (role.PermissionSet, bool) {
	p := FromContext(ctx)
	if p == nil {
		return nil, false
	}
	return p.Permissions, true
}
