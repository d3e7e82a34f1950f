package shared

import "context"

// Scope identifies the tenant and acting user for a request or job run.
// The auth layer in front of the engine is responsible for producing it;
// everything below trusts the values and filters reads/writes by TenantID.
type Scope struct {
	TenantID int64
	ActorID  int64
}

type scopeContextKey struct{}

// ContextWithScope stores the tenant scope in context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the tenant scope from context.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}
