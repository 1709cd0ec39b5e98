package shared

import "context"

// Role enumerates what a principal may do inside a tenant.
type Role string

const (
	RoleAccountant Role = "ACCOUNTANT"
	RoleManager    Role = "MANAGER"
	RoleWorker     Role = "WORKER"
)

// Principal identifies the acting tenant and role. It is resolved once by
// the API-key middleware and passed explicitly through the call chain;
// engines never read authorization state from anywhere else.
type Principal struct {
	TenantID int64
	ActorID  int64
	Role     Role
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. The zero value
// (TenantID 0) means unauthenticated.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalContextKey{}).(Principal)
	return p
}
