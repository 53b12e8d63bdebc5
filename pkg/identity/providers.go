package identity

import (
	"context"
)

type contextKey string

const tenantKey contextKey = "tenantID"

// WithTenant returns a context carrying tenant id for ContextProvider.
func WithTenant(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, tenantKey, id)
}

// FromContext returns the tenant id stored by WithTenant.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(tenantKey).(int64)
	return id, ok
}

// ContextProvider reads the tenant id placed in the context by WithTenant.
type ContextProvider struct{}

// TenantID implements Provider.
func (ContextProvider) TenantID(ctx context.Context) (int64, bool, error) {
	id, ok := FromContext(ctx)
	return id, ok, nil
}

// StaticProvider always returns the same tenant id. Useful for batch jobs
// and the CLI, where there is no request context.
type StaticProvider struct {
	ID int64
}

// TenantID implements Provider.
func (p StaticProvider) TenantID(context.Context) (int64, bool, error) {
	return p.ID, true, nil
}
