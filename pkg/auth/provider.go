package auth

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/tenantsql/pkg/apperrors"
	"github.com/ekaya-inc/tenantsql/pkg/identity"
)

// ClaimsProvider resolves the tenant from JWT claims placed in the context by
// Middleware. It declines when the context carries no claims or the claims
// have no tenant.
type ClaimsProvider struct{}

// TenantID implements identity.Provider.
func (ClaimsProvider) TenantID(ctx context.Context) (int64, bool, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return 0, false, nil
	}
	id, ok := claims.Tenant()
	if !ok {
		return 0, false, fmt.Errorf("token for %q has no tid claim: %w", claims.Subject, apperrors.ErrNoTenant)
	}
	return id, true, nil
}

var _ identity.Provider = ClaimsProvider{}
