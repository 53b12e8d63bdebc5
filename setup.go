package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/tenantsql/pkg/auth"
	"github.com/ekaya-inc/tenantsql/pkg/config"
	"github.com/ekaya-inc/tenantsql/pkg/database"
	"github.com/ekaya-inc/tenantsql/pkg/engine"
	"github.com/ekaya-inc/tenantsql/pkg/filter"
	"github.com/ekaya-inc/tenantsql/pkg/identity"
	"github.com/ekaya-inc/tenantsql/pkg/introspect/mssql"
	"github.com/ekaya-inc/tenantsql/pkg/introspect/postgres"
	"github.com/ekaya-inc/tenantsql/pkg/retry"
	"github.com/ekaya-inc/tenantsql/pkg/tenant"
)

// buildEngine wires the rule, exclusion registry and identity chain described
// by cfg. AUTO mode connects to the configured database for discovery and
// disconnects before returning.
func buildEngine(ctx context.Context, cfg *config.Config, regs []identity.Registration, logger *zap.Logger) (*engine.Engine, error) {
	rule, err := cfg.NewRule()
	if err != nil {
		return nil, err
	}

	if rule.Mode() == tenant.ScanModeAuto {
		in, closeFn, err := newIntrospector(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		err = tenant.Populate(ctx, rule, in, logger)
		closeFn()
		if err != nil {
			return nil, err
		}
	}

	builder := filter.NewBuilder(cfg.Tenant.FilterSuffix)
	if cfg.Tenant.ExclusionsFile != "" {
		if err := builder.LoadFile(cfg.Tenant.ExclusionsFile); err != nil {
			return nil, err
		}
	}

	chain, err := identity.NewChain(regs, logger)
	if err != nil {
		return nil, err
	}

	return engine.New(rule, builder.Build(), chain, logger)
}

func newIntrospector(ctx context.Context, cfg *config.Config, logger *zap.Logger) (tenant.Introspector, func(), error) {
	connStr := cfg.Database.ConnectionString()

	switch cfg.Database.Type {
	case "mssql":
		in, err := retry.Do(ctx, nil, logger, "connect mssql", func(ctx context.Context) (*mssql.Introspector, error) {
			return mssql.Open(ctx, connStr, logger)
		})
		if err != nil {
			return nil, nil, err
		}
		return in, func() { _ = in.Close() }, nil
	default:
		db, err := retry.Do(ctx, nil, logger, "connect postgres", func(ctx context.Context) (*database.DB, error) {
			return database.NewConnection(ctx, &database.Config{
				URL:            connStr,
				MaxConnections: cfg.Database.MaxConnections,
			}, logger)
		})
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(db.Pool, logger), db.Close, nil
	}
}

// identityFromToken validates token and returns a context carrying its claims
// for auth.ClaimsProvider.
func identityFromToken(ctx context.Context, cfg *config.Config, token string) (context.Context, error) {
	validator, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		return nil, err
	}

	claims, err := validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return auth.WithClaims(ctx, claims, token), nil
}

// defaultProviders is the chain used by every command: an explicit tenant
// flag first, then JWT claims, then an id already on the context.
func defaultProviders(tenantID *int64) []identity.Registration {
	var regs []identity.Registration
	if tenantID != nil {
		regs = append(regs, identity.Registration{
			Name:     "flag",
			Provider: identity.StaticProvider{ID: *tenantID},
			Priority: identity.Priority(0),
		})
	}
	return append(regs,
		identity.Registration{Name: "jwt", Provider: auth.ClaimsProvider{}, Priority: identity.Priority(10)},
		identity.Registration{Name: "context", Provider: identity.ContextProvider{}},
	)
}
