// Package identity resolves the tenant id for the current call from an
// ordered chain of providers. The first provider that produces an id wins.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/tenantsql/pkg/apperrors"
)

// Provider attempts to produce a tenant id for ctx.
//
// A provider declines by returning ok=false with a nil error, or an error
// matching apperrors.ErrNoTenant. Any other error is treated as a broken
// provider and stops the chain.
type Provider interface {
	TenantID(ctx context.Context) (id int64, ok bool, err error)
}

// FuncProvider adapts a function to Provider.
type FuncProvider func(ctx context.Context) (int64, bool, error)

// TenantID calls f.
func (f FuncProvider) TenantID(ctx context.Context) (int64, bool, error) {
	return f(ctx)
}

// Registration is a provider with its declared priority. Lower priorities are
// tried first; a nil Priority sorts after every declared one.
type Registration struct {
	Name     string
	Provider Provider
	Priority *int
}

// Priority is a helper for Registration literals.
func Priority(p int) *int { return &p }

// Chain is an ordered, immutable list of providers.
type Chain struct {
	entries []Registration
	logger  *zap.Logger
}

// NewChain orders regs by priority. Equal priorities, and providers without
// one, keep their registration order. An empty chain is a configuration error.
func NewChain(regs []Registration, logger *zap.Logger) (*Chain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	entries := make([]Registration, 0, len(regs))
	for i, reg := range regs {
		if reg.Provider == nil {
			return nil, fmt.Errorf("identity provider %d (%s) is nil", i, reg.Name)
		}
		if reg.Name == "" {
			reg.Name = fmt.Sprintf("provider-%d", i)
		}
		entries = append(entries, reg)
	}
	if len(entries) == 0 {
		return nil, apperrors.ErrNoProviders
	}

	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].Priority, entries[j].Priority
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return *pi < *pj
		}
	})

	return &Chain{entries: entries, logger: logger}, nil
}

// Names returns provider names in resolution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Resolve tries each provider in order and returns the first id produced.
// It returns apperrors.ErrNoIdentity if every provider declines. A provider
// failure is returned immediately, wrapped with the provider name.
func (c *Chain) Resolve(ctx context.Context) (int64, error) {
	for _, e := range c.entries {
		id, ok, err := e.Provider.TenantID(ctx)
		if err != nil {
			if errors.Is(err, apperrors.ErrNoTenant) {
				continue
			}
			return 0, fmt.Errorf("identity provider %s: %w", e.Name, err)
		}
		if ok {
			c.logger.Debug("Resolved tenant identity",
				zap.String("provider", e.Name),
				zap.Int64("tenant_id", id))
			return id, nil
		}
	}
	return 0, apperrors.ErrNoIdentity
}
