// Package engine orchestrates tenant scoping for a single statement: the
// exclusion check, identity resolution, parsing, rewriting and serialization.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/tenantsql/pkg/apperrors"
	"github.com/ekaya-inc/tenantsql/pkg/filter"
	"github.com/ekaya-inc/tenantsql/pkg/identity"
	"github.com/ekaya-inc/tenantsql/pkg/logging"
	"github.com/ekaya-inc/tenantsql/pkg/sql"
	"github.com/ekaya-inc/tenantsql/pkg/tenant"
)

// Outcome is the result of a rewrite call. When Rewritten is false, SQL is
// the caller's original text, unmodified.
type Outcome struct {
	SQL       string
	Rewritten bool
}

// PassThrough reports whether the original statement was returned.
func (o Outcome) PassThrough() bool { return !o.Rewritten }

// Engine is built once at startup and is safe for concurrent use.
type Engine struct {
	rule     *tenant.Rule
	rewriter *sql.Rewriter
	registry *filter.Registry
	chain    *identity.Chain
	logger   *zap.Logger
}

// New validates the startup configuration and assembles an Engine.
// A nil registry excludes nothing.
func New(rule *tenant.Rule, registry *filter.Registry, chain *identity.Chain, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rule == nil {
		return nil, apperrors.ErrNoTargetColumns
	}
	if chain == nil {
		return nil, apperrors.ErrNoProviders
	}
	if registry == nil {
		registry = &filter.Registry{}
	}

	tables := rule.TargetTables()
	if len(tables) == 0 {
		logger.Warn("No tenant target tables configured; statements will not be scoped",
			zap.String("scan_mode", string(rule.Mode())))
	}
	logger.Info("Tenant rewrite engine ready",
		zap.String("column", rule.TenantColumn()),
		zap.Strings("tables", tables),
		zap.Strings("providers", chain.Names()),
		zap.Int("exclusions", registry.Len()))

	return &Engine{
		rule:     rule,
		rewriter: sql.NewRewriter(rule),
		registry: registry,
		chain:    chain,
		logger:   logger,
	}, nil
}

// Rule returns the tenant rule the engine scopes against.
func (e *Engine) Rule() *tenant.Rule { return e.rule }

// Rewrite scopes rawSQL to the tenant resolved from ctx.
//
// Excluded statements and kinds other than select and insert pass through
// before identity is resolved. Identity failures are returned as errors and
// the statement must not be executed. SQL the parser rejects, or whose shape
// cannot be scoped, passes through unmodified and is logged at warn level.
func (e *Engine) Rewrite(ctx context.Context, statementID, rawSQL string, kind sql.Kind) (Outcome, error) {
	original := Outcome{SQL: rawSQL}

	if e.registry.IsExcluded(statementID) {
		e.logger.Debug("Statement excluded from tenant rewrite",
			zap.String("statement_id", statementID))
		return original, nil
	}
	if kind != sql.KindSelect && kind != sql.KindInsert {
		return original, nil
	}

	tenantID, err := e.chain.Resolve(ctx)
	if err != nil {
		e.logger.Error("Tenant identity resolution failed",
			zap.String("statement_id", statementID),
			zap.String("error", logging.SanitizeError(err)))
		return Outcome{}, fmt.Errorf("resolve tenant for %s: %w", statementID, err)
	}

	tree, err := sql.Parse(rawSQL)
	if err != nil {
		e.passThrough(statementID, rawSQL, err)
		return original, nil
	}

	changes, err := e.rewriter.Apply(tree, kind, tenantID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnsupportedStatement) {
			e.passThrough(statementID, rawSQL, err)
			return original, nil
		}
		return Outcome{}, fmt.Errorf("rewrite %s: %w", statementID, err)
	}
	if changes == 0 {
		return original, nil
	}

	out, err := tree.SQL()
	if err != nil {
		return Outcome{}, fmt.Errorf("rewrite %s: %w", statementID, err)
	}

	e.logger.Debug("Statement tenant-scoped",
		zap.String("statement_id", statementID),
		zap.Stringer("kind", kind),
		zap.Int64("tenant_id", tenantID),
		zap.Int("changes", changes),
		zap.String("query", logging.SanitizeQuery(out)))

	return Outcome{SQL: out, Rewritten: true}, nil
}

func (e *Engine) passThrough(statementID, rawSQL string, cause error) {
	e.logger.Warn("Statement passed through without tenant scoping",
		zap.String("statement_id", statementID),
		zap.String("query", logging.SanitizeQuery(rawSQL)),
		zap.Error(cause))
}
