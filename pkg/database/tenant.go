package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ekaya-inc/tenantsql/pkg/engine"
	"github.com/ekaya-inc/tenantsql/pkg/sql"
)

// Querier is the subset of pgxpool.Pool, pgx.Conn and pgx.Tx that TenantDB
// executes against.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Exec(ctx context.Context, query string, arguments ...any) (pgconn.CommandTag, error)
}

// TenantDB runs every statement through the rewrite engine before handing it
// to the underlying Querier. If the tenant cannot be resolved the statement
// is never sent.
type TenantDB struct {
	q      Querier
	engine *engine.Engine
	logger *zap.Logger
}

// NewTenantDB wraps q. If logger is nil, a no-op logger is used.
func NewTenantDB(q Querier, eng *engine.Engine, logger *zap.Logger) *TenantDB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantDB{q: q, engine: eng, logger: logger}
}

// Query runs a tenant-scoped SELECT.
func (db *TenantDB) Query(ctx context.Context, statementID, query string, args ...any) (pgx.Rows, error) {
	out, err := db.engine.Rewrite(ctx, statementID, query, sql.KindSelect)
	if err != nil {
		return nil, err
	}
	return db.q.Query(ctx, out.SQL, args...)
}

// QueryRow runs a tenant-scoped SELECT expected to return at most one row.
// Rewrite errors are reported by Scan.
func (db *TenantDB) QueryRow(ctx context.Context, statementID, query string, args ...any) pgx.Row {
	out, err := db.engine.Rewrite(ctx, statementID, query, sql.KindSelect)
	if err != nil {
		return errRow{err: err}
	}
	return db.q.QueryRow(ctx, out.SQL, args...)
}

// Exec runs a statement of the given kind. Inserts into target tables gain
// the tenant column; kinds other than select and insert run unmodified.
func (db *TenantDB) Exec(ctx context.Context, statementID string, kind sql.Kind, query string, args ...any) (pgconn.CommandTag, error) {
	out, err := db.engine.Rewrite(ctx, statementID, query, kind)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	if out.PassThrough() && (kind == sql.KindSelect || kind == sql.KindInsert) {
		db.logger.Debug("Executing statement unscoped",
			zap.String("statement_id", statementID),
			zap.Stringer("kind", kind))
	}
	return db.q.Exec(ctx, out.SQL, args...)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
