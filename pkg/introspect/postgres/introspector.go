// Package postgres discovers tenant tables in a PostgreSQL catalog.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/tenantsql/pkg/tenant"
)

// DefaultSchema is the schema whose tables are reported unqualified.
const DefaultSchema = "public"

// Introspector reports tables and views carrying a column, using
// information_schema so it works without superuser rights.
type Introspector struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates an Introspector over pool. If logger is nil, a no-op logger is used.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Introspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Introspector{pool: pool, logger: logger}
}

// TablesWithColumn returns every user table or view with a column named
// column, compared case-insensitively. Tables in DefaultSchema are returned
// bare, others as schema.table.
func (i *Introspector) TablesWithColumn(ctx context.Context, column string) ([]string, error) {
	query := `
		SELECT c.table_schema, c.table_name
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema
		 AND t.table_name = c.table_name
		WHERE lower(c.column_name) = lower($1)
		  AND t.table_type IN ('BASE TABLE', 'VIEW')
		  AND c.table_schema NOT IN ('pg_catalog', 'information_schema')
		  AND c.table_schema NOT LIKE 'pg_toast%'
		ORDER BY c.table_schema, c.table_name`

	rows, err := i.pool.Query(ctx, query, column)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schemaName, tableName string
		if err := rows.Scan(&schemaName, &tableName); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		tables = append(tables, qualifiedName(schemaName, tableName))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}

	i.logger.Debug("Scanned PostgreSQL catalog",
		zap.String("column", column),
		zap.Int("tables", len(tables)))
	return tables, nil
}

func qualifiedName(schemaName, tableName string) string {
	if schemaName == "" || schemaName == DefaultSchema {
		return tableName
	}
	return schemaName + "." + tableName
}

var _ tenant.Introspector = (*Introspector)(nil)
