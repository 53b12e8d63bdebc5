// Package mssql discovers tenant tables in a SQL Server catalog.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/tenantsql/pkg/logging"
	"github.com/ekaya-inc/tenantsql/pkg/tenant"
)

// DefaultSchema is the schema whose tables are reported unqualified.
const DefaultSchema = "dbo"

// Introspector implements tenant.Introspector for SQL Server.
type Introspector struct {
	db     *sql.DB
	owned  bool
	logger *zap.Logger
}

// New wraps an existing connection. If logger is nil, a no-op logger is used.
func New(db *sql.DB, logger *zap.Logger) *Introspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Introspector{db: db, logger: logger}
}

// Open connects with a sqlserver:// URL and verifies the connection.
// The returned Introspector owns the connection; call Close when done.
func Open(ctx context.Context, connStr string, logger *zap.Logger) (*Introspector, error) {
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlserver %s: %s", logging.SanitizeConnectionString(connStr), logging.SanitizeError(err))
	}

	in := New(db, logger)
	in.owned = true
	return in, nil
}

// TablesWithColumn returns every user table or view with a column named
// column. Tables in DefaultSchema are returned bare, others as schema.table.
func (i *Introspector) TablesWithColumn(ctx context.Context, column string) ([]string, error) {
	query := `
	SELECT c.TABLE_SCHEMA, c.TABLE_NAME
	FROM INFORMATION_SCHEMA.COLUMNS c
	INNER JOIN INFORMATION_SCHEMA.TABLES t
	    ON t.TABLE_SCHEMA = c.TABLE_SCHEMA
	   AND t.TABLE_NAME = c.TABLE_NAME
	WHERE c.COLUMN_NAME = @column
	  AND t.TABLE_TYPE IN ('BASE TABLE', 'VIEW')
	  AND c.TABLE_SCHEMA NOT IN ('sys', 'INFORMATION_SCHEMA')
	ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME
	`

	rows, err := i.db.QueryContext(ctx, query, sql.Named("column", column))
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

	i.logger.Debug("Scanned SQL Server catalog",
		zap.String("column", column),
		zap.Int("tables", len(tables)))
	return tables, nil
}

// Close releases the connection if Open created it.
func (i *Introspector) Close() error {
	if !i.owned {
		return nil
	}
	return i.db.Close()
}

func qualifiedName(schemaName, tableName string) string {
	if schemaName == "" || schemaName == DefaultSchema {
		return tableName
	}
	return schemaName + "." + tableName
}

var _ tenant.Introspector = (*Introspector)(nil)
