package sql

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/ekaya-inc/tenantsql/pkg/apperrors"
)

// RewriteInsert adds the tenant column to an INSERT into a target table.
//
// For literal rows the column is appended to the column list and the tenant id
// to every VALUES row at the same position; literal rows need an explicit
// column list. For INSERT ... SELECT the tenant id is projected by every select
// member as <column>_ALIAS_TEMP, and the column is appended to the column list
// only when one is given. The inner select is not WHERE-scoped.
//
// It returns the number of values and projections added; zero means the
// destination is not a target table.
func (w *Rewriter) RewriteInsert(stmt *pg_query.InsertStmt, tenantID int64) (int, error) {
	rel := stmt.GetRelation()
	if rel == nil || !w.matcher.matches(rel, nil) {
		return 0, nil
	}

	src := stmt.GetSelectStmt().GetSelectStmt()
	if src == nil {
		return 0, fmt.Errorf("%w: INSERT into %s has no value source",
			apperrors.ErrUnsupportedStatement, rel.GetRelname())
	}

	if rows := src.GetValuesLists(); len(rows) > 0 {
		if len(stmt.GetCols()) == 0 {
			return 0, fmt.Errorf("%w: INSERT into %s has no column list",
				apperrors.ErrUnsupportedStatement, rel.GetRelname())
		}
		// Validate every row before touching the tree.
		for i, row := range rows {
			if row.GetList() == nil {
				return 0, fmt.Errorf("%w: VALUES row %d is not a list",
					apperrors.ErrUnsupportedStatement, i)
			}
		}
		stmt.Cols = append(stmt.Cols, insertColumn(w.column))
		for _, row := range rows {
			list := row.GetList()
			list.Items = append(list.Items, tenantLiteral(tenantID))
		}
		return len(rows), nil
	}

	added := w.project(src, w.column+AliasSuffix, tenantID)
	if added > 0 && len(stmt.GetCols()) > 0 {
		stmt.Cols = append(stmt.Cols, insertColumn(w.column))
	}
	return added, nil
}

// project appends the aliased tenant literal to every plain select member.
func (w *Rewriter) project(stmt *pg_query.SelectStmt, alias string, tenantID int64) int {
	if stmt == nil {
		return 0
	}
	if isSetOperation(stmt) {
		return w.project(stmt.GetLarg(), alias, tenantID) + w.project(stmt.GetRarg(), alias, tenantID)
	}
	stmt.TargetList = append(stmt.TargetList, aliasedLiteral(alias, tenantID))
	return 1
}
