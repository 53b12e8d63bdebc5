package sql

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/ekaya-inc/tenantsql/pkg/apperrors"
)

// Rewriter injects tenant predicates and columns into parsed statements.
// It holds no per-call state and is safe for concurrent use.
type Rewriter struct {
	matcher *Matcher
	column  string
}

// NewRewriter creates a Rewriter for rule.
func NewRewriter(rule Rule) *Rewriter {
	return &Rewriter{
		matcher: NewMatcher(rule),
		column:  rule.TenantColumn(),
	}
}

// Apply rewrites every top-level statement of tree whose node type matches
// kind. It returns the number of predicates, columns and projections added.
// Kinds other than select and insert are left untouched.
func (w *Rewriter) Apply(tree *Tree, kind Kind, tenantID int64) (int, error) {
	total := 0
	for _, stmt := range tree.Statements() {
		var (
			n   int
			err error
		)
		switch kind {
		case KindSelect:
			if sel := stmt.GetSelectStmt(); sel != nil {
				n, err = w.RewriteSelect(sel, tenantID)
			}
		case KindInsert:
			if ins := stmt.GetInsertStmt(); ins != nil {
				n, err = w.RewriteInsert(ins, tenantID)
			}
		}
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// RewriteSelect scopes a select body and everything nested in it.
// It returns the number of predicates injected.
func (w *Rewriter) RewriteSelect(stmt *pg_query.SelectStmt, tenantID int64) (int, error) {
	r := &selectRewrite{Rewriter: w, tenantID: tenantID}
	if err := r.body(stmt, nil); err != nil {
		return r.injected, err
	}
	return r.injected, nil
}

// selectRewrite carries the state of one RewriteSelect call.
type selectRewrite struct {
	*Rewriter
	tenantID int64
	injected int
}

func (r *selectRewrite) body(stmt *pg_query.SelectStmt, sc *cteScope) error {
	if stmt == nil {
		return nil
	}

	sc, err := r.with(stmt.GetWithClause(), sc)
	if err != nil {
		return err
	}

	if isSetOperation(stmt) {
		// Members are scoped independently.
		if err := r.body(stmt.GetLarg(), sc); err != nil {
			return err
		}
		if err := r.body(stmt.GetRarg(), sc); err != nil {
			return err
		}
		return r.clauses(stmt, sc)
	}
	return r.plain(stmt, sc)
}

// with rewrites CTE bodies and returns the scope in which the CTE names are
// visible. A non-recursive CTE only sees the CTEs declared before it.
func (r *selectRewrite) with(clause *pg_query.WithClause, sc *cteScope) (*cteScope, error) {
	if clause == nil || len(clause.GetCtes()) == 0 {
		return sc, nil
	}

	inner := sc.child()
	if clause.GetRecursive() {
		for _, node := range clause.GetCtes() {
			inner.names[node.GetCommonTableExpr().GetCtename()] = struct{}{}
		}
	}

	for _, node := range clause.GetCtes() {
		cte := node.GetCommonTableExpr()
		if cte == nil {
			continue
		}
		if sel := cte.GetCtequery().GetSelectStmt(); sel != nil {
			if err := r.body(sel, inner); err != nil {
				return nil, err
			}
		}
		inner.names[cte.GetCtename()] = struct{}{}
	}
	return inner, nil
}

func (r *selectRewrite) plain(stmt *pg_query.SelectStmt, sc *cteScope) error {
	var primary, rest []*pg_query.Node
	for i, item := range stmt.GetFromClause() {
		preds, err := r.fromItem(item, sc)
		if err != nil {
			return err
		}
		if i == 0 {
			primary = preds
		} else {
			rest = append(rest, preds...)
		}
	}

	if err := r.clauses(stmt, sc); err != nil {
		return err
	}

	preds := append(rest, primary...)
	if len(preds) > 0 {
		stmt.WhereClause = and(stmt.GetWhereClause(), preds...)
		r.injected += len(preds)
	}
	return nil
}

// fromItem scopes one FROM entry. Joins get their predicates in place; the
// returned predicates belong to the enclosing WHERE clause.
func (r *selectRewrite) fromItem(item *pg_query.Node, sc *cteScope) ([]*pg_query.Node, error) {
	switch {
	case item.GetRangeVar() != nil:
		qual, ok := r.matcher.Qualify(item.GetRangeVar(), sc)
		if !ok {
			return nil, nil
		}
		return []*pg_query.Node{equals(qual, r.column, r.tenantID)}, nil

	case item.GetRangeTableSample() != nil:
		ts := item.GetRangeTableSample()
		preds, err := r.fromItem(ts.GetRelation(), sc)
		if err != nil {
			return nil, err
		}
		if err := r.exprs(ts.GetArgs(), sc); err != nil {
			return nil, err
		}
		return preds, r.expr(ts.GetRepeatable(), sc)

	case item.GetRangeSubselect() != nil:
		// A subquery is scoped inside its own select, never by its alias.
		return nil, r.body(item.GetRangeSubselect().GetSubquery().GetSelectStmt(), sc)

	case item.GetJoinExpr() != nil:
		return r.join(item.GetJoinExpr(), sc)
	}
	// Function calls and other table sources can still hold subqueries.
	return nil, r.expr(item, sc)
}

func (r *selectRewrite) join(j *pg_query.JoinExpr, sc *cteScope) ([]*pg_query.Node, error) {
	left, err := r.fromItem(j.GetLarg(), sc)
	if err != nil {
		return nil, err
	}
	right, err := r.fromItem(j.GetRarg(), sc)
	if err != nil {
		return nil, err
	}
	if err := r.expr(j.GetQuals(), sc); err != nil {
		return nil, err
	}

	var outer []*pg_query.Node
	outer = append(outer, left...)
	if len(right) > 0 {
		if j.GetIsNatural() || len(j.GetUsingClause()) > 0 {
			// NATURAL and USING joins cannot carry an ON condition.
			outer = append(outer, right...)
		} else {
			j.Quals = and(j.GetQuals(), right...)
			r.injected += len(right)
		}
	}

	if len(outer) > 0 && j.GetAlias() != nil {
		return nil, fmt.Errorf("%w: tenant table hidden behind join alias %q",
			apperrors.ErrUnsupportedStatement, j.GetAlias().GetAliasname())
	}
	return outer, nil
}

// selectOwned are the SelectStmt fields that body and plain scope themselves.
var selectOwned = map[protoreflect.Name]bool{
	"with_clause": true,
	"from_clause": true,
	"larg":        true,
	"rarg":        true,
}

// clauses rewrites subqueries in every clause of stmt other than FROM, WITH and
// set operation members: projection, WHERE, GROUP BY, HAVING, WINDOW, ORDER BY,
// LIMIT, DISTINCT ON and VALUES.
func (r *selectRewrite) clauses(stmt *pg_query.SelectStmt, sc *cteScope) error {
	return r.fields(stmt.ProtoReflect(), sc, selectOwned)
}

// expr rewrites subqueries nested anywhere in an expression.
func (r *selectRewrite) expr(node *pg_query.Node, sc *cteScope) error {
	if node == nil {
		return nil
	}
	return r.walk(node.ProtoReflect(), sc)
}

// walk visits every message reachable from m. Each SubLink and nested select
// body is rewritten in its own scope; nothing below them is visited again here.
func (r *selectRewrite) walk(m protoreflect.Message, sc *cteScope) error {
	switch n := m.Interface().(type) {
	case *pg_query.SubLink:
		if err := r.expr(n.GetTestexpr(), sc); err != nil {
			return err
		}
		return r.body(n.GetSubselect().GetSelectStmt(), sc)
	case *pg_query.SelectStmt:
		return r.body(n, sc)
	}
	return r.fields(m, sc, nil)
}

func (r *selectRewrite) fields(m protoreflect.Message, sc *cteScope, skip map[protoreflect.Name]bool) error {
	var err error
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if skip[fd.Name()] || fd.Kind() != protoreflect.MessageKind || fd.IsMap() {
			return true
		}
		if fd.IsList() {
			list := v.List()
			for i := 0; i < list.Len() && err == nil; i++ {
				err = r.walk(list.Get(i).Message(), sc)
			}
		} else {
			err = r.walk(v.Message(), sc)
		}
		return err == nil
	})
	return err
}

func (r *selectRewrite) exprs(nodes []*pg_query.Node, sc *cteScope) error {
	for _, n := range nodes {
		if err := r.expr(n, sc); err != nil {
			return err
		}
	}
	return nil
}

func isSetOperation(stmt *pg_query.SelectStmt) bool {
	switch stmt.GetOp() {
	case pg_query.SetOperation_SETOP_UNION,
		pg_query.SetOperation_SETOP_INTERSECT,
		pg_query.SetOperation_SETOP_EXCEPT:
		return true
	}
	return false
}
