package sql

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Rule is the part of the tenant configuration the rewriter needs.
// *tenant.Rule satisfies it.
type Rule interface {
	IsTargetTable(name string) bool
	TenantColumn() string
}

// Matcher decides whether a FROM item is tenant scoped and which name the
// injected predicate must reference.
type Matcher struct {
	rule Rule
}

// NewMatcher creates a Matcher for rule.
func NewMatcher(rule Rule) *Matcher {
	return &Matcher{rule: rule}
}

// Qualify reports whether rv is tenant scoped and, if so, the column
// reference prefix of the injected predicate: the alias if present, else the
// (schema qualified) table name.
func (m *Matcher) Qualify(rv *pg_query.RangeVar, sc *cteScope) ([]string, bool) {
	if !m.matches(rv, sc) {
		return nil, false
	}
	return qualifier(rv), true
}

// matches tests the base table name, not the alias. A bare name that refers to
// a CTE in scope is never a target table.
func (m *Matcher) matches(rv *pg_query.RangeVar, sc *cteScope) bool {
	name := rv.GetRelname()
	schema := rv.GetSchemaname()
	if schema == "" && sc.has(name) {
		return false
	}
	if m.rule.IsTargetTable(name) {
		return true
	}
	return schema != "" && m.rule.IsTargetTable(schema+"."+name)
}

// qualifier is the column reference prefix for rv.
func qualifier(rv *pg_query.RangeVar) []string {
	if alias := rv.GetAlias().GetAliasname(); alias != "" {
		return []string{alias}
	}
	if schema := rv.GetSchemaname(); schema != "" {
		return []string{schema, rv.GetRelname()}
	}
	return []string{rv.GetRelname()}
}

// cteScope is the chain of CTE names visible at a point in the statement.
type cteScope struct {
	names  map[string]struct{}
	parent *cteScope
}

func (s *cteScope) has(name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.names[name]; ok {
			return true
		}
	}
	return false
}

func (s *cteScope) child() *cteScope {
	return &cteScope{names: make(map[string]struct{}), parent: s}
}
