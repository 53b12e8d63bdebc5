// Package sql parses SQL into a PostgreSQL statement tree and rewrites it so
// that every access to a tenant table is constrained to a single tenant.
package sql

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/ekaya-inc/tenantsql/pkg/apperrors"
)

// Kind is the statement class the host layer is executing.
type Kind int

const (
	KindOther Kind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "other"
	}
}

// ParseKind maps a lower or upper case name to a Kind. Unknown names are KindOther.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "select":
		return KindSelect
	case "insert":
		return KindInsert
	case "update":
		return KindUpdate
	case "delete":
		return KindDelete
	default:
		return KindOther
	}
}

// Tree is a parsed SQL text. It is owned by a single rewrite call and is
// mutated in place by the Rewriter.
type Tree struct {
	result *pg_query.ParseResult
}

// Parse builds a statement tree. Errors wrap apperrors.ErrParse.
func Parse(query string) (*Tree, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty statement", apperrors.ErrParse)
	}

	result, err := pg_query.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrParse, err)
	}
	if len(result.GetStmts()) == 0 {
		return nil, fmt.Errorf("%w: no statements found", apperrors.ErrParse)
	}

	return &Tree{result: result}, nil
}

// Statements returns the top-level statement nodes in source order.
func (t *Tree) Statements() []*pg_query.Node {
	stmts := make([]*pg_query.Node, 0, len(t.result.GetStmts()))
	for _, raw := range t.result.GetStmts() {
		stmts = append(stmts, raw.GetStmt())
	}
	return stmts
}

// SQL serializes the (possibly rewritten) tree back to SQL text.
func (t *Tree) SQL() (string, error) {
	out, err := pg_query.Deparse(t.result)
	if err != nil {
		return "", fmt.Errorf("deparse statement: %w", err)
	}
	return out, nil
}
