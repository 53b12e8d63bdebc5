package sql

import (
	"math"
	"strconv"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// AliasSuffix is appended to the tenant column to name the synthetic
// projection added to INSERT ... SELECT.
const AliasSuffix = "_ALIAS_TEMP"

func stringNode(s string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: s}}}
}

func columnRef(names ...string) *pg_query.Node {
	fields := make([]*pg_query.Node, 0, len(names))
	for _, name := range names {
		fields = append(fields, stringNode(name))
	}
	return &pg_query.Node{Node: &pg_query.Node_ColumnRef{ColumnRef: &pg_query.ColumnRef{
		Fields:   fields,
		Location: -1,
	}}}
}

// tenantLiteral builds the constant for a tenant id. Ids outside the int32
// range are carried as numeric text the way the PostgreSQL parser does.
func tenantLiteral(id int64) *pg_query.Node {
	c := &pg_query.A_Const{Location: -1}
	if id >= math.MinInt32 && id <= math.MaxInt32 {
		c.Val = &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(id)}}
	} else {
		c.Val = &pg_query.A_Const_Fval{Fval: &pg_query.Float{Fval: strconv.FormatInt(id, 10)}}
	}
	return &pg_query.Node{Node: &pg_query.Node_AConst{AConst: c}}
}

// equals builds <qualifier...>.<column> = <id>.
func equals(qualifier []string, column string, id int64) *pg_query.Node {
	names := append(append([]string(nil), qualifier...), column)
	return &pg_query.Node{Node: &pg_query.Node_AExpr{AExpr: &pg_query.A_Expr{
		Kind:     pg_query.A_Expr_Kind_AEXPR_OP,
		Name:     []*pg_query.Node{stringNode("=")},
		Lexpr:    columnRef(names...),
		Rexpr:    tenantLiteral(id),
		Location: -1,
	}}}
}

// and combines existing with preds, keeping existing as the left operand and
// each new predicate to its right in order. A nil existing is replaced.
func and(existing *pg_query.Node, preds ...*pg_query.Node) *pg_query.Node {
	out := existing
	for _, p := range preds {
		if out == nil {
			out = p
			continue
		}
		out = &pg_query.Node{Node: &pg_query.Node_BoolExpr{BoolExpr: &pg_query.BoolExpr{
			Boolop:   pg_query.BoolExprType_AND_EXPR,
			Args:     []*pg_query.Node{out, p},
			Location: -1,
		}}}
	}
	return out
}

func insertColumn(name string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{
		Name:     name,
		Location: -1,
	}}}
}

func aliasedLiteral(alias string, id int64) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{
		Name:     alias,
		Val:      tenantLiteral(id),
		Location: -1,
	}}}
}
