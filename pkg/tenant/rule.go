// Package tenant holds the immutable tenant isolation rule: which tables are
// scoped, and which column carries the tenant id.
package tenant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/tenantsql/pkg/apperrors"
)

// ScanMode selects how target tables are determined.
type ScanMode string

const (
	// ScanModeAuto discovers target tables by looking for the tenant columns in the schema.
	ScanModeAuto ScanMode = "AUTO"
	// ScanModeAssign uses the configured table list verbatim.
	ScanModeAssign ScanMode = "ASSIGN"
)

// ParseScanMode accepts the mode name in any case. Empty means AUTO.
func ParseScanMode(s string) (ScanMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(ScanModeAuto):
		return ScanModeAuto, nil
	case string(ScanModeAssign):
		return ScanModeAssign, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidScanMode, s)
	}
}

// Introspector reports which tables contain a given column.
// Implementations live in pkg/introspect.
type Introspector interface {
	TablesWithColumn(ctx context.Context, column string) ([]string, error)
}

// Rule is the tenant isolation configuration. It is built once at startup
// and is safe for concurrent reads afterwards.
type Rule struct {
	mode          ScanMode
	targetTables  map[string]struct{}
	targetColumns []string
	filterSuffix  string
}

// NewRule validates the configuration and returns a Rule. Table names in
// tables are used as-is; in AUTO mode they are a seed for Populate.
func NewRule(mode ScanMode, tables, columns []string, filterSuffix string) (*Rule, error) {
	cols := compact(columns)
	if len(cols) == 0 {
		return nil, apperrors.ErrNoTargetColumns
	}
	if mode != ScanModeAuto && mode != ScanModeAssign {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidScanMode, mode)
	}

	r := &Rule{
		mode:          mode,
		targetTables:  make(map[string]struct{}, len(tables)),
		targetColumns: cols,
		filterSuffix:  filterSuffix,
	}
	for _, t := range compact(tables) {
		r.targetTables[t] = struct{}{}
	}
	return r, nil
}

// Populate adds every table that carries one of the target columns when the
// rule is in AUTO mode. In ASSIGN mode it does nothing. It must run before the
// rule is shared with request-serving code.
func Populate(ctx context.Context, r *Rule, in Introspector, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if r.mode != ScanModeAuto {
		return nil
	}

	for _, col := range r.targetColumns {
		tables, err := in.TablesWithColumn(ctx, col)
		if err != nil {
			return fmt.Errorf("discover tables with column %s: %w", col, err)
		}
		for _, t := range tables {
			r.targetTables[t] = struct{}{}
		}
		logger.Info("Discovered tenant tables",
			zap.String("column", col),
			zap.Int("count", len(tables)))
	}
	return nil
}

// Mode returns the scan mode.
func (r *Rule) Mode() ScanMode { return r.mode }

// TenantColumn is the column used for predicate and value injection.
func (r *Rule) TenantColumn() string { return r.targetColumns[0] }

// TargetColumns returns a copy of the configured tenant columns.
func (r *Rule) TargetColumns() []string {
	return append([]string(nil), r.targetColumns...)
}

// FilterSuffix is stripped from statement ids before exclusion lookup.
func (r *Rule) FilterSuffix() string { return r.filterSuffix }

// IsTargetTable reports exact membership of name in the target table set.
func (r *Rule) IsTargetTable(name string) bool {
	_, ok := r.targetTables[name]
	return ok
}

// TargetTables returns the target tables in sorted order.
func (r *Rule) TargetTables() []string {
	out := make([]string, 0, len(r.targetTables))
	for t := range r.targetTables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
