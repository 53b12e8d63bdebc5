package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/tenantsql/pkg/apperrors"
	"github.com/ekaya-inc/tenantsql/pkg/audit"
	"github.com/ekaya-inc/tenantsql/pkg/engine"
	"github.com/ekaya-inc/tenantsql/pkg/logging"
	"github.com/ekaya-inc/tenantsql/pkg/sql"
)

// RewriteRequest is the body of POST /api/rewrite.
type RewriteRequest struct {
	StatementID string `json:"statement_id"`
	Kind        string `json:"kind"` // select or insert, default select
	SQL         string `json:"sql"`
}

// RewriteResponse carries the SQL to execute.
type RewriteResponse struct {
	SQL       string `json:"sql"`
	Rewritten bool   `json:"rewritten"`
}

// RewriteHandler exposes the rewrite engine over HTTP. The tenant comes from
// the caller's token, so routes must sit behind auth.Middleware.
type RewriteHandler struct {
	engine  *engine.Engine
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewRewriteHandler creates a RewriteHandler. A nil auditor disables
// security audit events.
func NewRewriteHandler(eng *engine.Engine, auditor *audit.SecurityAuditor, logger *zap.Logger) *RewriteHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(nil, false)
	}
	return &RewriteHandler{engine: eng, auditor: auditor, logger: logger}
}

// RegisterRoutes registers POST /api/rewrite wrapped by requireTenant.
func (h *RewriteHandler) RegisterRoutes(mux *http.ServeMux, requireTenant func(http.Handler) http.Handler) {
	mux.Handle("POST /api/rewrite", requireTenant(http.HandlerFunc(h.Rewrite)))
}

// Rewrite handles POST /api/rewrite.
func (h *RewriteHandler) Rewrite(w http.ResponseWriter, r *http.Request) {
	var req RewriteRequest
	if err := decodeJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "sql is required")
		return
	}

	kind := sql.KindSelect
	if req.Kind != "" {
		kind = sql.ParseKind(req.Kind)
		if kind != sql.KindSelect && kind != sql.KindInsert {
			_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "kind must be select or insert")
			return
		}
	}

	out, err := h.engine.Rewrite(r.Context(), req.StatementID, req.SQL, kind)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoIdentity) || errors.Is(err, apperrors.ErrNoTenant) {
			h.auditor.LogTenantUnresolved(r.Context(), req.StatementID, err, r.RemoteAddr)
			_ = ErrorResponse(w, http.StatusForbidden, "tenant_unresolved", "no tenant could be resolved for this request")
			return
		}
		h.logger.Error("Rewrite failed",
			zap.String("statement_id", req.StatementID),
			zap.String("error", logging.SanitizeError(err)))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "rewrite failed")
		return
	}

	if out.Rewritten {
		h.auditor.LogStatementScoped(r.Context(), req.StatementID, r.RemoteAddr)
	} else {
		h.auditor.LogStatementUnscoped(r.Context(), req.StatementID, req.SQL, r.RemoteAddr)
	}

	if err := WriteJSON(w, http.StatusOK, RewriteResponse{SQL: out.SQL, Rewritten: out.Rewritten}); err != nil {
		h.logger.Error("Failed to encode rewrite response", zap.Error(err))
	}
}
