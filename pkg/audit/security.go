// Package audit provides security audit logging for SIEM consumption.
// Events are logged in structured JSON format under the "security_audit"
// logger namespace.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/tenantsql/pkg/auth"
	"github.com/ekaya-inc/tenantsql/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventTenantUnresolved is logged when a statement is refused because no
	// tenant could be resolved for the caller.
	EventTenantUnresolved SecurityEventType = "tenant_unresolved"
	// EventStatementUnscoped is logged when a SELECT or INSERT is returned
	// without tenant scoping (excluded, unparseable, or no target table).
	EventStatementUnscoped SecurityEventType = "statement_unscoped"
	// EventStatementScoped is logged for each tenant-scoped statement (high volume).
	EventStatementScoped SecurityEventType = "statement_scoped"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	EventID     uuid.UUID         `json:"event_id"`
	Timestamp   time.Time         `json:"timestamp"`
	EventType   SecurityEventType `json:"event_type"`
	StatementID string            `json:"statement_id,omitempty"`
	TenantID    *int64            `json:"tenant_id,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	ClientIP    string            `json:"client_ip,omitempty"`
	Details     any               `json:"details,omitempty"`
	Severity    string            `json:"severity"` // info, warning, critical
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger    *zap.Logger
	logScoped bool
}

// NewSecurityAuditor creates an auditor logging under the "security_audit"
// namespace. Scoped-statement events are only emitted when logScoped is set.
func NewSecurityAuditor(logger *zap.Logger, logScoped bool) *SecurityAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityAuditor{logger: logger.Named("security_audit"), logScoped: logScoped}
}

// LogTenantUnresolved records a statement refused for lack of a tenant.
func (a *SecurityAuditor) LogTenantUnresolved(ctx context.Context, statementID string, cause error, clientIP string) {
	event := a.newEvent(ctx, EventTenantUnresolved, statementID, clientIP, "warning")
	event.Details = map[string]string{"error": logging.SanitizeError(cause)}
	a.emit(zapcore.WarnLevel, "Tenant unresolved for statement", event)
}

// LogStatementUnscoped records a statement returned without tenant scoping.
func (a *SecurityAuditor) LogStatementUnscoped(ctx context.Context, statementID, query, clientIP string) {
	event := a.newEvent(ctx, EventStatementUnscoped, statementID, clientIP, "warning")
	event.Details = map[string]string{"query": logging.SanitizeQuery(query)}
	a.emit(zapcore.WarnLevel, "Statement returned unscoped", event)
}

// LogStatementScoped records a tenant-scoped statement when enabled.
func (a *SecurityAuditor) LogStatementScoped(ctx context.Context, statementID, clientIP string) {
	if !a.logScoped {
		return
	}
	event := a.newEvent(ctx, EventStatementScoped, statementID, clientIP, "info")
	a.emit(zapcore.InfoLevel, "Statement tenant-scoped", event)
}

func (a *SecurityAuditor) newEvent(ctx context.Context, eventType SecurityEventType, statementID, clientIP, severity string) SecurityEvent {
	event := SecurityEvent{
		EventID:     uuid.New(),
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		StatementID: statementID,
		ClientIP:    clientIP,
		Severity:    severity,
	}
	if claims, ok := auth.GetClaims(ctx); ok && claims != nil {
		event.UserID = claims.Subject
		if id, ok := claims.Tenant(); ok {
			event.TenantID = &id
		}
	}
	return event
}

func (a *SecurityAuditor) emit(level zapcore.Level, msg string, event SecurityEvent) {
	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_id", event.EventID.String()),
		zap.String("event_type", string(event.EventType)),
		zap.String("statement_id", event.StatementID),
		zap.String("user_id", event.UserID),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	}
	if event.TenantID != nil {
		fields = append(fields, zap.Int64("tenant_id", *event.TenantID))
	}
	if ce := a.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}
