package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
const (
	FieldJobID     = "job_id"
	FieldRequestID = "request_id"
	FieldComponent = "component"

	FieldMessage    = "message"
	FieldStatus     = "status"
	FieldPrevStatus = "prev_status"
	FieldURL        = "url"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldCode       = "code"
	FieldBytes      = "bytes"

	FieldCount     = "count"
	FieldCreated   = "created"
	FieldPage      = "page"
	FieldPages     = "pages"
	FieldPageSize  = "page_size"
	FieldActive    = "active"
	FieldQuota     = "quota"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldAddress   = "address"
	FieldSessionID = "session_id"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	sessionIDKey contextKey = "logger_session_id"
)

// WithRequestID adds an outbound request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithSessionID adds the dashboard session ID to the context for logging
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok && sessionID != "" {
		fields = append(fields, FieldSessionID, sessionID)
	}

	return fields
}

// FromContext returns base with any fields carried by ctx attached.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	reg := registry.New(logger.ComponentLogger("registry"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
