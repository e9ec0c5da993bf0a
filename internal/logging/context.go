package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}

	if docID := DocumentIDFromContext(ctx); docID != "" {
		fields = append(fields, zap.String("document_id", docID))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	return fields
}

// Context key types
type runCtxKey struct{}
type documentCtxKey struct{}
type requestCtxKey struct{}

const maxIDLen = 128

// idPattern allows alphanumeric first characters followed by
// alphanumerics, dots, underscores and hyphens. Matches the id rules
// the snapshot store enforces, so anything persistable is loggable.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// validateID validates a run, document or request ID before it becomes
// a log field.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, dot, hyphen, underscore)", name)
	}
	return nil
}

// RunIDFromContext extracts the pipeline run ID from context.
func RunIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(runCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRunID adds a pipeline run ID to context.
// Panics if runID is empty or contains invalid characters.
func WithRunID(ctx context.Context, runID string) context.Context {
	if err := validateID(runID, "runID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// DocumentIDFromContext extracts the document ID from context.
func DocumentIDFromContext(ctx context.Context) string {
	if d, ok := ctx.Value(documentCtxKey{}).(string); ok {
		return d
	}
	return ""
}

// WithDocumentID adds a document ID to context.
// Panics if documentID is empty or contains invalid characters.
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	if err := validateID(documentID, "documentID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, documentCtxKey{}, documentID)
}

// RequestIDFromContext extracts the HTTP request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds an HTTP request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
