package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey struct{}

// IntoContext returns ctx carrying l.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext extracts the request logger, falling back to the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// Middleware stores a request-scoped logger in the request context. The
// logger carries the request id returned by requestID, when non-empty.
func Middleware(base *slog.Logger, requestID func(context.Context) string) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := base.With(FieldComponent, ComponentHTTP)
			if requestID != nil {
				if id := requestID(r.Context()); id != "" {
					l = l.With(FieldRequestID, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(IntoContext(r.Context(), l)))
		})
	}
}

// LogReportGenerated records a completed report run. l is expected to carry
// its component already.
func LogReportGenerated(ctx context.Context, l *slog.Logger, userID, reportID, period string, categories int) {
	fields := NewFields().
		WithReport(userID, reportID, period).
		WithOperation(OpGenerate)
	fields[FieldCount] = categories

	l.InfoContext(ctx, "Report generated", fields.ToSlice()...)
}

// LogError logs an error with structured context.
func LogError(ctx context.Context, l *slog.Logger, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	all := fields.
		WithError(err).
		WithOperation(operation)

	l.ErrorContext(ctx, msg, all.ToSlice()...)
}
