package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w in json or text format.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Initialize sets up the global logger on stdout.
func Initialize(level, format string) {
	SetDefault(New(os.Stdout, level, format))
}

// SetDefault replaces the global logger.
func SetDefault(l *slog.Logger) {
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// Get returns the global logger, initializing a text/info logger on first use.
func Get() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		Initialize("info", "text")
		return Get()
	}
	return l
}

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).DebugContext(ctx, msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).ErrorContext(ctx, msg, args...)
}

type ctxKey struct{}

// NewContext stores l on ctx so downstream calls inherit its attributes.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored on ctx or the global logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return Get()
}

func WithService(serviceName string) *slog.Logger {
	return Get().With("service", serviceName)
}

func WithBooking(bookingID string) *slog.Logger {
	return Get().With("booking_id", bookingID)
}

func WithTool(toolID int32) *slog.Logger {
	return Get().With("tool_id", toolID)
}

func track(level slog.Level, msg string, head []any, args []any) {
	Get().Log(context.Background(), level, msg, append(head, args...)...)
}

// EnterMethod logs method entry at debug level.
func EnterMethod(methodName string, args ...any) {
	track(slog.LevelDebug, "→ Method entered", []any{"method", methodName, "event", "enter"}, args)
}

// ExitMethod logs a successful method exit at debug level.
func ExitMethod(methodName string, args ...any) {
	track(slog.LevelDebug, "← Method exited", []any{"method", methodName, "event", "exit"}, args)
}

// ExitMethodWithError logs a failed method exit at error level.
func ExitMethodWithError(methodName string, err error, args ...any) {
	track(slog.LevelError, "← Method exited with error", []any{"method", methodName, "event", "exit", "error", err}, args)
}

// DatabaseCall logs an outgoing persistence call.
func DatabaseCall(operation, table string, args ...any) {
	track(slog.LevelDebug, "→ Database call", []any{"operation", operation, "table", table}, args)
}

// DatabaseResult logs the outcome of a persistence call.
func DatabaseResult(operation string, rowsAffected int64, err error, args ...any) {
	head := []any{"operation", operation, "rows_affected", rowsAffected}
	if err != nil {
		track(slog.LevelError, "← Database call failed", append(head, "error", err), args)
		return
	}
	track(slog.LevelDebug, "← Database call succeeded", head, args)
}

// ExternalServiceCall logs an outgoing call to a third party (gateway, mail, push).
func ExternalServiceCall(service, operation string, args ...any) {
	track(slog.LevelDebug, "→ External service call", []any{"service", service, "operation", operation}, args)
}

// ExternalServiceResult logs the outcome of a third-party call.
func ExternalServiceResult(service, operation string, err error, args ...any) {
	head := []any{"service", service, "operation", operation}
	if err != nil {
		track(slog.LevelError, "← External service call failed", append(head, "error", err), args)
		return
	}
	track(slog.LevelDebug, "← External service call succeeded", head, args)
}
