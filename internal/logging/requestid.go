package logging

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type requestIDKey struct{}

// GenerateRequestID returns a short random id for log correlation.
func GenerateRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID returns the request id stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// FromContext tags log with the request id of ctx, if any.
func FromContext(ctx context.Context, log *zap.Logger) *zap.Logger {
	if id := GetRequestID(ctx); id != "" {
		return log.With(zap.String("request_id", id))
	}
	return log
}
