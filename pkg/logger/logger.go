// Package logger provides the structured, context-aware logger used across the service.
package logger

import (
	"context"
)

// Logger is a context-first structured logger. Fields are passed as alternating
// key/value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...any)
	Info(ctx context.Context, msg string, fields ...any)
	Warn(ctx context.Context, msg string, fields ...any)
	Error(ctx context.Context, msg string, fields ...any)
	Fatal(ctx context.Context, msg string, fields ...any) // calls os.Exit(1) after logging

	// With creates a child logger carrying the given fields on every entry.
	With(fields ...any) Logger
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
)

func (c contextKey) String() string {
	return string(c)
}

// WithRequestID returns a copy of ctx carrying the request id for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// RequestID extracts the request id stored by WithRequestID, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// UserID extracts the user id stored by WithUserID, or 0.
func UserID(ctx context.Context) uint {
	id, _ := ctx.Value(userIDKey).(uint)
	return id
}
