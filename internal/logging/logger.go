// Package logging is the structured logger handed to every component of the
// sync client.
package logging

import "context"

// Logger takes a message plus alternating key/value attributes:
//
//	logger.Info(ctx, "user manifest published", "version", v)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a logger that adds args to every record.
	With(args ...any) Logger
}
