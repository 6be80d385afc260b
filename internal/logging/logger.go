// Package logging is the structured logger shared by every authgate
// component. Components take a Logger and tag it with With("module", ...).
package logging

import "context"

// Logger is a context-aware, structured logger. args are key/value pairs:
//
//	log.Info(ctx, "connection established", "remote", addr, "alpn", proto)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes args.
	With(args ...any) Logger
}
