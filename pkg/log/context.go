package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the logger from the context.
// If no logger is found, the global logger is returned.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithSession returns a background context whose logger is tagged with
// the websocket session id. Used for work triggered by in-band frames,
// which have no HTTP request context to inherit from.
func WithSession(sessionID string) context.Context {
	l := L().With().Str(FieldSessionID, sessionID).Logger()
	return WithLogger(context.Background(), l)
}
