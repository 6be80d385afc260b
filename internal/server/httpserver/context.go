package httpserver

import (
	"context"

	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/config"
)

// RequestContext is built for a single request and discarded afterwards.
// DB is a connection checked out of the pool for the duration of the
// handler.
type RequestContext struct {
	DB     dbx.Handle
	Peer   PeerInfo
	Config *config.Config
	Logger logging.Logger
}

type requestContextKey struct{}

func withRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

func requestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// requestLogger returns the logger of the request's RequestContext, or
// fallback when the request was not routed through a Dispatcher.
func requestLogger(ctx context.Context, fallback logging.Logger) logging.Logger {
	if rc, ok := requestContextFrom(ctx); ok && rc.Logger != nil {
		return rc.Logger
	}
	return fallback
}
