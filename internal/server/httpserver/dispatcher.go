package httpserver

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/metrics"
)

// HandlerFunc serves one matched request.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, rc *RequestContext)

// Route is one entry of the dispatch table. Resource and Operation are the
// metrics labels.
type Route struct {
	Method    string
	Path      string
	Prefix    bool
	Resource  string
	Operation string
	Handler   HandlerFunc
}

func (rt Route) matches(method, path string) bool {
	if rt.Method != method {
		return false
	}
	if rt.Prefix {
		return strings.HasPrefix(path, rt.Path)
	}
	return path == rt.Path
}

// ConnPool hands out dedicated database connections. *sql.DB satisfies it.
type ConnPool interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Dispatcher resolves a request against an ordered route table, checks out a
// database connection for it and runs the handler. It performs no
// authentication.
type Dispatcher struct {
	routes  []Route
	chains  []http.Handler
	pool    ConnPool
	config  *config.Config
	logger  logging.Logger
	metrics metrics.Recorder
}

func NewDispatcher(routes []Route, pool ConnPool, cfg *config.Config, logger logging.Logger, rec metrics.Recorder) *Dispatcher {
	if rec == nil {
		rec = metrics.Noop{}
	}
	d := &Dispatcher{
		routes:  routes,
		chains:  make([]http.Handler, len(routes)),
		pool:    pool,
		config:  cfg,
		logger:  logger.With("module", "dispatcher"),
		metrics: rec,
	}
	for i, rt := range routes {
		var h http.Handler = routeHandler(rt.Handler)
		h = RecoveryMiddleware(d.logger)(h)
		h = LoggingMiddleware(d.logger)(h)
		d.chains[i] = h
	}
	return d
}

// routeHandler adapts a HandlerFunc to http.Handler. The RequestContext is
// taken from the request context.
func routeHandler(fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := requestContextFrom(r.Context())
		if !ok {
			writeMsg(w, http.StatusInternalServerError, "internal error")
			return
		}
		fn(w, r, rc)
	})
}

func (d *Dispatcher) match(method, path string) (int, bool) {
	for i, rt := range d.routes {
		if rt.matches(method, path) {
			return i, true
		}
	}
	return -1, false
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	i, ok := d.match(r.Method, r.URL.Path)
	if !ok {
		d.metrics.Before("unsupported", "unsupported", "unknown")
		d.logger.Warn(r.Context(), "unsupported method and uri", "method", r.Method, "path", r.URL.Path)
		writeMsg(w, http.StatusNotFound, "unsupported method and uri")
		d.metrics.After("unsupported", "unsupported", "unknown", metrics.Outcome(http.StatusNotFound))
		return
	}

	rt := d.routes[i]
	d.metrics.Before(rt.Path, rt.Resource, rt.Operation)
	rw := newResponseWriter(w)
	defer func() {
		d.metrics.After(rt.Path, rt.Resource, rt.Operation, metrics.Outcome(rw.statusCode))
	}()

	conn, err := d.pool.Conn(r.Context())
	if err != nil {
		d.logger.Error(r.Context(), "database connection checkout failed", "error", err, "path", rt.Path)
		writeMsg(rw, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			d.logger.Warn(r.Context(), "database connection release failed", "error", err)
		}
	}()

	logger := d.logger.With(
		"request_id", uuid.NewString(),
		"resource", rt.Resource,
		"operation", rt.Operation,
	)
	peer, _ := PeerFromContext(r.Context())
	rc := &RequestContext{
		DB:     conn,
		Peer:   peer,
		Config: d.config,
		Logger: logger,
	}

	d.chains[i].ServeHTTP(rw, r.WithContext(withRequestContext(r.Context(), rc)))
}
