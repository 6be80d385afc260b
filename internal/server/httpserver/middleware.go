package httpserver

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/dmitrijs2005/authgate/internal/logging"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// responseWriter captures status code and response size.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// RecoveryMiddleware turns a handler panic into a 500 and logs the stack.
// The request-scoped logger is used when the request carries one.
func RecoveryMiddleware(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					requestLogger(r.Context(), logger).Error(r.Context(), "panic recovered",
						"error", fmt.Sprint(p),
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					writeMsg(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs one line per request. The level follows the
// status: error for 5xx, warn for 4xx, info otherwise. Headers, query
// strings and bodies are never logged. The request-scoped logger is used
// when the request carries one.
func LoggingMiddleware(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"proto", r.Proto,
				"status", wrapped.statusCode,
				"bytes_written", wrapped.written,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			l := requestLogger(r.Context(), logger)
			switch {
			case wrapped.statusCode >= 500:
				l.Error(r.Context(), "http request", args...)
			case wrapped.statusCode >= 400:
				l.Warn(r.Context(), "http request", args...)
			default:
				l.Info(r.Context(), "http request", args...)
			}
		})
	}
}
