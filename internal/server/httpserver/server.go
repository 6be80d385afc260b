// Package httpserver accepts TLS connections, serves HTTP/1.1 and HTTP/2
// on them, and dispatches requests to the account handlers.
package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/metrics"
	"golang.org/x/net/http2"
	"golang.org/x/sync/semaphore"
)

const readHeaderTimeout = 10 * time.Second

// Options tune the acceptor.
type Options struct {
	Addr             string
	MaxConnections   int
	HandshakeTimeout time.Duration
	ShutdownTimeout  time.Duration
}

// Server is the connection acceptor. At most MaxConnections connections
// are served at once; further connections wait in the listen backlog.
type Server struct {
	opts      Options
	tlsConfig *tls.Config
	handler   http.Handler
	logger    logging.Logger
	metrics   metrics.Recorder
	slots     *semaphore.Weighted
	wg        sync.WaitGroup
}

func NewServer(opts Options, tlsConfig *tls.Config, handler http.Handler, logger logging.Logger, rec metrics.Recorder) *Server {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 1
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Server{
		opts:      opts,
		tlsConfig: tlsConfig,
		handler:   handler,
		logger:    logger.With("module", "httpserver"),
		metrics:   rec,
		slots:     semaphore.NewWeighted(int64(opts.MaxConnections)),
	}
}

// Run binds Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled, then gives open connections
// ShutdownTimeout to finish before closing them. It returns nil after a
// shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info(ctx, "listening", "addr", ln.Addr().String(), "max_connections", s.opts.MaxConnections)

	hardCtx, hardCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer hardCancel()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
	}()

	var acceptErr error
	for {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			break
		}

		conn, err := ln.Accept()
		if err != nil {
			s.slots.Release(1)
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn(ctx, "accept timeout", "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			acceptErr = fmt.Errorf("accept: %w", err)
			break
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.slots.Release(1)
			s.serveConn(ctx, hardCtx, conn)
		}()
	}

	s.drain(ctx)
	hardCancel()
	s.wg.Wait()

	if acceptErr != nil {
		return acceptErr
	}
	s.logger.Info(ctx, "server stopped")
	return nil
}

func (s *Server) drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.opts.ShutdownTimeout):
		s.logger.Warn(ctx, "shutdown timeout, closing remaining connections")
	}
}

// serveConn runs the handshake and serves the connection. ctx signals a
// graceful shutdown; hardCtx forces the connection closed.
func (s *Server) serveConn(ctx, hardCtx context.Context, raw net.Conn) {
	remote := raw.RemoteAddr().String()
	c := tls.Server(raw, s.tlsConfig)

	hsCtx, cancel := context.WithTimeout(hardCtx, s.opts.HandshakeTimeout)
	err := c.HandshakeContext(hsCtx)
	cancel()
	if err != nil {
		s.logger.Warn(ctx, "tls handshake failed", "remote", remote, "error", err)
		s.metrics.HandshakeFailed()
		_ = raw.Close()
		return
	}

	peer := newPeerInfo(c)
	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	s.logger.Debug(ctx, "connection established", "remote", remote, "alpn", peer.Protocol,
		"tls_version", peer.TLSVersion, "cipher", peer.CipherSuite, "sni", peer.ServerName)

	connCtx := withPeer(hardCtx, peer)
	if peer.Protocol == http2.NextProtoTLS {
		s.serveHTTP2(ctx, hardCtx, connCtx, c)
		return
	}
	s.serveHTTP1(ctx, hardCtx, connCtx, c)
}

func (s *Server) serveHTTP2(ctx, hardCtx, connCtx context.Context, c *tls.Conn) {
	base := &http.Server{Handler: s.handler, ReadHeaderTimeout: readHeaderTimeout}
	h2 := &http2.Server{}
	if err := http2.ConfigureServer(base, h2); err != nil {
		s.logger.Error(ctx, "http2 setup failed", "error", err)
		_ = c.Close()
		return
	}

	// Shutdown on the base server sends GOAWAY to this connection.
	stopGraceful := context.AfterFunc(ctx, func() { _ = base.Shutdown(hardCtx) })
	defer stopGraceful()
	stopHard := context.AfterFunc(hardCtx, func() { _ = c.Close() })
	defer stopHard()

	h2.ServeConn(c, &http2.ServeConnOpts{
		Context:    connCtx,
		BaseConfig: base,
		Handler:    s.handler,
	})
}

func (s *Server) serveHTTP1(ctx, hardCtx, connCtx context.Context, c *tls.Conn) {
	ln := newConnListener(c)
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return connCtx },
		ConnState: func(_ net.Conn, st http.ConnState) {
			if st == http.StateClosed || st == http.StateHijacked {
				ln.release()
			}
		},
		// Only HTTP/1.x reaches this server.
		TLSNextProto: map[string]func(*http.Server, *tls.Conn, http.Handler){},
	}

	stopGraceful := context.AfterFunc(ctx, func() {
		if err := srv.Shutdown(hardCtx); err != nil {
			_ = srv.Close()
		}
	})
	defer stopGraceful()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn(ctx, "serve connection", "remote", c.RemoteAddr().String(), "error", err)
	}

	// Shut down before the connection was picked up.
	select {
	case pending := <-ln.conns:
		_ = pending.Close()
		ln.release()
	default:
	}
	<-ln.gone
}

// connListener hands out one connection and then blocks until closed.
// gone is closed once the connection itself is finished.
type connListener struct {
	conns    chan net.Conn
	addr     net.Addr
	done     chan struct{}
	gone     chan struct{}
	closed   sync.Once
	released sync.Once
}

func newConnListener(c net.Conn) *connListener {
	l := &connListener{
		conns: make(chan net.Conn, 1),
		addr:  c.LocalAddr(),
		done:  make(chan struct{}),
		gone:  make(chan struct{}),
	}
	l.conns <- c
	return l
}

func (l *connListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, net.ErrClosed
	default:
	}
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *connListener) Close() error {
	l.closed.Do(func() { close(l.done) })
	return nil
}

func (l *connListener) Addr() net.Addr { return l.addr }

func (l *connListener) release() {
	l.released.Do(func() { close(l.gone) })
	_ = l.Close()
}
