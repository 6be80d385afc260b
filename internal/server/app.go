// Package server wires the authgate process together: configuration,
// storage, token keys, collaborators and the TLS listener.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/authgate/internal/cryptox"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/auth"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/events"
	"github.com/dmitrijs2005/authgate/internal/server/httpserver"
	"github.com/dmitrijs2005/authgate/internal/server/metrics"
	"github.com/dmitrijs2005/authgate/internal/server/objectstore"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authgate/internal/server/services"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	publisher events.Publisher
	server    *httpserver.Server
}

// NewApp builds every shared component. Any failure here is a startup
// failure.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.Debug).With("server", c.ServerName)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(c.DatabaseMaxConns)
	db.SetMaxIdleConns(c.DatabaseMaxConns)

	cleanup := func(err error) (*App, error) {
		_ = db.Close()
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return cleanup(fmt.Errorf("db ping error: %w", err))
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return cleanup(fmt.Errorf("db migrate error: %w", err))
	}

	priv, pub, err := auth.LoadKeys(c.TokenPrivateKeyFile, c.TokenPublicKeyFile)
	if err != nil {
		return cleanup(fmt.Errorf("token keys error: %w", err))
	}
	codec := auth.NewCodec(priv, pub, c.TokenOrg)

	tlsConfig, err := httpserver.LoadTLSConfig(c.TLSCertFile, c.TLSKeyFile, c.TLSClientCAFile)
	if err != nil {
		return cleanup(fmt.Errorf("tls config error: %w", err))
	}

	store, err := objectstore.NewS3Store(ctx, objectstore.Options{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
	})
	if err != nil {
		return cleanup(fmt.Errorf("object store error: %w", err))
	}

	var publisher events.Publisher = events.Noop{}
	if c.KafkaPublishEvents {
		publisher = events.NewKafkaPublisher(c.KafkaBrokers, logger)
	}

	rec, err := metrics.NewPrometheusRecorder(prometheus.NewRegistry(), "authgate")
	if err != nil {
		return cleanup(fmt.Errorf("metrics error: %w", err))
	}

	gate := services.NewAccountGate(rm)
	tokens := services.NewOneTimeTokenStore(rm, gate)
	users := services.NewUserService(rm, gate, tokens, codec, cryptox.NewArgon2Hasher(), publisher, c, logger)
	data := services.NewUserDataService(rm, store, c.S3DataPrefix, logger)
	authenticator := services.NewAuthenticator(gate, codec, logger)

	handlers := httpserver.NewHandlers(authenticator, users, data)
	dispatcher := httpserver.NewDispatcher(handlers.Routes(), db, c, logger, rec)
	srv := httpserver.NewServer(httpserver.Options{
		Addr:             c.EndpointAddr,
		MaxConnections:   c.MaxConnections,
		HandshakeTimeout: c.HandshakeTimeout,
		ShutdownTimeout:  c.ShutdownTimeout,
	}, tlsConfig, dispatcher, logger, rec)

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		publisher: publisher,
		server:    srv,
	}, nil
}

// Run serves until SIGINT, SIGTERM or SIGQUIT, then releases the pool and
// flushes pending events.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "starting app", "addr", app.config.EndpointAddr)

	err := app.server.Run(ctx)

	if closer, ok := app.publisher.(interface{ Close() error }); ok {
		if cerr := closer.Close(); cerr != nil {
			app.logger.Warn(ctx, "event publisher close failed", "error", cerr)
		}
	}
	if cerr := app.db.Close(); cerr != nil {
		app.logger.Warn(ctx, "db close failed", "error", cerr)
	}

	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	app.logger.Info(ctx, "app stopped")
	return nil
}
