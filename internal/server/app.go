// Package server wires storage, services and transports into the running
// zkvault server and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/alerts"
	"github.com/dmitrijs2005/zkvault/internal/server/config"
	"github.com/dmitrijs2005/zkvault/internal/server/geo"
	"github.com/dmitrijs2005/zkvault/internal/server/httpapi"
	"github.com/dmitrijs2005/zkvault/internal/server/locks"
	"github.com/dmitrijs2005/zkvault/internal/server/objects"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zkvault/internal/server/services"

	gs "github.com/dmitrijs2005/zkvault/internal/server/grpc"
)

const (
	lockTTL        = 30 * time.Second
	geoTimeout     = 2 * time.Second
	healthInterval = 10 * time.Second
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	dispatcher *alerts.Dispatcher
	auth       *services.AuthService
	secrets    *services.SecretService
	canaries   *services.CanaryService
	shredder   *services.Shredder
	closers    []func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(logging.Options{Level: c.LogLevel, JSON: c.LogJSON, Writer: os.Stdout})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger}
	if err := app.init(ctx); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return err
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	locker, err := app.newLocker(ctx)
	if err != nil {
		return err
	}

	sender, err := app.newAlertSender(ctx)
	if err != nil {
		return err
	}
	app.dispatcher = alerts.NewDispatcher(sender, alerts.Options{
		Workers:   c.AlertWorkers,
		QueueSize: c.AlertQueueSize,
		Timeout:   c.AlertTimeout,
	}, app.logger)

	locator, err := app.newLocator()
	if err != nil {
		return err
	}

	store, err := objects.NewS3Store(ctx, objects.Options{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
	})
	if err != nil {
		return fmt.Errorf("s3 init error: %w", err)
	}

	app.secrets = services.NewSecretService(db, rm, locker, app.logger)
	app.canaries = services.NewCanaryService(db, rm, app.dispatcher, locator, app.logger)
	app.shredder = services.NewShredder(db, rm, store, app.logger)
	app.auth = services.NewAuthService(db, rm, c, app.dispatcher, locator, app.logger, app.secrets, app.shredder)
	return nil
}

func (app *App) newLocker(ctx context.Context) (locks.TryLocker, error) {
	if app.config.RedisAddr == "" {
		return locks.NewMemoryLocker(), nil
	}
	client, err := locks.NewRedisClient(ctx, app.config.RedisAddr)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, client.Close)
	return locks.NewRedisLocker(client, lockTTL, app.logger.With("module", "locks")), nil
}

func (app *App) newAlertSender(ctx context.Context) (alerts.Sender, error) {
	c := app.config
	if c.SQSQueueURL == "" {
		return alerts.NewLogSender(app.logger), nil
	}
	client, err := alerts.NewSQSClient(ctx, c.SQSEndpoint, c.S3Region)
	if err != nil {
		return nil, fmt.Errorf("sqs init error: %w", err)
	}
	return alerts.NewSQSSender(client, c.SQSQueueURL, []byte(c.SecretKey)), nil
}

func (app *App) newLocator() (geo.Locator, error) {
	if app.config.GeoEndpoint == "" {
		return geo.Nop{}, nil
	}
	upstream := geo.NewHTTPLocator(app.config.GeoEndpoint, geoTimeout, app.logger)
	return geo.NewCachedLocator(upstream, app.config.GeoCacheSize)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	proxies, err := httpapi.ParseTrustedProxies(app.config.TrustedProxies)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.auth, app.secrets, app.canaries,
		httpapi.Options{
			RateLimit:      app.config.PublicRateLimit,
			RateBurst:      app.config.PublicRateBurst,
			TrustedProxies: proxies,
		}, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db, healthInterval)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives or a server fails, then drains the
// alert queue and releases resources.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)
	app.dispatcher.Start()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	for _, job := range app.jobs() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job.run(ctx, app.logger)
		}()
	}

	wg.Wait()

	app.dispatcher.Stop()
	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(context.Background(), "close failed", "err", err)
		}
	}
	app.closers = nil
}
