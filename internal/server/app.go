// Package server wires the upload pipeline together: database and
// migrations, object store, work queue, services, the storage-event
// consumer and the HTTP and gRPC endpoints. It also handles graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/dmitrijs2005/bridgeupload/internal/awsx"
	"github.com/dmitrijs2005/bridgeupload/internal/logging"
	"github.com/dmitrijs2005/bridgeupload/internal/server/config"
	"github.com/dmitrijs2005/bridgeupload/internal/server/httpapi"
	"github.com/dmitrijs2005/bridgeupload/internal/server/metrics"
	"github.com/dmitrijs2005/bridgeupload/internal/server/objectstore"
	"github.com/dmitrijs2005/bridgeupload/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bridgeupload/internal/server/s3events"
	"github.com/dmitrijs2005/bridgeupload/internal/server/services"
	"github.com/dmitrijs2005/bridgeupload/internal/server/workqueue"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/bridgeupload/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	handler  http.Handler
	consumer *s3events.Consumer
	closers  []io.Closer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(c.LogBackend, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app := &App{config: c, logger: logger, db: db, closers: []io.Closer{db}}

	if err := app.init(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	if err := app.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(reg)

	awsCfg, err := awsx.LoadConfig(ctx, awsx.Settings{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return fmt.Errorf("aws config error: %w", err)
	}
	store := objectstore.NewGateway(awsCfg, c.S3Bucket, c.PresignExpiry)

	queue, err := app.newWorkQueue(awsCfg)
	if err != nil {
		return err
	}
	dispatcher := workqueue.NewDispatcher(queue, app.logger, mt)

	timelines := services.NewTimelineCache(app.db, repos, c.TimelineCacheSize, c.TimelineCacheTTL, mt)
	ledger := services.NewDedupeLedger(app.db, repos, c.DedupeWindow, app.logger)
	reconciler := services.NewAdherenceReconciler(app.db, repos, timelines, app.logger, mt)
	uploads := services.NewUploadService(app.db, repos, c, store, dispatcher, ledger, reconciler, app.logger, mt)

	app.handler, err = httpapi.NewHTTPHandler(httpapi.Dependencies{
		Uploads:   uploads,
		SecretKey: []byte(c.SecretKey),
		Logger:    app.logger,
		Metrics:   mt,
		Gatherer:  reg,
	})
	if err != nil {
		return err
	}

	if c.StorageEventQueueURL != "" {
		client := awsx.NewSQSClient(awsCfg, c.StorageEventQueueURL)
		app.consumer = s3events.NewConsumer(client, c.StorageEventQueueURL, c.S3Bucket, uploads, app.logger, mt)
	}

	return nil
}

func (app *App) newWorkQueue(awsCfg aws.Config) (workqueue.WorkQueue, error) {
	switch app.config.WorkQueueBackend {
	case config.WorkQueueSQS:
		return workqueue.NewSQSQueue(awsx.NewSQSClient(awsCfg, app.config.WorkQueueURL), app.config.WorkQueueURL), nil
	case config.WorkQueueKafka:
		q := workqueue.NewKafkaQueue(workqueue.NewKafkaWriter(app.config.KafkaBrokers, app.config.KafkaTopic))
		app.closers = append(app.closers, q)
		return q, nil
	default:
		return nil, fmt.Errorf("unknown work queue backend %q", app.config.WorkQueueBackend)
	}
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

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "HTTP server shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.consumer.Run(ctx); err != nil {
				app.logger.Error(ctx, err.Error())
				cancelFunc()
			}
		}()
	}

	wg.Wait()

	app.close(context.Background())
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Error(ctx, "close error", "error", err)
		}
	}
}
