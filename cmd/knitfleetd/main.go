package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opst/knitfleet/pkg/action"
	"github.com/opst/knitfleet/pkg/auth"
	kdaemon "github.com/opst/knitfleet/pkg/configs/daemon"
	"github.com/opst/knitfleet/pkg/instances"
	"github.com/opst/knitfleet/pkg/logging"
	"github.com/opst/knitfleet/pkg/metrics"
	"github.com/opst/knitfleet/pkg/summary"
	"github.com/opst/knitfleet/pkg/utils/echoutil"
	"github.com/opst/knitfleet/pkg/utils/filewatch"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config-path", "", "daemon config path")
	loglevel := flag.String("loglevel", "", "log level. debug|info|warn|error. overrides config")
	pcert := flag.String("cert", "", "certification file for TLS")
	pkey := flag.String("certkey", "", "key of certification file for TLS")
	flag.Parse()

	conf, err := kdaemon.Load(*configPath)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}
	if *loglevel != "" {
		conf.Logging.Level = *loglevel
	}

	logger, closeLog, err := logging.New(conf.Logging)
	if err != nil {
		log.Fatalf("can not start logging: %s", err)
	}
	defer closeLog()

	if err := run(conf, *configPath, *pcert, *pkey, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		closeLog()
		os.Exit(1)
	}
}

func run(conf *kdaemon.Config, configPath string, cert string, key string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cl closers
	defer cl.close()

	m := metrics.New()

	entities, pool, err := newStore(ctx, conf.Store, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("entity store: %w", err)
	}
	if pool != nil {
		cl.add(pool.Close)
	}
	if err := seed(ctx, entities, conf.Store.Entities, logger.Named("store")); err != nil {
		return fmt.Errorf("entity definitions: %w", err)
	}

	// audit records are flushed after the server is stopped.
	queueCtx, cancelQueue := context.WithCancel(context.Background())
	queue, err := newAuditQueue(queueCtx, conf.Audit, pool, m, logger.Named("audit"))
	if err != nil {
		cancelQueue()
		return fmt.Errorf("audit: %w", err)
	}
	cl.add(cancelQueue)
	cl.add(queue.Close)

	locker, closeLocker, err := newLocker(ctx, conf.Lock, logger.Named("lock"))
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	cl.add(closeLocker)

	cs, err := newColos(conf.Colos)
	if err != nil {
		return err
	}

	dispatcher := action.New(
		entities, cs.router, queue,
		action.WithLocker(locker),
		action.WithLogger(logger.Named("action")),
		action.WithCallTimeout(cs.timeout),
	)
	svc := instances.New(
		entities, cs.router, dispatcher,
		instances.WithLogResolvers(cs.logs),
		instances.WithMetrics(m),
		instances.WithLogger(logger.Named("instances")),
		instances.WithSummaryAggregator(summary.New(
			summary.WithParallelism(conf.Summary.Parallelism),
			summary.WithLogger(logger.Named("summary")),
		)),
	)

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	echoutil.SetLevel(e, conf.Logging.Level)
	e.Use(middleware.Recover())
	e.Use(echoutil.LogHandler(logger.Named("http")))

	mw := []echo.MiddlewareFunc{}
	if conf.Auth.Enabled() {
		secret, err := conf.Auth.Secret()
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		opts := []auth.Option{}
		if conf.Auth.Issuer != "" {
			opts = append(opts, auth.WithIssuer(conf.Auth.Issuer))
		}
		verifier, err := auth.NewVerifier(secret, opts...)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		mw = append(mw, auth.Middleware(verifier, conf.Auth.Required))
	}
	register(e, svc, m, mw...)
	for _, r := range e.Routes() {
		logger.Debug("route", zap.String("method", r.Method), zap.String("path", r.Path))
	}

	// restart on config change. A supervisor brings it back with the new config.
	watched := append([]string{configPath}, conf.Files()...)
	wctx, cancelWatch, err := filewatch.UntilModifyContext(ctx, watched...)
	if err != nil {
		return fmt.Errorf("can not watch configration: %w", err)
	}
	defer cancelWatch()
	context.AfterFunc(wctx, func() {
		if cause := context.Cause(wctx); errors.Is(cause, filewatch.ErrModified) {
			logger.Warn("configuration is updated. quit to restart server.", zap.Error(cause))
		} else {
			logger.Info("shutting down", zap.Error(cause))
		}
		graceful, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(graceful); err != nil {
			logger.Error("error on shutdown", zap.Error(err))
		}
	})

	addr := ":" + conf.Server.Port
	logger.Info("starting server", zap.String("addr", addr), zap.Strings("colos", cs.router.Names()))
	if cert != "" && key != "" {
		err = e.StartTLS(addr, cert, key)
	} else {
		err = e.Start(addr)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
