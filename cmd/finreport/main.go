package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finreport/internal/amqp"
	"finreport/internal/cli"
	apphttp "finreport/internal/http"
	applog "finreport/internal/log"
	"finreport/internal/middleware/ratelimit"
	"finreport/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	b := cli.InitBackend(startCtx, logger, cfg)
	cancelStart()

	var extra []services.Option
	var publisher *amqp.Client
	if cfg.AMQPEnabled() {
		var err error
		publisher, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqp.WithLogger(logger))
		if err != nil {
			// Reports are still served; only the event fan-out is lost.
			logger.Warn("AMQP unavailable, report events disabled", applog.FieldError, err)
		} else {
			extra = append(extra, services.WithPublisher(publisher))
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	stack, err := cli.NewReportStack(cfg, b, logger, extra...)
	if err != nil {
		logger.Error("Failed to build report service", applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, stack.Service,
		apphttp.WithLogger(logger),
		apphttp.WithRateLimit(ratelimit.DefaultConfig()),
		apphttp.WithReadiness(func(ctx context.Context) error {
			_, err := b.Ledger.ListUserIDs(ctx)
			return err
		}))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		stack.Caches.Stop()
		if publisher != nil {
			publisher.Close()
		}
		if err := b.Close(); err != nil {
			logger.Error("Backend close error", applog.FieldError, err)
		}
	})

	logger.Info("Starting finreport server",
		"port", cfg.Port,
		applog.FieldBackend, cfg.DataBackend,
		"currency", stack.Formatter.Code)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
