package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finreport/internal/amqp"
	"finreport/internal/cli"
	"finreport/internal/core"
	applog "finreport/internal/log"
	"finreport/internal/ports"
	"finreport/internal/services"
	gsheet "finreport/internal/sheets/google"
	"finreport/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg)

	logger.Info("Starting report-worker")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	b := cli.InitBackend(startCtx, logger, cfg)

	var client *amqp.Client
	var extra []services.Option
	if cfg.AMQPEnabled() {
		var err error
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqp.WithLogger(logger))
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		extra = append(extra, services.WithPublisher(client))
	} else {
		logger.Info("AMQP disabled - scheduled reports only")
	}

	stack, err := cli.NewReportStack(cfg, b, logger, extra...)
	if err != nil {
		logger.Error("Failed to build report service", applog.FieldError, err)
		os.Exit(1)
	}

	var exporter ports.ReportExporter
	if cfg.SheetsEnabled() {
		exp, err := gsheet.NewExporter(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.ReportSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, gsheet.WithFormatter(stack.Formatter), gsheet.WithLogger(logger))
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", applog.FieldError, err)
			os.Exit(1)
		}
		exporter = exp
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	scheduler, err := worker.NewScheduler(cfg.ReportSchedule, core.Month, stack.Service, logger)
	if err != nil {
		logger.Error("Invalid report schedule", applog.FieldError, err, "schedule", cfg.ReportSchedule)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		scheduler.Stop(ctx)
		stack.Caches.Stop()
		if client != nil {
			client.Close()
		}
		if err := b.Close(); err != nil {
			logger.Error("Backend close error", applog.FieldError, err)
		}
	})

	scheduler.Start()

	if client != nil {
		w := worker.NewReportWorker(stack.Service, exporter, logger)
		go func() {
			if err := client.Consume(ctx, w.Handlers()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption stopped", applog.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("report-worker stopped")
}
