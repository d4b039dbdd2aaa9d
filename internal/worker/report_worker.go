// Package worker runs report jobs outside the request path: AMQP-driven
// generation and export, plus the cron schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finreport/internal/amqp"
	"finreport/internal/core"
	applog "finreport/internal/log"
	"finreport/internal/ports"
)

// ReportService is the part of services.ReportService the worker drives.
type ReportService interface {
	GenerateReport(ctx context.Context, userID, period string) (core.FinancialReport, error)
	GetReport(ctx context.Context, id string) (core.FinancialReport, error)
	GenerateForAllUsers(ctx context.Context, period string) (int, error)
}

// ReportWorker handles report.requested and report.generated messages.
type ReportWorker struct {
	reports  ReportService
	exporter ports.ReportExporter
	logger   *slog.Logger
}

// NewReportWorker returns a worker. A nil exporter skips Sheets export.
func NewReportWorker(reports ReportService, exporter ports.ReportExporter, logger *slog.Logger) *ReportWorker {
	return &ReportWorker{
		reports:  reports,
		exporter: exporter,
		logger:   applog.WithComponent(logger, applog.ComponentWorker),
	}
}

// Handlers wires the worker into amqp.Client.Consume.
func (w *ReportWorker) Handlers() amqp.Handlers {
	return amqp.Handlers{
		ReportRequested: w.HandleReportRequested,
		ReportGenerated: w.HandleReportGenerated,
	}
}

// HandleReportRequested generates the requested report. Requests that can
// never succeed are marked permanent so they are not requeued.
func (w *ReportWorker) HandleReportRequested(ctx context.Context, msg *amqp.ReportRequestedMessage) error {
	w.logger.InfoContext(ctx, "Processing report request",
		applog.FieldUserID, msg.UserID,
		applog.FieldPeriod, msg.Period)

	r, err := w.reports.GenerateReport(ctx, msg.UserID, msg.Period)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) || errors.Is(err, core.ErrInvalidPeriod) || errors.Is(err, core.ErrEmptyUserID) {
			return amqp.Permanent(fmt.Errorf("generate report: %w", err))
		}
		return fmt.Errorf("generate report: %w", err)
	}

	w.logger.InfoContext(ctx, "Report request fulfilled",
		applog.FieldReportID, r.ID,
		applog.FieldUserID, r.UserID)
	return nil
}

// HandleReportGenerated exports the announced report.
func (w *ReportWorker) HandleReportGenerated(ctx context.Context, msg *amqp.ReportGeneratedMessage) error {
	if w.exporter == nil {
		w.logger.DebugContext(ctx, "No exporter configured, skipping report export",
			applog.FieldReportID, msg.ReportID)
		return nil
	}

	r, err := w.reports.GetReport(ctx, msg.ReportID)
	if err != nil {
		if errors.Is(err, core.ErrReportNotFound) {
			return amqp.Permanent(fmt.Errorf("load report: %w", err))
		}
		return fmt.Errorf("load report: %w", err)
	}

	ref, err := w.exporter.Export(ctx, r)
	if err != nil {
		applog.LogError(ctx, w.logger, "Failed to export report", err, applog.OpExport,
			applog.NewFields().WithReport(r.UserID, r.ID, r.Period.String()))
		return fmt.Errorf("export report: %w", err)
	}

	w.logger.InfoContext(ctx, "Report exported",
		applog.FieldReportID, r.ID,
		applog.FieldSheetsRef, ref)
	return nil
}
