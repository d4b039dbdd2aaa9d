// Package ports declares the collaborators the report engine reads from and
// writes to. Storage backends, the AMQP client and the Sheets exporter
// implement them.
package ports

import (
	"context"
	"time"

	"finreport/internal/core"
)

// Ports for inbound data.
type (
	// BillReader returns a user's bills with a due date in [start, end].
	BillReader interface {
		BillsInRange(ctx context.Context, userID string, start, end time.Time) ([]core.Bill, error)
	}

	BudgetReader interface {
		Budgets(ctx context.Context, userID string) ([]core.Budget, error)
	}

	TransactionReader interface {
		TransactionsInRange(ctx context.Context, userID string, start, end time.Time) ([]core.Transaction, error)
	}

	// UserReader returns core.ErrUserNotFound for unknown ids.
	UserReader interface {
		User(ctx context.Context, userID string) (core.User, error)
		ListUserIDs(ctx context.Context) ([]string, error)
	}

	// LedgerReader is everything report generation reads.
	LedgerReader interface {
		BillReader
		BudgetReader
		TransactionReader
		UserReader
	}
)

// Ports for outbound data.
type (
	// ReportStore persists report snapshots. SaveReport assigns ID and
	// GeneratedAt and returns the stored report.
	ReportStore interface {
		SaveReport(ctx context.Context, r core.FinancialReport) (core.FinancialReport, error)
		// GetReport returns core.ErrReportNotFound when the id is unknown.
		GetReport(ctx context.Context, id string) (core.FinancialReport, error)
		// ListReports returns a user's reports, newest first.
		ListReports(ctx context.Context, userID string, limit int) ([]core.FinancialReport, error)
	}

	// ReportExporter writes a report summary to an external destination.
	ReportExporter interface {
		Export(ctx context.Context, r core.FinancialReport) (ref string, err error)
	}

	// EventPublisher announces generated reports.
	EventPublisher interface {
		PublishReportGenerated(ctx context.Context, r core.FinancialReport) error
	}
)
