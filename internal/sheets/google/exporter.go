// Package google exports report summaries to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finreport/internal/core"
	applog "finreport/internal/log"
	"finreport/internal/ports"
)

var _ ports.ReportExporter = (*Exporter)(nil)

// Config names the destination sheet and the service account credentials.
// CredentialsJSON wins over CredentialsFile when both are set.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Exporter appends one summary row per report.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	format        core.CurrencyFormatter
	logger        *slog.Logger
}

type Option func(*Exporter)

func WithFormatter(f core.CurrencyFormatter) Option {
	return func(e *Exporter) { e.format = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// NewExporter builds a Sheets service from service account credentials.
func NewExporter(ctx context.Context, cfg Config, opts ...Option) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	e := &Exporter{
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		format:        core.DefaultFormatter(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = applog.WithComponent(e.logger, applog.ComponentSheets)
	if e.sheetName == "" {
		e.sheetName = "Reports"
	}

	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	e.svc = svc

	e.logger.InfoContext(ctx, "Google Sheets exporter ready",
		"spreadsheet_id", e.spreadsheetID,
		"sheet", e.sheetName)
	return e, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// Export appends r's summary row and returns the updated A1 range.
func (e *Exporter) Export(ctx context.Context, r core.FinancialReport) (string, error) {
	if e.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if r.ID == "" {
		return "", errors.New("report has no id")
	}

	rng := fmt.Sprintf("%s!A:%s", e.sheetName, lastColumn())
	vr := &gsheet.ValueRange{Values: [][]any{ReportRow(r, e.format)}}

	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append report %s to %s: %w", r.ID, e.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	e.logger.InfoContext(ctx, "Report exported",
		applog.FieldReportID, r.ID,
		applog.FieldUserID, r.UserID,
		applog.FieldSheetsRef, ref)
	return ref, nil
}

// Header lists the column titles matching ReportRow.
func Header() []any {
	return []any{
		"Generated", "Report ID", "User ID", "Period", "From", "To",
		"Income", "Expenses", "Savings rate", "Top category", "Top insight",
	}
}

// ReportRow renders the summary row for r. Amounts use f, dates are ISO days.
func ReportRow(r core.FinancialReport, f core.CurrencyFormatter) []any {
	top := ""
	if len(r.CategorySpending) > 0 {
		top = r.CategorySpending[0].Name
	}
	insight := ""
	if len(r.Insights) > 0 {
		insight = r.Insights[0]
	}
	return []any{
		r.GeneratedAt.UTC().Format("2006-01-02 15:04"),
		r.ID,
		r.UserID,
		r.Period.String(),
		r.StartDate.Format("2006-01-02"),
		r.EndDate.Format("2006-01-02"),
		f.Format(r.TotalIncome),
		f.Format(r.TotalExpenses),
		fmt.Sprintf("%.1f%%", r.SavingsRate),
		top,
		insight,
	}
}

func lastColumn() string {
	return string(rune('A' + len(Header()) - 1))
}
