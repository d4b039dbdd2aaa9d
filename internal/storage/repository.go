// Package storage is the SQLite ledger and report store.
//
// Money columns are TEXT holding decimal strings, instants are INTEGER Unix
// milliseconds and reports keep their full JSON snapshot in a payload column.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finreport/internal/core"
	applog "finreport/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements ports.LedgerReader and ports.ReportStore.
type SQLiteRepository struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		now:    time.Now,
		logger: applog.WithComponent(nil, applog.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullCategory(c core.CategoryRef) sql.NullString {
	name, ok := c.Name()
	return sql.NullString{String: name, Valid: ok}
}

func categoryFrom(ns sql.NullString) core.CategoryRef {
	if !ns.Valid {
		return core.Unlinked()
	}
	return core.Linked(ns.String)
}

// SaveUser inserts or updates a user.
func (r *SQLiteRepository) SaveUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, balance) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, balance = excluded.balance`,
		u.ID, u.Name, u.Balance.String())
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

// User implements ports.UserReader.
func (r *SQLiteRepository) User(ctx context.Context, userID string) (core.User, error) {
	var (
		u       core.User
		balance decimal.Decimal
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, balance FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.Name, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	u.Balance = balance
	return u, nil
}

// ListUserIDs implements ports.UserReader.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveBill inserts or replaces a bill.
func (r *SQLiteRepository) SaveBill(ctx context.Context, b core.Bill) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("bill %s: %w", b.ID, err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bills (id, user_id, name, amount, due_date, status, category)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, b.Amount.String(), toMillis(b.DueDate), string(b.Status), nullCategory(b.Category))
	if err != nil {
		return fmt.Errorf("save bill %s: %w", b.ID, err)
	}
	return nil
}

// BillsInRange implements ports.BillReader.
func (r *SQLiteRepository) BillsInRange(ctx context.Context, userID string, start, end time.Time) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, amount, due_date, status, category
		FROM bills
		WHERE user_id = ? AND due_date BETWEEN ? AND ?
		ORDER BY due_date, id`,
		userID, toMillis(start), toMillis(end))
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	defer rows.Close()

	var out []core.Bill
	for rows.Next() {
		var (
			b        core.Bill
			amount   decimal.Decimal
			due      int64
			status   string
			category sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &amount, &due, &status, &category); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		b.Amount = amount
		b.DueDate = fromMillis(due)
		b.Status = core.BillStatus(status)
		b.Category = categoryFrom(category)
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveBudget inserts or replaces a budget.
func (r *SQLiteRepository) SaveBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("budget %s: %w", b.ID, err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO budgets (id, user_id, name, amount, spent, alert_threshold)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, b.Amount.String(), b.Spent.String(), b.AlertThreshold)
	if err != nil {
		return fmt.Errorf("save budget %s: %w", b.ID, err)
	}
	return nil
}

// Budgets implements ports.BudgetReader.
func (r *SQLiteRepository) Budgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, amount, spent, alert_threshold
		FROM budgets WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var (
			b             core.Budget
			amount, spent decimal.Decimal
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &amount, &spent, &b.AlertThreshold); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Amount, b.Spent = amount, spent
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveTransaction inserts or replaces a transaction.
func (r *SQLiteRepository) SaveTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transactions (id, user_id, amount, occurred_at, type, category, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Amount.String(), toMillis(t.Date), string(t.Type), nullCategory(t.Category), t.Description)
	if err != nil {
		return fmt.Errorf("save transaction %s: %w", t.ID, err)
	}
	return nil
}

// TransactionsInRange implements ports.TransactionReader.
func (r *SQLiteRepository) TransactionsInRange(ctx context.Context, userID string, start, end time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, amount, occurred_at, type, category, description
		FROM transactions
		WHERE user_id = ? AND occurred_at BETWEEN ? AND ?
		ORDER BY occurred_at, id`,
		userID, toMillis(start), toMillis(end))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t        core.Transaction
			amount   decimal.Decimal
			at       int64
			typ      string
			category sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.UserID, &amount, &at, &typ, &category, &t.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Amount = amount
		t.Date = fromMillis(at)
		t.Type = core.TransactionType(typ)
		t.Category = categoryFrom(category)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveReport implements ports.ReportStore. The insert is a single statement.
func (r *SQLiteRepository) SaveReport(ctx context.Context, rep core.FinancialReport) (core.FinancialReport, error) {
	rep.ID = uuid.NewString()
	rep.GeneratedAt = r.now().UTC()

	payload, err := json.Marshal(rep)
	if err != nil {
		return core.FinancialReport{}, fmt.Errorf("encode report: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reports (id, user_id, period, generated_at, start_date, end_date, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.UserID, string(rep.Period), toMillis(rep.GeneratedAt),
		toMillis(rep.StartDate), toMillis(rep.EndDate), string(payload))
	if err != nil {
		return core.FinancialReport{}, fmt.Errorf("insert report: %w", err)
	}

	r.logger.DebugContext(ctx, "Report saved to SQLite",
		applog.FieldReportID, rep.ID,
		applog.FieldUserID, rep.UserID,
		applog.FieldPeriod, string(rep.Period))
	return rep, nil
}

// GetReport implements ports.ReportStore.
func (r *SQLiteRepository) GetReport(ctx context.Context, id string) (core.FinancialReport, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM reports WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FinancialReport{}, fmt.Errorf("%w: %s", core.ErrReportNotFound, id)
	}
	if err != nil {
		return core.FinancialReport{}, fmt.Errorf("get report %s: %w", id, err)
	}
	return decodeReport(payload)
}

// ListReports implements ports.ReportStore. A limit <= 0 returns every report.
func (r *SQLiteRepository) ListReports(ctx context.Context, userID string, limit int) ([]core.FinancialReport, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM reports
		WHERE user_id = ?
		ORDER BY generated_at DESC, id
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]core.FinancialReport, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		rep, err := decodeReport(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func decodeReport(payload string) (core.FinancialReport, error) {
	var rep core.FinancialReport
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		return core.FinancialReport{}, fmt.Errorf("decode report: %w", err)
	}
	return rep, nil
}
