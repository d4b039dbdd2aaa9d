package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finreport/internal/core"
)

func TestStoreLedgerQueries(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := func(d int) time.Time { return time.Date(2025, time.May, d, 0, 0, 0, 0, time.UTC) }

	s.AddUser(core.User{ID: "u1", Balance: decimal.NewFromInt(10)})
	s.AddUser(core.User{ID: "u0"})
	for _, b := range []core.Bill{
		{ID: "b1", UserID: "u1", Amount: decimal.NewFromInt(1), DueDate: day(1), Status: core.BillPaid},
		{ID: "b2", UserID: "u1", Amount: decimal.NewFromInt(1), DueDate: day(9), Status: core.BillPaid},
		{ID: "b3", UserID: "u0", Amount: decimal.NewFromInt(1), DueDate: day(2), Status: core.BillPaid},
	} {
		if err := s.AddBill(b); err != nil {
			t.Fatalf("AddBill(%s) error = %v", b.ID, err)
		}
	}
	if err := s.AddBill(core.Bill{ID: "neg", Amount: decimal.NewFromInt(-1)}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("AddBill(negative) error = %v", err)
	}

	bills, _ := s.BillsInRange(ctx, "u1", day(1), day(5))
	if len(bills) != 1 || bills[0].ID != "b1" {
		t.Errorf("BillsInRange() = %+v", bills)
	}

	ids, _ := s.ListUserIDs(ctx)
	if len(ids) != 2 || ids[0] != "u0" {
		t.Errorf("ListUserIDs() = %v, want sorted", ids)
	}
	if _, err := s.User(ctx, "ghost"); !errors.Is(err, core.ErrUserNotFound) {
		t.Errorf("User(ghost) error = %v", err)
	}
}

func TestStoreReports(t *testing.T) {
	ctx := context.Background()
	s := New().WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) })

	a, _ := s.SaveReport(ctx, core.FinancialReport{UserID: "u1", Period: core.Week})
	b, _ := s.SaveReport(ctx, core.FinancialReport{UserID: "u1", Period: core.Month})
	if a.ID == "" || a.ID == b.ID || a.GeneratedAt.IsZero() {
		t.Fatalf("SaveReport() ids = %q, %q", a.ID, b.ID)
	}

	list, _ := s.ListReports(ctx, "u1", 1)
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("ListReports(limit 1) = %+v, want newest", list)
	}
	if _, err := s.GetReport(ctx, "nope"); !errors.Is(err, core.ErrReportNotFound) {
		t.Errorf("GetReport(nope) error = %v", err)
	}
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFromFile(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("NewFromFile(missing) error = %v", err)
	}
	if ids, _ := s.ListUserIDs(context.Background()); len(ids) != 0 {
		t.Errorf("expected empty store, got users %v", ids)
	}

	seed := `{
	  "users": [{"id": "u1", "name": "An", "balance": "25000000"}],
	  "bills": [{"id": "b1", "userId": "u1", "name": "Rent", "amount": 5000000, "dueDate": "2025-05-01T00:00:00Z", "status": "paid", "category": "Housing"},
	            {"id": "b2", "userId": "u1", "name": "Misc", "amount": "1000", "dueDate": "2025-05-02T00:00:00Z", "status": "paid"}],
	  "budgets": [{"id": "g1", "userId": "u1", "name": "Housing", "amount": "6000000", "spent": "5000000", "alertThreshold": 80}],
	  "transactions": [{"id": "t1", "userId": "u1", "amount": "9000000", "date": "2025-05-01T08:00:00Z", "type": "income", "description": "Salary"}]
	}`
	path := filepath.Join(dir, "seed.json")
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	s, err = NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	ctx := context.Background()
	u, err := s.User(ctx, "u1")
	if err != nil || !u.Balance.Equal(decimal.NewFromInt(25_000_000)) {
		t.Errorf("User() = %+v, %v", u, err)
	}
	bills, _ := s.BillsInRange(ctx, "u1", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if len(bills) != 2 || bills[0].Category.Label() != "Housing" || bills[1].Category.IsLinked() {
		t.Errorf("BillsInRange() = %+v", bills)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewFromFile(path); err == nil {
		t.Error("NewFromFile() accepted malformed JSON")
	}
}
