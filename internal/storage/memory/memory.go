// Package memory is an in-process ledger and report store, used for local
// development and in tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finreport/internal/core"
)

type Store struct {
	mu      sync.RWMutex
	users   map[string]core.User
	bills   []core.Bill
	budgets []core.Budget
	txs     []core.Transaction
	reports []core.FinancialReport
	now     func() time.Time
}

func New() *Store {
	return &Store{users: map[string]core.User{}, now: time.Now}
}

// WithClock overrides the time source used to stamp saved reports.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) AddUser(u core.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) AddBill(b core.Bill) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bills = append(s.bills, b)
	return nil
}

func (s *Store) AddBudget(b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets = append(s.budgets, b)
	return nil
}

func (s *Store) AddTransaction(t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, t)
	return nil
}

// User implements ports.UserReader.
func (s *Store) User(_ context.Context, userID string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	return u, nil
}

// ListUserIDs implements ports.UserReader.
func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// BillsInRange implements ports.BillReader.
func (s *Store) BillsInRange(_ context.Context, userID string, start, end time.Time) ([]core.Bill, error) {
	rng := core.DateRange{Start: start, End: end}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Bill
	for _, b := range s.bills {
		if b.UserID == userID && rng.Contains(b.DueDate) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Budgets implements ports.BudgetReader.
func (s *Store) Budgets(_ context.Context, userID string) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

// TransactionsInRange implements ports.TransactionReader.
func (s *Store) TransactionsInRange(_ context.Context, userID string, start, end time.Time) ([]core.Transaction, error) {
	rng := core.DateRange{Start: start, End: end}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, t := range s.txs {
		if t.UserID == userID && rng.Contains(t.Date) {
			out = append(out, t)
		}
	}
	return out, nil
}

// SaveReport implements ports.ReportStore.
func (s *Store) SaveReport(_ context.Context, r core.FinancialReport) (core.FinancialReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = uuid.NewString()
	r.GeneratedAt = s.now().UTC()
	s.reports = append(s.reports, r)
	return r, nil
}

// GetReport implements ports.ReportStore.
func (s *Store) GetReport(_ context.Context, id string) (core.FinancialReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return core.FinancialReport{}, fmt.Errorf("%w: %s", core.ErrReportNotFound, id)
}

// ListReports implements ports.ReportStore, newest first.
func (s *Store) ListReports(_ context.Context, userID string, limit int) ([]core.FinancialReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.FinancialReport, 0)
	for i := len(s.reports) - 1; i >= 0; i-- {
		if s.reports[i].UserID != userID {
			continue
		}
		out = append(out, s.reports[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Seed is the on-disk shape of a development data set.
type Seed struct {
	Users []struct {
		ID      string          `json:"id"`
		Name    string          `json:"name"`
		Balance decimal.Decimal `json:"balance"`
	} `json:"users"`
	Bills []struct {
		ID       string          `json:"id"`
		UserID   string          `json:"userId"`
		Name     string          `json:"name"`
		Amount   decimal.Decimal `json:"amount"`
		DueDate  time.Time       `json:"dueDate"`
		Status   string          `json:"status"`
		Category string          `json:"category"`
	} `json:"bills"`
	Budgets []struct {
		ID             string          `json:"id"`
		UserID         string          `json:"userId"`
		Name           string          `json:"name"`
		Amount         decimal.Decimal `json:"amount"`
		Spent          decimal.Decimal `json:"spent"`
		AlertThreshold float64         `json:"alertThreshold"`
	} `json:"budgets"`
	Transactions []struct {
		ID          string          `json:"id"`
		UserID      string          `json:"userId"`
		Amount      decimal.Decimal `json:"amount"`
		Date        time.Time       `json:"date"`
		Type        string          `json:"type"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
	} `json:"transactions"`
}

// NewFromFile builds a store from a JSON seed file. A missing file yields an
// empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}

	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if err := s.Load(seed); err != nil {
		return nil, fmt.Errorf("load seed %s: %w", path, err)
	}
	return s, nil
}

// Load adds every entity in seed.
func (s *Store) Load(seed Seed) error {
	for _, u := range seed.Users {
		s.AddUser(core.User{ID: u.ID, Name: u.Name, Balance: u.Balance})
	}
	for _, b := range seed.Bills {
		if err := s.AddBill(core.Bill{
			ID: b.ID, UserID: b.UserID, Name: b.Name, Amount: b.Amount,
			DueDate: b.DueDate, Status: core.BillStatus(b.Status), Category: core.Linked(b.Category),
		}); err != nil {
			return fmt.Errorf("bill %s: %w", b.ID, err)
		}
	}
	for _, b := range seed.Budgets {
		if err := s.AddBudget(core.Budget{
			ID: b.ID, UserID: b.UserID, Name: b.Name, Amount: b.Amount,
			Spent: b.Spent, AlertThreshold: b.AlertThreshold,
		}); err != nil {
			return fmt.Errorf("budget %s: %w", b.ID, err)
		}
	}
	for _, t := range seed.Transactions {
		if err := s.AddTransaction(core.Transaction{
			ID: t.ID, UserID: t.UserID, Amount: t.Amount, Date: t.Date,
			Type: core.TransactionType(t.Type), Category: core.Linked(t.Category), Description: t.Description,
		}); err != nil {
			return fmt.Errorf("transaction %s: %w", t.ID, err)
		}
	}
	return nil
}
