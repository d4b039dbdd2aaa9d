// Package core holds the domain entities, report aggregates and sentinel
// errors shared by the report engine.
package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

const (
	BillPaid    BillStatus = "paid"
	BillPending BillStatus = "pending"
	BillOverdue BillStatus = "overdue"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// UncategorizedLabel names spending whose bill is not linked to a category.
const UncategorizedLabel = "Uncategorized"

type (
	Period          string
	BillStatus      string
	TransactionType string

	// DateRange is an inclusive [Start, End] window.
	DateRange struct {
		Start time.Time
		End   time.Time
	}

	User struct {
		ID      string
		Name    string
		Balance decimal.Decimal
	}

	Bill struct {
		ID       string
		UserID   string
		Name     string
		Amount   decimal.Decimal
		DueDate  time.Time
		Status   BillStatus
		Category CategoryRef
	}

	Budget struct {
		ID     string
		UserID string
		Name   string
		Amount decimal.Decimal
		Spent  decimal.Decimal
		// AlertThreshold is a percentage of Amount (e.g. 80).
		AlertThreshold float64
	}

	Transaction struct {
		ID          string
		UserID      string
		Amount      decimal.Decimal
		Date        time.Time
		Type        TransactionType
		Category    CategoryRef
		Description string
	}
)

var (
	ErrInvalidPeriod          = errors.New("invalid period")
	ErrUserNotFound           = errors.New("user not found")
	ErrReportNotFound         = errors.New("report not found")
	ErrReportGenerationFailed = errors.New("report generation failed")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidDateRange       = errors.New("invalid date range")
	ErrEmptyUserID            = errors.New("empty user id")
)

// ParsePeriod converts a symbolic period into a Period.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", ErrInvalidPeriod
	}
	return p, nil
}

func (p Period) IsValid() bool {
	switch p {
	case Week, Month, Year:
		return true
	default:
		return false
	}
}

func (p Period) String() string {
	return string(p)
}

// Contains reports whether t falls inside the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidDateRange
	}
	if r.End.Before(r.Start) {
		return ErrInvalidDateRange
	}
	return nil
}

func (b Bill) IsPaid() bool {
	return b.Status == BillPaid
}

func (b Bill) Validate() error {
	if b.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (b Budget) Validate() error {
	if b.Amount.IsNegative() || b.Spent.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) IsIncome() bool {
	return t.Type == Income
}

func (t Transaction) Validate() error {
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if t.Date.IsZero() {
		return errors.New("transaction date cannot be zero")
	}
	return nil
}
