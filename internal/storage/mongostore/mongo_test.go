package mongostore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"

	"finreport/internal/core"
)

func TestBillDocRoundTripThroughBSON(t *testing.T) {
	due := time.Date(2025, time.May, 3, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		bill core.Bill
	}{
		{"linked", core.Bill{ID: "b1", UserID: "u1", Name: "Rent", Amount: decimal.RequireFromString("5000000.25"), DueDate: due, Status: core.BillPaid, Category: core.Linked("Housing")}},
		{"unlinked", core.Bill{ID: "b2", UserID: "u1", Name: "Misc", Amount: decimal.NewFromInt(10), DueDate: due, Status: core.BillOverdue}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := bson.Marshal(toBillDoc(tt.bill))
			if err != nil {
				t.Fatalf("bson.Marshal() error = %v", err)
			}
			var doc billDoc
			if err := bson.Unmarshal(raw, &doc); err != nil {
				t.Fatalf("bson.Unmarshal() error = %v", err)
			}
			got, err := doc.bill()
			if err != nil {
				t.Fatalf("bill() error = %v", err)
			}
			if !got.Amount.Equal(tt.bill.Amount) || !got.DueDate.Equal(due) || got.Category != tt.bill.Category || got.Status != tt.bill.Status {
				t.Errorf("round trip = %+v, want %+v", got, tt.bill)
			}
		})
	}
}

func TestUnlinkedCategoryOmittedFromDocument(t *testing.T) {
	raw, err := bson.Marshal(toTransactionDoc(core.Transaction{ID: "t1", Amount: decimal.NewFromInt(1), Date: time.Now()}))
	if err != nil {
		t.Fatalf("bson.Marshal() error = %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("bson.Unmarshal() error = %v", err)
	}
	if _, ok := m["category"]; ok {
		t.Errorf("document %v carries a category for an unlinked transaction", m)
	}
}

func TestBudgetDocRejectsCorruptAmounts(t *testing.T) {
	_, err := budgetDoc{ID: "g1", Amount: "abc", Spent: "0"}.budget()
	if err == nil {
		t.Fatal("budget() accepted a non-numeric amount")
	}
	b, err := toBudgetDoc(core.Budget{ID: "g2", Amount: decimal.NewFromInt(100), Spent: decimal.NewFromInt(95), AlertThreshold: 80}).budget()
	if err != nil || b.AlertThreshold != 80 || !b.Spent.Equal(decimal.NewFromInt(95)) {
		t.Errorf("budget() = %+v, %v", b, err)
	}
}

func TestReportDocDecodesPayload(t *testing.T) {
	_, err := reportDoc{ID: "r1", Payload: "{"}.report()
	if err == nil {
		t.Fatal("report() accepted a truncated payload")
	}
	r, err := reportDoc{ID: "r2", Payload: `{"id":"r2","userId":"u1","period":"month","savingsRate":12.5}`}.report()
	if err != nil || r.Period != core.Month || r.SavingsRate != 12.5 {
		t.Errorf("report() = %+v, %v", r, err)
	}
}
