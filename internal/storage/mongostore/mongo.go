// Package mongostore is a MongoDB ledger and report store.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"finreport/internal/core"
)

// Collection names.
const (
	UsersCollection        = "users"
	BillsCollection        = "bills"
	BudgetsCollection      = "budgets"
	TransactionsCollection = "transactions"
	ReportsCollection      = "reports"
)

// DB implements ports.LedgerReader and ports.ReportStore over MongoDB.
type DB struct {
	client       *mongo.Client
	users        *mongo.Collection
	bills        *mongo.Collection
	budgets      *mongo.Collection
	transactions *mongo.Collection
	reports      *mongo.Collection
	now          func() time.Time
}

// New connects to uri and uses database dbName.
func New(ctx context.Context, uri, dbName string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	database := client.Database(dbName)
	db := &DB{
		client:       client,
		users:        database.Collection(UsersCollection),
		bills:        database.Collection(BillsCollection),
		budgets:      database.Collection(BudgetsCollection),
		transactions: database.Collection(TransactionsCollection),
		reports:      database.Collection(ReportsCollection),
		now:          time.Now,
	}
	if err := db.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return db, nil
}

func (db *DB) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection]bson.D{
		db.bills:        {{Key: "userId", Value: 1}, {Key: "dueDate", Value: 1}},
		db.budgets:      {{Key: "userId", Value: 1}},
		db.transactions: {{Key: "userId", Value: 1}, {Key: "date", Value: 1}},
		db.reports:      {{Key: "userId", Value: 1}, {Key: "generatedAt", Value: -1}},
	}
	for coll, keys := range indexes {
		if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys}); err != nil {
			return fmt.Errorf("create index on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// Close disconnects the client.
func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

type userDoc struct {
	ID      string `bson:"_id"`
	Name    string `bson:"name"`
	Balance string `bson:"balance"`
}

type billDoc struct {
	ID       string    `bson:"_id"`
	UserID   string    `bson:"userId"`
	Name     string    `bson:"name"`
	Amount   string    `bson:"amount"`
	DueDate  time.Time `bson:"dueDate"`
	Status   string    `bson:"status"`
	Category *string   `bson:"category,omitempty"`
}

type budgetDoc struct {
	ID             string  `bson:"_id"`
	UserID         string  `bson:"userId"`
	Name           string  `bson:"name"`
	Amount         string  `bson:"amount"`
	Spent          string  `bson:"spent"`
	AlertThreshold float64 `bson:"alertThreshold"`
}

type transactionDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"userId"`
	Amount      string    `bson:"amount"`
	Date        time.Time `bson:"date"`
	Type        string    `bson:"type"`
	Category    *string   `bson:"category,omitempty"`
	Description string    `bson:"description"`
}

type reportDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"userId"`
	Period      string    `bson:"period"`
	GeneratedAt time.Time `bson:"generatedAt"`
	Payload     string    `bson:"payload"`
}

func categoryPtr(c core.CategoryRef) *string {
	if name, ok := c.Name(); ok {
		return &name
	}
	return nil
}

func categoryFrom(p *string) core.CategoryRef {
	if p == nil {
		return core.Unlinked()
	}
	return core.Linked(*p)
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d, nil
}

func toBillDoc(b core.Bill) billDoc {
	return billDoc{
		ID: b.ID, UserID: b.UserID, Name: b.Name, Amount: b.Amount.String(),
		DueDate: b.DueDate.UTC(), Status: string(b.Status), Category: categoryPtr(b.Category),
	}
}

func (d billDoc) bill() (core.Bill, error) {
	amount, err := parseAmount("amount", d.Amount)
	if err != nil {
		return core.Bill{}, err
	}
	return core.Bill{
		ID: d.ID, UserID: d.UserID, Name: d.Name, Amount: amount,
		DueDate: d.DueDate.UTC(), Status: core.BillStatus(d.Status), Category: categoryFrom(d.Category),
	}, nil
}

func toBudgetDoc(b core.Budget) budgetDoc {
	return budgetDoc{
		ID: b.ID, UserID: b.UserID, Name: b.Name, Amount: b.Amount.String(),
		Spent: b.Spent.String(), AlertThreshold: b.AlertThreshold,
	}
}

func (d budgetDoc) budget() (core.Budget, error) {
	amount, err := parseAmount("amount", d.Amount)
	if err != nil {
		return core.Budget{}, err
	}
	spent, err := parseAmount("spent", d.Spent)
	if err != nil {
		return core.Budget{}, err
	}
	return core.Budget{
		ID: d.ID, UserID: d.UserID, Name: d.Name, Amount: amount, Spent: spent, AlertThreshold: d.AlertThreshold,
	}, nil
}

func toTransactionDoc(t core.Transaction) transactionDoc {
	return transactionDoc{
		ID: t.ID, UserID: t.UserID, Amount: t.Amount.String(), Date: t.Date.UTC(),
		Type: string(t.Type), Category: categoryPtr(t.Category), Description: t.Description,
	}
}

func (d transactionDoc) transaction() (core.Transaction, error) {
	amount, err := parseAmount("amount", d.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID: d.ID, UserID: d.UserID, Amount: amount, Date: d.Date.UTC(),
		Type: core.TransactionType(d.Type), Category: categoryFrom(d.Category), Description: d.Description,
	}, nil
}

func upsert(ctx context.Context, coll *mongo.Collection, id string, doc any) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

// SaveUser inserts or replaces a user.
func (db *DB) SaveUser(ctx context.Context, u core.User) error {
	if err := upsert(ctx, db.users, u.ID, userDoc{ID: u.ID, Name: u.Name, Balance: u.Balance.String()}); err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

// SaveBill inserts or replaces a bill.
func (db *DB) SaveBill(ctx context.Context, b core.Bill) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("bill %s: %w", b.ID, err)
	}
	if err := upsert(ctx, db.bills, b.ID, toBillDoc(b)); err != nil {
		return fmt.Errorf("save bill %s: %w", b.ID, err)
	}
	return nil
}

// SaveBudget inserts or replaces a budget.
func (db *DB) SaveBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("budget %s: %w", b.ID, err)
	}
	if err := upsert(ctx, db.budgets, b.ID, toBudgetDoc(b)); err != nil {
		return fmt.Errorf("save budget %s: %w", b.ID, err)
	}
	return nil
}

// SaveTransaction inserts or replaces a transaction.
func (db *DB) SaveTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	if err := upsert(ctx, db.transactions, t.ID, toTransactionDoc(t)); err != nil {
		return fmt.Errorf("save transaction %s: %w", t.ID, err)
	}
	return nil
}

// User implements ports.UserReader.
func (db *DB) User(ctx context.Context, userID string) (core.User, error) {
	var doc userDoc
	err := db.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.User{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("find user %s: %w", userID, err)
	}
	balance, err := parseAmount("balance", doc.Balance)
	if err != nil {
		return core.User{}, err
	}
	return core.User{ID: doc.ID, Name: doc.Name, Balance: balance}, nil
}

// ListUserIDs implements ports.UserReader.
func (db *DB) ListUserIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := db.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode user id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, cursor.Err()
}

func rangeFilter(userID, field string, start, end time.Time) bson.M {
	return bson.M{
		"userId": userID,
		field:    bson.M{"$gte": start.UTC(), "$lte": end.UTC()},
	}
}

// BillsInRange implements ports.BillReader.
func (db *DB) BillsInRange(ctx context.Context, userID string, start, end time.Time) ([]core.Bill, error) {
	opts := options.Find().SetSort(bson.D{{Key: "dueDate", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := db.bills.Find(ctx, rangeFilter(userID, "dueDate", start, end), opts)
	if err != nil {
		return nil, fmt.Errorf("find bills: %w", err)
	}
	defer cursor.Close(ctx)

	var out []core.Bill
	for cursor.Next(ctx) {
		var doc billDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode bill: %w", err)
		}
		b, err := doc.bill()
		if err != nil {
			return nil, fmt.Errorf("bill %s: %w", doc.ID, err)
		}
		out = append(out, b)
	}
	return out, cursor.Err()
}

// Budgets implements ports.BudgetReader.
func (db *DB) Budgets(ctx context.Context, userID string) ([]core.Budget, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := db.budgets.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find budgets: %w", err)
	}
	defer cursor.Close(ctx)

	var out []core.Budget
	for cursor.Next(ctx) {
		var doc budgetDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode budget: %w", err)
		}
		b, err := doc.budget()
		if err != nil {
			return nil, fmt.Errorf("budget %s: %w", doc.ID, err)
		}
		out = append(out, b)
	}
	return out, cursor.Err()
}

// TransactionsInRange implements ports.TransactionReader.
func (db *DB) TransactionsInRange(ctx context.Context, userID string, start, end time.Time) ([]core.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := db.transactions.Find(ctx, rangeFilter(userID, "date", start, end), opts)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []core.Transaction
	for cursor.Next(ctx) {
		var doc transactionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		t, err := doc.transaction()
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", doc.ID, err)
		}
		out = append(out, t)
	}
	return out, cursor.Err()
}

// SaveReport implements ports.ReportStore with a single InsertOne.
func (db *DB) SaveReport(ctx context.Context, r core.FinancialReport) (core.FinancialReport, error) {
	r.ID = uuid.NewString()
	r.GeneratedAt = db.now().UTC()
	payload, err := json.Marshal(r)
	if err != nil {
		return core.FinancialReport{}, fmt.Errorf("encode report: %w", err)
	}
	doc := reportDoc{
		ID: r.ID, UserID: r.UserID, Period: string(r.Period),
		GeneratedAt: r.GeneratedAt, Payload: string(payload),
	}
	if _, err := db.reports.InsertOne(ctx, doc); err != nil {
		return core.FinancialReport{}, fmt.Errorf("insert report: %w", err)
	}
	return r, nil
}

// GetReport implements ports.ReportStore.
func (db *DB) GetReport(ctx context.Context, id string) (core.FinancialReport, error) {
	var doc reportDoc
	err := db.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.FinancialReport{}, fmt.Errorf("%w: %s", core.ErrReportNotFound, id)
	}
	if err != nil {
		return core.FinancialReport{}, fmt.Errorf("find report %s: %w", id, err)
	}
	return doc.report()
}

// ListReports implements ports.ReportStore, newest first.
func (db *DB) ListReports(ctx context.Context, userID string, limit int) ([]core.FinancialReport, error) {
	opts := options.Find().SetSort(bson.D{{Key: "generatedAt", Value: -1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := db.reports.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find reports: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]core.FinancialReport, 0)
	for cursor.Next(ctx) {
		var doc reportDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		r, err := doc.report()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, cursor.Err()
}

func (d reportDoc) report() (core.FinancialReport, error) {
	var r core.FinancialReport
	if err := json.Unmarshal([]byte(d.Payload), &r); err != nil {
		return core.FinancialReport{}, fmt.Errorf("decode report %s: %w", d.ID, err)
	}
	return r, nil
}
