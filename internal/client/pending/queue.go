// Package pending implements the client's queue of transactions created
// locally and not yet accepted by the finance service.
package pending

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/FinKeeper/internal/client/localstore"
	"github.com/atinyakov/FinKeeper/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidDraft is returned when a draft fails validation.
var ErrInvalidDraft = errors.New("invalid transaction")

// Draft is a transaction as entered by the user.
type Draft struct {
	Type         models.TransactionType
	Amount       decimal.Decimal
	CategoryID   string
	CategoryName string
	Note         string
	Date         models.Date
}

// Queue stores drafts as pending rows in the local store.
type Queue struct {
	store localstore.Store
	now   func() time.Time
	newID func() string
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClock sets the clock used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithIDGenerator sets the local id generator.
func WithIDGenerator(gen func() string) Option {
	return func(q *Queue) { q.newID = gen }
}

// New returns a Queue over store.
func New(store localstore.Store, opts ...Option) *Queue {
	q := &Queue{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue validates d and stores it as a pending row with a fresh local id.
func (q *Queue) Enqueue(ctx context.Context, d Draft) (localstore.TransactionRow, error) {
	if err := validate(d); err != nil {
		return localstore.TransactionRow{}, err
	}
	now := q.now().UTC()
	row := localstore.TransactionRow{
		LocalID:      q.newID(),
		Type:         d.Type,
		Amount:       d.Amount,
		CategoryID:   optional(d.CategoryID),
		CategoryName: optional(d.CategoryName),
		Note:         optional(d.Note),
		Date:         d.Date,
		Status:       localstore.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := q.store.InsertPendingTransaction(ctx, row); err != nil {
		return localstore.TransactionRow{}, fmt.Errorf("enqueue: %w", err)
	}
	return row, nil
}

// Pending returns the queued rows oldest first.
func (q *Queue) Pending(ctx context.Context) ([]localstore.TransactionRow, error) {
	return q.store.PendingTransactions(ctx)
}

// Len returns the number of queued rows.
func (q *Queue) Len(ctx context.Context) (int, error) {
	rows, err := q.store.PendingTransactions(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Ack removes a row the server has accepted.
func (q *Queue) Ack(ctx context.Context, localID string) error {
	return q.store.DeleteTransactionByLocalID(ctx, localID)
}

// Payload converts a queued row into the creation request for the server.
func Payload(row localstore.TransactionRow) models.NewTransaction {
	n := models.NewTransaction{
		Amount: row.Amount,
		Type:   row.Type,
		Date:   row.Date,
	}
	if row.CategoryID != nil {
		n.CategoryID = *row.CategoryID
	}
	if row.Note != nil {
		n.Note = *row.Note
	}
	return n
}

func validate(d Draft) error {
	n := models.NewTransaction{Amount: d.Amount, Type: d.Type, Date: d.Date}
	if err := n.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
