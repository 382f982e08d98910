// Package localstore provides the client's durable cache of transactions,
// categories, profile and key/value metadata.
//
// Two implementations share the Store interface: SQLite, backed by an
// embedded database file, and Memory, an in-process mirror used where no
// embedded database is available.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/FinKeeper/internal/models"
	"github.com/shopspring/decimal"
)

// Table names understood by DumpTable.
const (
	TableTransactions = "transactions"
	TableCategories   = "categories"
	TableProfile      = "profile"
	TableMeta         = "meta"
)

// Tables lists every table in schema order.
var Tables = []string{TableTransactions, TableCategories, TableProfile, TableMeta}

// MetaLastSyncAt holds the RFC 3339 timestamp of the last completed sync.
const MetaLastSyncAt = "lastSyncAt"

var (
	// ErrDuplicateKey is returned when inserting a row whose local id already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidRow is returned when a row violates the pending/synced invariant.
	ErrInvalidRow = errors.New("invalid row")
	// ErrUnknownTable is returned by DumpTable for names outside Tables.
	ErrUnknownTable = errors.New("unknown table")
)

// Status is the sync state of a cached transaction.
type Status string

const (
	// StatusPending marks a locally created row not yet accepted by the server.
	StatusPending Status = "pending"
	// StatusSynced marks a row materialized from the server's authoritative state.
	StatusSynced Status = "synced"
)

// TransactionRow is a cached or locally originated transaction.
type TransactionRow struct {
	LocalID      string
	ServerID     *string
	Type         models.TransactionType
	Amount       decimal.Decimal
	CategoryID   *string
	CategoryName *string
	Note         *string
	Date         models.Date
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CategoryRow mirrors a server category.
type CategoryRow struct {
	ServerID  string
	Name      string
	Type      models.TransactionType
	IsDefault bool
	UpdatedAt time.Time
}

// ProfileRow is the single cached profile of the signed-in user.
type ProfileRow struct {
	UserID    string
	Login     string
	Name      string
	Email     *string
	Currency  *string
	UpdatedAt time.Time
}

// Store is the local persistence contract. Every write is durable before the
// call returns.
type Store interface {
	// EnsureSchema creates missing tables. It is safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	InsertPendingTransaction(ctx context.Context, row TransactionRow) error
	// PendingTransactions returns pending rows ordered by CreatedAt ascending.
	PendingTransactions(ctx context.Context) ([]TransactionRow, error)
	DeleteTransactionByLocalID(ctx context.Context, localID string) error
	// ReplaceSyncedTransactions atomically swaps the synced partition for rows.
	ReplaceSyncedTransactions(ctx context.Context, rows []TransactionRow) error
	// Transactions returns every cached row, newest date first.
	Transactions(ctx context.Context) ([]TransactionRow, error)

	ReplaceCategories(ctx context.Context, rows []CategoryRow) error
	Categories(ctx context.Context) ([]CategoryRow, error)

	UpsertProfile(ctx context.Context, row ProfileRow) error
	// Profile returns the cached profile or nil when none has been stored.
	Profile(ctx context.Context) (*ProfileRow, error)

	MetaValue(ctx context.Context, key string) (string, bool, error)
	SetMetaValue(ctx context.Context, key, value string) error

	// DumpTable returns raw rows for diagnostics. SQL NULL is returned as nil.
	DumpTable(ctx context.Context, table string) ([]map[string]any, error)

	Close() error
}

// SyncedRowID is the local id given to a row materialized from server record id.
// Deriving it from the server id keeps repeated refreshes free of duplicates.
func SyncedRowID(serverID string) string {
	return "srv:" + serverID
}

func checkPending(row TransactionRow) error {
	switch {
	case row.LocalID == "":
		return fmt.Errorf("%w: empty local id", ErrInvalidRow)
	case row.Status != StatusPending:
		return fmt.Errorf("%w: %s has status %q, want pending", ErrInvalidRow, row.LocalID, row.Status)
	case row.ServerID != nil:
		return fmt.Errorf("%w: pending row %s has a server id", ErrInvalidRow, row.LocalID)
	}
	return nil
}

func checkSynced(row TransactionRow) error {
	switch {
	case row.LocalID == "":
		return fmt.Errorf("%w: empty local id", ErrInvalidRow)
	case row.ServerID == nil || *row.ServerID == "":
		return fmt.Errorf("%w: synced row %s has no server id", ErrInvalidRow, row.LocalID)
	}
	return nil
}

func knownTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}

// nullable converts an optional string into a driver value, keeping nil as NULL.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
