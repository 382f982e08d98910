package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/FinKeeper/internal/models"
	"github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	local_id      TEXT PRIMARY KEY,
	server_id     TEXT,
	type          TEXT NOT NULL CHECK (type IN ('income', 'expense')),
	amount        TEXT NOT NULL,
	category_id   TEXT,
	category_name TEXT,
	note          TEXT,
	date          TEXT NOT NULL,
	status        TEXT NOT NULL CHECK (status IN ('pending', 'synced')),
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_status_created ON transactions(status, created_at);

CREATE TABLE IF NOT EXISTS categories (
	server_id  TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS profile (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	user_id    TEXT NOT NULL,
	login      TEXT NOT NULL,
	name       TEXT NOT NULL,
	email      TEXT,
	currency   TEXT,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);
`

const transactionColumns = `local_id, server_id, type, amount, category_id, category_name, note, date, status, created_at, updated_at`

// SQLite is a Store backed by an SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection serializes writers and keeps transactions on a single handle
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the four tables if they do not exist.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, ex execer, row TransactionRow) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.LocalID, nullable(row.ServerID), string(row.Type), row.Amount.String(),
		nullable(row.CategoryID), nullable(row.CategoryName), nullable(row.Note),
		row.Date.String(), string(row.Status),
		row.CreatedAt.UnixNano(), row.UpdatedAt.UnixNano(),
	)
	if isConstraint(err) {
		return fmt.Errorf("insert transaction %s: %w", row.LocalID, ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", row.LocalID, err)
	}
	return nil
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// InsertPendingTransaction stores a new pending row.
func (s *SQLite) InsertPendingTransaction(ctx context.Context, row TransactionRow) error {
	if err := checkPending(row); err != nil {
		return err
	}
	return insertTransaction(ctx, s.db, row)
}

// PendingTransactions returns pending rows in FIFO order.
func (s *SQLite) PendingTransactions(ctx context.Context) ([]TransactionRow, error) {
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = 'pending'
		ORDER BY created_at ASC, rowid ASC
	`)
}

// Transactions returns all cached rows, newest date first and pending rows
// ahead of synced ones on the same day.
func (s *SQLite) Transactions(ctx context.Context) ([]TransactionRow, error) {
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		ORDER BY date DESC, CASE status WHEN 'pending' THEN 0 ELSE 1 END, created_at DESC
	`)
}

func (s *SQLite) queryTransactions(ctx context.Context, query string) ([]TransactionRow, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []TransactionRow
	for rows.Next() {
		var (
			r                        TransactionRow
			serverID, catID, catName sql.NullString
			note                     sql.NullString
			typ, status              string
			createdAt, updatedAt     int64
		)
		if err := rows.Scan(&r.LocalID, &serverID, &typ, &r.Amount, &catID, &catName, &note,
			&r.Date, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		r.ServerID = fromNull(serverID)
		r.CategoryID = fromNull(catID)
		r.CategoryName = fromNull(catName)
		r.Note = fromNull(note)
		r.Type = models.TransactionType(typ)
		r.Status = Status(status)
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		r.UpdatedAt = time.Unix(0, updatedAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// DeleteTransactionByLocalID removes a row; deleting a missing id is not an error.
func (s *SQLite) DeleteTransactionByLocalID(ctx context.Context, localID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("delete transaction %s: %w", localID, err)
	}
	return nil
}

// ReplaceSyncedTransactions deletes every synced row and inserts rows in one
// transaction, so readers see either the old or the new partition.
func (s *SQLite) ReplaceSyncedTransactions(ctx context.Context, rows []TransactionRow) error {
	for _, r := range rows {
		if err := checkSynced(r); err != nil {
			return err
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE status = 'synced'`); err != nil {
			return fmt.Errorf("clear synced transactions: %w", err)
		}
		for _, r := range rows {
			r.Status = StatusSynced
			if err := insertTransaction(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceCategories swaps the category cache for rows.
func (s *SQLite) ReplaceCategories(ctx context.Context, rows []CategoryRow) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
			return fmt.Errorf("clear categories: %w", err)
		}
		for _, c := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO categories (server_id, name, type, is_default, updated_at)
				VALUES (?, ?, ?, ?, ?)
			`, c.ServerID, c.Name, string(c.Type), c.IsDefault, c.UpdatedAt.UnixNano())
			if isConstraint(err) {
				return fmt.Errorf("insert category %s: %w", c.ServerID, ErrDuplicateKey)
			}
			if err != nil {
				return fmt.Errorf("insert category %s: %w", c.ServerID, err)
			}
		}
		return nil
	})
}

// Categories returns cached categories ordered by type then name.
func (s *SQLite) Categories(ctx context.Context) ([]CategoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server_id, name, type, is_default, updated_at FROM categories ORDER BY type, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []CategoryRow
	for rows.Next() {
		var (
			c         CategoryRow
			typ       string
			updatedAt int64
		)
		if err := rows.Scan(&c.ServerID, &c.Name, &typ, &c.IsDefault, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = models.TransactionType(typ)
		c.UpdatedAt = time.Unix(0, updatedAt).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertProfile replaces the single cached profile.
func (s *SQLite) UpsertProfile(ctx context.Context, p ProfileRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile (id, user_id, login, name, email, currency, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			login = excluded.login,
			name = excluded.name,
			email = excluded.email,
			currency = excluded.currency,
			updated_at = excluded.updated_at
	`, p.UserID, p.Login, p.Name, nullable(p.Email), nullable(p.Currency), p.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Profile returns the cached profile, or nil if none is stored.
func (s *SQLite) Profile(ctx context.Context) (*ProfileRow, error) {
	var (
		p               ProfileRow
		email, currency sql.NullString
		updatedAt       int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, login, name, email, currency, updated_at FROM profile WHERE id = 1
	`).Scan(&p.UserID, &p.Login, &p.Name, &email, &currency, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	p.Email = fromNull(email)
	p.Currency = fromNull(currency)
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &p, nil
}

// MetaValue returns the value stored under key and whether it exists.
func (s *SQLite) MetaValue(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query meta %s: %w", key, err)
	}
	return v.String, true, nil
}

// SetMetaValue stores value under key, replacing any previous value.
func (s *SQLite) SetMetaValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// DumpTable returns every row of table as column→value maps.
func (s *SQLite) DumpTable(ctx context.Context, table string) ([]map[string]any, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	// table is checked against a fixed list above
	rows, err := s.db.QueryContext(ctx, `SELECT * FROM `+table+` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dump %s columns: %w", table, err)
	}

	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dump %s scan: %w", table, err)
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
