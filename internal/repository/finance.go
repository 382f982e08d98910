package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/FinKeeper/internal/models"
)

// PostgresFinanceRepository stores transactions and categories.
type PostgresFinanceRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresFinanceRepository creates a new PostgresFinanceRepository using the provided *sql.DB.
func NewPostgresFinanceRepository(db *sql.DB) *PostgresFinanceRepository {
	return &PostgresFinanceRepository{DB: db}
}

// InsertTransaction stores t for userID. t.ID and the timestamps must be set.
func (s *PostgresFinanceRepository) InsertTransaction(ctx context.Context, userID string, t models.Transaction) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, type, category_id, date, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, userID, t.Amount, t.Type, nullString(t.CategoryID), t.Date, nullString(t.Note), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("InsertTransaction: %w", err)
	}
	return nil
}

// ListTransactions returns the user's transactions between from and to
// inclusive. A zero bound is open. desc orders newest date first.
func (s *PostgresFinanceRepository) ListTransactions(ctx context.Context, userID string, from, to models.Date, desc bool) ([]models.Transaction, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT t.id, t.amount, t.type, t.category_id, c.name, t.date, t.note, t.created_at, t.updated_at
		  FROM transactions t LEFT JOIN categories c ON c.id = t.category_id
		 WHERE t.user_id = $1
		   AND ($2::date IS NULL OR t.date >= $2)
		   AND ($3::date IS NULL OR t.date <= $3)
		 ORDER BY t.date `+order+`, t.created_at `+order, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		var (
			t                         models.Transaction
			categoryID, catName, note sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Amount, &t.Type, &categoryID, &catName, &t.Date, &note, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		t.CategoryID = categoryID.String
		t.CategoryName = catName.String
		t.Note = note.String
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return txs, nil
}

// Categories returns every category owned by userID, defaults first.
func (s *PostgresFinanceRepository) Categories(ctx context.Context, userID string) ([]models.Category, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, type, is_default, updated_at FROM categories
		 WHERE user_id = $1
		 ORDER BY is_default DESC, name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("Categories: %w", err)
	}
	defer rows.Close()

	cats := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.IsDefault, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Categories: %w", err)
	}
	return cats, nil
}

// CategoryByID fetches one of the user's categories.
func (s *PostgresFinanceRepository) CategoryByID(ctx context.Context, userID, id string) (*models.Category, error) {
	var c models.Category
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, name, type, is_default, updated_at FROM categories
		 WHERE user_id = $1 AND id = $2
	`, userID, id).Scan(&c.ID, &c.Name, &c.Type, &c.IsDefault, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("CategoryByID: %w", err)
	}
	return &c, nil
}
