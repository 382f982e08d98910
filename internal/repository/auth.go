// Package repository provides PostgreSQL persistence for the finance service.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/FinKeeper/internal/models"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PostgresAuthRepository stores users and their sessions.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuthRepository creates a new PostgresAuthRepository with the given database connection.
// db must be a valid *sql.DB connected to a PostgreSQL instance.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

// UserExists checks whether a user with the specified login exists in the database.
func (s *PostgresAuthRepository) UserExists(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE login = $1)`,
		login,
	).Scan(&exists)
	return exists, err
}

// CreateUser inserts the user together with its starter categories in one
// transaction. A taken login yields models.ErrAlreadyExists.
func (s *PostgresAuthRepository) CreateUser(ctx context.Context, u models.User, categories []models.Category) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, login, name, email, currency) VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Login, u.Name, nullString(u.Email), u.Currency)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", u.Login, models.ErrAlreadyExists)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	for _, c := range categories {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, user_id, name, type, is_default, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, u.ID, c.Name, c.Type, c.IsDefault, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert category %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const profileColumns = `u.id, u.login, u.name, u.email, u.currency, u.updated_at`

func scanProfile(row *sql.Row) (*models.Profile, error) {
	var (
		p     models.Profile
		email sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Login, &p.Name, &email, &p.Currency, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	p.Email = email.String
	return &p, nil
}

// UserByLogin returns the profile of the user with the given login.
func (s *PostgresAuthRepository) UserByLogin(ctx context.Context, login string) (*models.Profile, error) {
	return scanProfile(s.DB.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM users u WHERE u.login = $1`, login))
}

// CreateSession stores a bearer token for userID.
func (s *PostgresAuthRepository) CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionUser resolves a token that is still valid at now.
func (s *PostgresAuthRepository) SessionUser(ctx context.Context, token string, now time.Time) (*models.Profile, error) {
	return scanProfile(s.DB.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		  FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.token = $1 AND s.expires_at > $2
	`, token, now))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
