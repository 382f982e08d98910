package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/FinKeeper/internal/models"
	"github.com/lib/pq"
)

func setupAuthMock(t *testing.T) (*PostgresAuthRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresAuthRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

var profileRows = []string{"id", "login", "name", "email", "currency", "updated_at"}

func TestUserExists_True(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	login := "user1"
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE login = $1)`)).
		WithArgs(login).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.UserExists(context.Background(), login)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Errorf("expected user to exist, got false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUserExists_Error(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE login = $1)`)).
		WithArgs("user3").
		WillReturnError(errors.New("query failed"))

	if _, err := repo.UserExists(context.Background(), "user3"); err == nil {
		t.Errorf("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateUser_WithCategories(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	u := models.User{ID: "u1", Login: "ann", Name: "Ann", Currency: "EUR"}
	cats := []models.Category{
		{ID: "c1", Name: "Salary", Type: models.Income, IsDefault: true, UpdatedAt: now},
		{ID: "c2", Name: "Food", Type: models.Expense, IsDefault: true, UpdatedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (id, login, name, email, currency)`)).
		WithArgs("u1", "ann", "Ann", nil, "EUR").
		WillReturnResult(sqlmock.NewResult(1, 1))
	for _, c := range cats {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO categories`)).
			WithArgs(c.ID, "u1", c.Name, c.Type, true, now).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	if err := repo.CreateUser(context.Background(), u, cats); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	err := repo.CreateUser(context.Background(), models.User{ID: "u1", Login: "ann"}, nil)
	if !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateUser_CategoryFailureRollsBack(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO categories`)).
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	err := repo.CreateUser(context.Background(), models.User{ID: "u1", Login: "ann"},
		[]models.Category{{ID: "c1", Name: "Food", Type: models.Expense}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUserByLogin(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	updated := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users u WHERE u.login = $1`)).
		WithArgs("ann").
		WillReturnRows(sqlmock.NewRows(profileRows).AddRow("u1", "ann", "Ann", nil, "EUR", updated))

	p, err := repo.UserByLogin(context.Background(), "ann")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.Profile{ID: "u1", Login: "ann", Name: "Ann", Currency: "EUR", UpdatedAt: updated}
	if *p != want {
		t.Errorf("profile = %+v; want %+v", *p, want)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users u WHERE u.login = $1`)).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows(profileRows))
	if _, err := repo.UserByLogin(context.Background(), "bob"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSessions(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)`)).
		WithArgs("tok", "u1", expires).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM sessions s JOIN users u ON u.id = s.user_id`)).
		WithArgs("tok", now).
		WillReturnRows(sqlmock.NewRows(profileRows).AddRow("u1", "ann", "Ann", "ann@example.com", "EUR", now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM sessions s JOIN users u ON u.id = s.user_id`)).
		WithArgs("expired", now).
		WillReturnRows(sqlmock.NewRows(profileRows))

	if err := repo.CreateSession(context.Background(), "tok", "u1", expires); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	p, err := repo.SessionUser(context.Background(), "tok", now)
	if err != nil {
		t.Fatalf("SessionUser: %v", err)
	}
	if p.Email != "ann@example.com" {
		t.Errorf("email = %q; want ann@example.com", p.Email)
	}
	if _, err := repo.SessionUser(context.Background(), "expired", now); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
