// Package service provides the business logic of the finance service,
// delegating persistence to repository interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/FinKeeper/internal/models"
	"github.com/google/uuid"
)

// DefaultCurrency is assigned to new accounts.
const DefaultCurrency = "USD"

// ErrUnauthorized is returned for unknown logins and invalid or expired tokens.
var ErrUnauthorized = errors.New("unauthorized")

// defaultCategories are created for every new account.
var defaultCategories = []struct {
	name string
	typ  models.TransactionType
}{
	{"Salary", models.Income},
	{"Gifts", models.Income},
	{"Food", models.Expense},
	{"Transport", models.Expense},
	{"Housing", models.Expense},
	{"Entertainment", models.Expense},
	{"Health", models.Expense},
}

// AuthRepository defines the persistence operations
// required by the authentication service.
type AuthRepository interface {
	// UserExists returns true if a user with the given login exists.
	UserExists(ctx context.Context, login string) (bool, error)
	// CreateUser stores a user with its starter categories.
	CreateUser(ctx context.Context, u models.User, categories []models.Category) error
	// UserByLogin returns models.ErrNotFound for unknown logins.
	UserByLogin(ctx context.Context, login string) (*models.Profile, error)
	CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error
	// SessionUser returns models.ErrNotFound when the token is unknown or expired.
	SessionUser(ctx context.Context, token string, now time.Time) (*models.Profile, error)
}

// Service implements registration, login and session lookup.
type Service struct {
	// repo performs the data-layer operations.
	repo AuthRepository
	ttl  time.Duration
	// now and newID are replaceable in tests.
	now   func() time.Time
	newID func() string
}

// NewAuthService constructs a new Service issuing sessions valid for ttl.
func NewAuthService(repo AuthRepository, ttl time.Duration) *Service {
	return &Service{repo: repo, ttl: ttl, now: time.Now, newID: uuid.NewString}
}

// UserExists checks whether a user with the specified login exists.
func (s *Service) UserExists(ctx context.Context, login string) (bool, error) {
	return s.repo.UserExists(ctx, login)
}

// Register creates an account with the default categories and returns a
// session token for it.
func (s *Service) Register(ctx context.Context, login, name, email string) (string, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return "", fmt.Errorf("%w: login is required", ErrValidation)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = login
	}

	now := s.now().UTC()
	u := models.User{
		ID:       s.newID(),
		Login:    login,
		Name:     name,
		Email:    strings.TrimSpace(email),
		Currency: DefaultCurrency,
	}
	cats := make([]models.Category, 0, len(defaultCategories))
	for _, c := range defaultCategories {
		cats = append(cats, models.Category{
			ID:        s.newID(),
			Name:      c.name,
			Type:      c.typ,
			IsDefault: true,
			UpdatedAt: now,
		})
	}
	if err := s.repo.CreateUser(ctx, u, cats); err != nil {
		return "", err
	}
	return s.issue(ctx, u.ID)
}

// Login issues a new session token for an existing login.
func (s *Service) Login(ctx context.Context, login string) (string, error) {
	p, err := s.repo.UserByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", err
	}
	return s.issue(ctx, p.ID)
}

// Authenticate resolves a bearer token to the profile of its owner.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Profile, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	p, err := s.repo.SessionUser(ctx, token, s.now().UTC())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) issue(ctx context.Context, userID string) (string, error) {
	token := s.newID()
	if err := s.repo.CreateSession(ctx, token, userID, s.now().UTC().Add(s.ttl)); err != nil {
		return "", err
	}
	return token, nil
}
