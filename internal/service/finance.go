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

// ErrValidation marks requests rejected because of their content.
var ErrValidation = errors.New("validation failed")

// Sort orders accepted by ListTransactions.
const (
	SortDateAsc  = "date"
	SortDateDesc = "-date"
)

// FinanceRepository defines the persistence operations needed by FinanceService.
type FinanceRepository interface {
	InsertTransaction(ctx context.Context, userID string, t models.Transaction) error
	ListTransactions(ctx context.Context, userID string, from, to models.Date, desc bool) ([]models.Transaction, error)
	Categories(ctx context.Context, userID string) ([]models.Category, error)
	// CategoryByID returns models.ErrNotFound for categories of other users.
	CategoryByID(ctx context.Context, userID, id string) (*models.Category, error)
}

// FinanceService implements the transaction and category endpoints.
type FinanceService struct {
	repo  FinanceRepository
	now   func() time.Time
	newID func() string
}

// NewFinanceService constructs a FinanceService with the provided repository.
func NewFinanceService(repo FinanceRepository) *FinanceService {
	return &FinanceService{repo: repo, now: time.Now, newID: uuid.NewString}
}

// CreateTransaction validates n and stores it as a new record. The category,
// when given, must belong to the user and match the transaction type.
func (s *FinanceService) CreateTransaction(ctx context.Context, userID string, n models.NewTransaction) (*models.Transaction, error) {
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var categoryName string
	if n.CategoryID != "" {
		c, err := s.repo.CategoryByID(ctx, userID, n.CategoryID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, n.CategoryID)
			}
			return nil, err
		}
		if c.Type != n.Type {
			return nil, fmt.Errorf("%w: category %q is for %s", ErrValidation, c.Name, c.Type)
		}
		categoryName = c.Name
	}

	now := s.now().UTC()
	t := models.Transaction{
		ID:           s.newID(),
		Amount:       n.Amount,
		Type:         n.Type,
		CategoryID:   n.CategoryID,
		CategoryName: categoryName,
		Date:         n.Date,
		Note:         strings.TrimSpace(n.Note),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertTransaction(ctx, userID, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransactions returns the user's transactions between from and to
// inclusive, ordered by sort ("date", "-date" or empty for "date").
func (s *FinanceService) ListTransactions(ctx context.Context, userID string, from, to models.Date, sort string) ([]models.Transaction, error) {
	var desc bool
	switch sort {
	case "", SortDateAsc:
	case SortDateDesc:
		desc = true
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", ErrValidation, sort)
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, fmt.Errorf("%w: from %s is after to %s", ErrValidation, from, to)
	}
	return s.repo.ListTransactions(ctx, userID, from, to, desc)
}

// Categories returns the user's categories.
func (s *FinanceService) Categories(ctx context.Context, userID string) ([]models.Category, error) {
	return s.repo.Categories(ctx, userID)
}
