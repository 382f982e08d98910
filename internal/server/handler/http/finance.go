package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/FinKeeper/internal/middleware"
	"github.com/atinyakov/FinKeeper/internal/models"
	"go.uber.org/zap"
)

// FinanceService defines the transaction and category operations required by
// FinanceHandler.
type FinanceService interface {
	CreateTransaction(ctx context.Context, userID string, n models.NewTransaction) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID string, from, to models.Date, sort string) ([]models.Transaction, error)
	Categories(ctx context.Context, userID string) ([]models.Category, error)
}

// FinanceHandler serves the transaction and category endpoints.
type FinanceHandler struct {
	FinanceService FinanceService
	Logger         *zap.Logger
}

// CreateTransaction handles POST /api/transactions and answers 201 with the
// stored record.
func (h *FinanceHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req models.NewTransaction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	userID := middleware.GetUserIDFromContext(r.Context())
	t, err := h.FinanceService.CreateTransaction(r.Context(), userID, req)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListTransactions handles GET /api/transactions?from=&to=&sort=.
func (h *FinanceHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from, to models.Date
	for _, p := range []struct {
		name string
		dst  *models.Date
	}{{"from", &from}, {"to", &to}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		d, err := models.ParseDate(raw)
		if err != nil {
			http.Error(w, "invalid "+p.name+" date", http.StatusBadRequest)
			return
		}
		*p.dst = d
	}

	userID := middleware.GetUserIDFromContext(r.Context())
	txs, err := h.FinanceService.ListTransactions(r.Context(), userID, from, to, q.Get("sort"))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// Categories handles GET /api/categories.
func (h *FinanceHandler) Categories(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	cats, err := h.FinanceService.Categories(r.Context(), userID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}
