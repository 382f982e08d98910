package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/FinKeeper/internal/client/mode"
	"github.com/atinyakov/FinKeeper/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer is written by background goroutines while the test reads it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// financeServer accepts the token "tok-ann" and keeps transactions in memory.
type financeServer struct {
	mu  sync.Mutex
	txs []models.Transaction
}

func (f *financeServer) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok-ann" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Login string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Login != "ann" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "tok-ann"})
	})
	mux.HandleFunc("GET /api/me", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.Profile{ID: "u1", Login: "ann", Name: "Ann", Currency: "EUR"})
	}))
	mux.HandleFunc("GET /api/categories", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []models.Category{{ID: "c1", Name: "Food", Type: models.Expense, IsDefault: true}})
	}))
	mux.HandleFunc("POST /api/transactions", authed(func(w http.ResponseWriter, r *http.Request) {
		var n models.NewTransaction
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		f.mu.Lock()
		t := models.Transaction{
			ID:         fmt.Sprintf("t%d", len(f.txs)+1),
			Amount:     n.Amount,
			Type:       n.Type,
			CategoryID: n.CategoryID,
			Date:       n.Date,
			Note:       n.Note,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		if n.CategoryID == "c1" {
			t.CategoryName = "Food"
		}
		f.txs = append(f.txs, t)
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, t)
	}))
	mux.HandleFunc("GET /api/transactions", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, append([]models.Transaction{}, f.txs...))
	}))
	return mux
}

type harness struct {
	t      *testing.T
	server string
	db     string
}

func newHarness(t *testing.T, serverURL string) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("FINKEEPER_CONFIG", "")
	t.Setenv("FINKEEPER_LOG_FILE", filepath.Join(dir, "client.log"))
	t.Setenv("FINKEEPER_SESSION_TOKEN_FILE", filepath.Join(dir, "session"))
	return &harness{t: t, server: serverURL, db: filepath.Join(dir, "cache.db")}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommand(BuildInfo{Version: "test", Date: "now"})
	out := &lockedBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", h.server, "--db", h.db}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func closedServerURL(t *testing.T) string {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func TestCLI_OfflineAddAndInspect(t *testing.T) {
	h := newHarness(t, closedServerURL(t))

	out, err := h.run("", "add", "--amount", "12.5", "--note", "lunch", "--sync")
	require.NoError(t, err)
	assert.Contains(t, out, "queued")
	assert.Contains(t, out, "12.50")
	assert.Contains(t, out, "not signed in")

	out, err = h.run("", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "lunch")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "income 0.00, expense 12.50")

	out, err = h.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "mode:      offline")
	assert.Contains(t, out, "pending:   1")
	assert.Contains(t, out, "last sync: never")

	out, err = h.run("", "caps")
	require.NoError(t, err)
	assert.Regexp(t, `add transaction\s+yes`, out)
	assert.Regexp(t, `edit transaction\s+no`, out)
	assert.Regexp(t, `profile settings\s+no`, out)

	out, err = h.run("", "dump", "transactions")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "pending"`)

	_, err = h.run("", "dump", "secrets")
	assert.ErrorContains(t, err, "known: transactions")

	_, err = h.run("", "add", "--amount", "-3")
	assert.Error(t, err)
	_, err = h.run("", "add", "--amount", "3", "--type", "gift")
	assert.Error(t, err)
}

func TestCLI_LoginAddSync(t *testing.T) {
	fs := &financeServer{}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)
	h := newHarness(t, srv.URL)

	_, err := h.run("", "sync")
	assert.ErrorIs(t, err, errNotSignedIn)

	_, err = h.run("", "login", "bob")
	assert.Error(t, err)

	out, err := h.run("", "login", "ann")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as ann")

	out, err = h.run("", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced: pushed 0, failed 0, 0 transactions, 1 categories")

	_, err = h.run("", "add", "--amount", "4", "--type", "income", "--category", "food")
	assert.ErrorContains(t, err, "is for expense")

	out, err = h.run("", "add", "--amount", "12.50", "--category", "food", "--note", "lunch")
	require.NoError(t, err)
	assert.Contains(t, out, "queued")

	out, err = h.run("", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "pushed 1, failed 0, 1 transactions")

	out, err = h.run("", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Food")
	assert.Contains(t, out, "synced")
	assert.NotContains(t, out, "pending")

	out, err = h.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "mode:      online")
	assert.Contains(t, out, "user:      Ann (ann)")
	assert.Contains(t, out, "pending:   0")
	assert.NotContains(t, out, "last sync: never")

	_, err = h.run("", "logout")
	require.NoError(t, err)
	_, err = h.run("", "sync")
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestShell_OfflineSession(t *testing.T) {
	h := newHarness(t, closedServerURL(t))

	script := strings.Join([]string{
		"help",
		"add expense 5 - coffee",
		"add expense",
		"pending",
		"list",
		"profile",
		"caps",
		"net down",
		"bogus",
		"exit",
	}, "\n")
	out, err := h.run(script, "shell")
	require.NoError(t, err)

	assert.Contains(t, out, "not signed in")
	assert.Contains(t, out, "queued")
	assert.Contains(t, out, "Usage: add")
	assert.Contains(t, out, "coffee")
	assert.Contains(t, out, "the transaction list is not available offline")
	assert.Contains(t, out, "the profile is not available offline")
	assert.Regexp(t, `delete transaction\s+no`, out)
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Contains(t, out, "Bye")
}

func TestShell_ConfirmOfflineTakesNextLine(t *testing.T) {
	s := &shell{out: &lockedBuffer{}}
	waiting := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.reply != nil
	}

	assert.False(t, s.answer("y"), "no prompt open")

	got := make(chan mode.Decision, 1)
	go func() { got <- s.ConfirmOffline(context.Background(), "cannot reach server") }()
	require.Eventually(t, waiting, time.Second, time.Millisecond)
	require.True(t, s.answer("r"))
	assert.Equal(t, mode.Retry, <-got)

	go func() { got <- s.ConfirmOffline(context.Background(), "cannot reach server") }()
	require.Eventually(t, waiting, time.Second, time.Millisecond)
	require.True(t, s.answer(""))
	assert.Equal(t, mode.GoOffline, <-got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, mode.GoOffline, s.ConfirmOffline(ctx, "gone"))
	assert.False(t, waiting())
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"12.5", "USD", "$12.50"},
		{"1234.567", "USD", "$1,234.57"},
		{"12.5", "", "12.50"},
		{"12.5", "NOPE", "12.50"},
	}
	for _, tt := range tests {
		t.Run(tt.amount+tt.currency, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAmount(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}
}
