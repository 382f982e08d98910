// Package api is the client side of the finance service HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/FinKeeper/internal/models"
	"go.uber.org/zap"
)

const (
	pathHealth       = "/api/health"
	pathMe           = "/api/me"
	pathTransactions = "/api/transactions"
	pathCategories   = "/api/categories"
	pathRegister     = "/api/register"
	pathLogin        = "/api/login"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultHealthTimeout  = 5 * time.Second
	DefaultRequestTimeout = 15 * time.Second
)

// SortDateDesc orders transactions newest first.
const SortDateDesc = "-date"

// TokenSource supplies the bearer token of the current session.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the token.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Options tunes a Client.
type Options struct {
	// HealthTimeout bounds a single health probe.
	HealthTimeout time.Duration
	// RequestTimeout bounds every other request attempt.
	RequestTimeout time.Duration
	// Retries is how many extra attempts an idempotent request gets after a
	// network failure. Attempts are made back to back.
	Retries int
	Logger  *zap.Logger
}

// Client calls the finance service.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	opts    Options
	log     *zap.Logger
}

// New returns a Client for baseURL. A nil hc uses http.DefaultClient; a nil
// tokens sends requests without credentials.
func New(baseURL string, hc *http.Client, tokens TokenSource, opts Options) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = DefaultHealthTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		tokens:  tokens,
		opts:    opts,
		log:     log,
	}
}

// TransactionQuery selects transactions by date range.
type TransactionQuery struct {
	From models.Date
	To   models.Date
	Sort string
}

// Health probes the liveness endpoint. Any 2xx within HealthTimeout means reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodGet, path: pathHealth, timeout: c.opts.HealthTimeout})
}

// Me returns the profile of the session owner.
func (c *Client) Me(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	err := c.do(ctx, request{method: http.MethodGet, path: pathMe, auth: true, idempotent: true, out: &p})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateTransaction submits n and returns the stored record. It is never
// retried automatically.
func (c *Client) CreateTransaction(ctx context.Context, n models.NewTransaction) (*models.Transaction, error) {
	var t models.Transaction
	err := c.do(ctx, request{method: http.MethodPost, path: pathTransactions, auth: true, in: n, out: &t})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransactions returns the transactions within q's date range.
func (c *Client) ListTransactions(ctx context.Context, q TransactionQuery) ([]models.Transaction, error) {
	v := url.Values{}
	if !q.From.IsZero() {
		v.Set("from", q.From.String())
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.String())
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	path := pathTransactions
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out []models.Transaction
	err := c.do(ctx, request{method: http.MethodGet, path: path, auth: true, idempotent: true, out: &out})
	return out, err
}

// ListCategories returns the user's categories.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	err := c.do(ctx, request{method: http.MethodGet, path: pathCategories, auth: true, idempotent: true, out: &out})
	return out, err
}

// Register creates an account and returns its session token.
func (c *Client) Register(ctx context.Context, login, name, email string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	in := map[string]string{"login": login, "name": name, "email": email}
	if err := c.do(ctx, request{method: http.MethodPost, path: pathRegister, in: in, out: &resp}); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Login opens a new session for login and returns its token.
func (c *Client) Login(ctx context.Context, login string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	in := map[string]string{"login": login}
	if err := c.do(ctx, request{method: http.MethodPost, path: pathLogin, in: in, out: &resp}); err != nil {
		return "", err
	}
	return resp.Token, nil
}

type request struct {
	method     string
	path       string
	auth       bool
	idempotent bool
	timeout    time.Duration
	in         any
	out        any
}

func (c *Client) do(ctx context.Context, r request) error {
	var body []byte
	if r.in != nil {
		b, err := json.Marshal(r.in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}

	attempts := 1
	if r.idempotent {
		attempts += c.opts.Retries
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = c.doOnce(ctx, r, body)
		if err == nil || !IsNetworkError(err) || ctx.Err() != nil {
			return err
		}
		c.log.Debug("request failed, retrying",
			zap.String("path", r.path), zap.Int("attempt", i+1), zap.Error(err))
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, r request, body []byte) error {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.opts.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if r.auth && c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("session token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: r.method + " " + r.path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if r.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
		if ctx.Err() != nil {
			return &NetworkError{Op: "read " + r.path, Err: ctx.Err()}
		}
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}
