// Package syncer drains the pending queue against the finance service and
// refreshes the local cache from the server's authoritative state.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atinyakov/FinKeeper/internal/client/api"
	"github.com/atinyakov/FinKeeper/internal/client/localstore"
	"github.com/atinyakov/FinKeeper/internal/client/pending"
	"github.com/atinyakov/FinKeeper/internal/client/syncstate"
	"github.com/atinyakov/FinKeeper/internal/models"
	"go.uber.org/zap"
)

// DefaultWindowDays is how many days ahead of today the refresh covers.
const DefaultWindowDays = 7

// Remote is the subset of the finance service used by a sync pass.
type Remote interface {
	CreateTransaction(ctx context.Context, n models.NewTransaction) (*models.Transaction, error)
	ListTransactions(ctx context.Context, q api.TransactionQuery) ([]models.Transaction, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// Config tunes an Engine.
type Config struct {
	// WindowDays is the length of the refresh window starting today.
	WindowDays int
	Logger     *zap.Logger
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// Result summarizes the last completed pass.
type Result struct {
	Pushed     int
	Failed     int
	Refreshed  int
	Categories int
	FinishedAt time.Time
}

// Engine runs sync passes. At most one pass runs at a time per Engine.
type Engine struct {
	store  localstore.Store
	queue  *pending.Queue
	remote Remote
	state  *syncstate.Broadcaster
	log    *zap.Logger
	now    func() time.Time
	window int

	inFlight atomic.Bool

	mu   sync.Mutex
	last Result
}

// New returns an Engine. A nil state gets a private Broadcaster.
func New(store localstore.Store, remote Remote, state *syncstate.Broadcaster, cfg Config) *Engine {
	if state == nil {
		state = syncstate.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultWindowDays
	}
	return &Engine{
		store:  store,
		queue:  pending.New(store),
		remote: remote,
		state:  state,
		log:    cfg.Logger,
		now:    cfg.Now,
		window: cfg.WindowDays,
	}
}

// State returns the Broadcaster the engine reports to.
func (e *Engine) State() *syncstate.Broadcaster { return e.state }

// InFlight reports whether a pass is running.
func (e *Engine) InFlight() bool { return e.inFlight.Load() }

// LastResult returns the summary of the last successful pass.
func (e *Engine) LastResult() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// RunFullSync pushes pending transactions, then replaces the cached
// transactions, categories and, when profile is non-nil, the profile.
//
// A call made while another pass is running returns nil immediately without
// doing anything; callers that need completion should wait on State().
// Individual push failures leave the row queued and do not fail the pass;
// refresh failures and authentication errors do.
func (e *Engine) RunFullSync(ctx context.Context, profile *models.Profile) (err error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.log.Debug("sync already in flight, skipping")
		return nil
	}
	defer func() {
		e.inFlight.Store(false)
		msg := "Synced"
		if err != nil {
			msg = "Sync failed"
		}
		e.state.Publish(syncstate.Syncing(false), syncstate.ClearProgress(), syncstate.Message(msg))
	}()

	started := e.now()
	e.state.Publish(syncstate.Syncing(true), syncstate.ClearProgress(), syncstate.Message("Preparing local cache"))

	if err := e.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("sync: ensure schema: %w", err)
	}

	var res Result
	if res.Pushed, res.Failed, err = e.push(ctx); err != nil {
		return err
	}

	e.state.Publish(syncstate.ClearProgress(), syncstate.Message("Refreshing transactions"))
	if res.Refreshed, err = e.refreshTransactions(ctx); err != nil {
		return fmt.Errorf("sync: refresh transactions: %w", err)
	}

	e.state.Publish(syncstate.Message("Refreshing categories"))
	if res.Categories, err = e.refreshCategories(ctx); err != nil {
		return fmt.Errorf("sync: refresh categories: %w", err)
	}

	if profile != nil {
		if err := e.store.UpsertProfile(ctx, profileRow(profile, e.now())); err != nil {
			return fmt.Errorf("sync: store profile: %w", err)
		}
	}

	res.FinishedAt = e.now().UTC()
	if err := e.store.SetMetaValue(ctx, localstore.MetaLastSyncAt, res.FinishedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("sync: record last sync: %w", err)
	}

	e.mu.Lock()
	e.last = res
	e.mu.Unlock()

	e.log.Info("sync finished",
		zap.Int("pushed", res.Pushed),
		zap.Int("failed", res.Failed),
		zap.Int("refreshed", res.Refreshed),
		zap.Int("categories", res.Categories),
		zap.Duration("took", res.FinishedAt.Sub(started)))
	return nil
}

// push replays the queue oldest first, one request at a time.
func (e *Engine) push(ctx context.Context) (pushed, failed int, err error) {
	rows, err := e.queue.Pending(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("sync: load pending: %w", err)
	}
	total := len(rows)
	if total == 0 {
		return 0, 0, nil
	}

	e.state.Publish(syncstate.Message(fmt.Sprintf("Uploading %d pending transactions", total)), syncstate.Step(0, total))
	for i, row := range rows {
		created, err := e.remote.CreateTransaction(ctx, pending.Payload(row))
		switch {
		case err == nil:
			if err := e.queue.Ack(ctx, row.LocalID); err != nil {
				// the server has the record; the next refresh brings it back as synced
				e.log.Warn("failed to remove pushed transaction",
					zap.String("local_id", row.LocalID), zap.Error(err))
			}
			pushed++
			e.log.Debug("pending transaction pushed",
				zap.String("local_id", row.LocalID), zap.String("server_id", created.ID))
		case api.IsAuthError(err):
			e.state.Publish(syncstate.Step(i+1, total))
			return pushed, failed + 1, fmt.Errorf("sync: push %s: %w", row.LocalID, err)
		default:
			failed++
			e.log.Warn("pending transaction rejected, keeping it queued",
				zap.String("local_id", row.LocalID), zap.Error(err))
		}
		e.state.Publish(syncstate.Step(i+1, total))
	}
	return pushed, failed, nil
}

func (e *Engine) refreshTransactions(ctx context.Context) (int, error) {
	today := models.DateOf(e.now())
	txs, err := e.remote.ListTransactions(ctx, api.TransactionQuery{
		From: today,
		To:   today.AddDays(e.window),
		Sort: api.SortDateDesc,
	})
	if err != nil {
		return 0, err
	}
	rows := make([]localstore.TransactionRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, syncedRow(t, e.now()))
	}
	if err := e.store.ReplaceSyncedTransactions(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (e *Engine) refreshCategories(ctx context.Context) (int, error) {
	cats, err := e.remote.ListCategories(ctx)
	if err != nil {
		return 0, err
	}
	rows := make([]localstore.CategoryRow, 0, len(cats))
	for _, c := range cats {
		rows = append(rows, localstore.CategoryRow{
			ServerID:  c.ID,
			Name:      c.Name,
			Type:      c.Type,
			IsDefault: c.IsDefault,
			UpdatedAt: orNow(c.UpdatedAt, e.now()),
		})
	}
	if err := e.store.ReplaceCategories(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func syncedRow(t models.Transaction, now time.Time) localstore.TransactionRow {
	id := t.ID
	created := orNow(t.CreatedAt, now)
	return localstore.TransactionRow{
		LocalID:      localstore.SyncedRowID(id),
		ServerID:     &id,
		Type:         t.Type,
		Amount:       t.Amount,
		CategoryID:   optional(t.CategoryID),
		CategoryName: optional(t.CategoryName),
		Note:         optional(t.Note),
		Date:         t.Date,
		Status:       localstore.StatusSynced,
		CreatedAt:    created,
		UpdatedAt:    orNow(t.UpdatedAt, created),
	}
}

func profileRow(p *models.Profile, now time.Time) localstore.ProfileRow {
	return localstore.ProfileRow{
		UserID:    p.ID,
		Login:     p.Login,
		Name:      p.Name,
		Email:     optional(p.Email),
		Currency:  optional(p.Currency),
		UpdatedAt: orNow(p.UpdatedAt, now),
	}
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now.UTC()
	}
	return t.UTC()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
