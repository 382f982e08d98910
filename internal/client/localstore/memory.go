package localstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store with the same semantics as SQLite. Contents
// are lost when the process exits.
type Memory struct {
	mu sync.RWMutex

	txs     []memTransaction
	nextSeq int64
	cats    []CategoryRow
	profile *ProfileRow
	meta    map[string]string
	metaSeq []string
}

type memTransaction struct {
	row TransactionRow
	seq int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{meta: make(map[string]string)}
}

// EnsureSchema is a no-op; the in-memory tables always exist.
func (m *Memory) EnsureSchema(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// InsertPendingTransaction stores a new pending row.
func (m *Memory) InsertPendingTransaction(_ context.Context, row TransactionRow) error {
	if err := checkPending(row); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(row)
}

func (m *Memory) insertLocked(row TransactionRow) error {
	for _, t := range m.txs {
		if t.row.LocalID == row.LocalID {
			return fmt.Errorf("insert transaction %s: %w", row.LocalID, ErrDuplicateKey)
		}
	}
	m.nextSeq++
	m.txs = append(m.txs, memTransaction{row: cloneTransaction(row), seq: m.nextSeq})
	return nil
}

// PendingTransactions returns pending rows in FIFO order.
func (m *Memory) PendingTransactions(context.Context) ([]TransactionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []memTransaction
	for _, t := range m.txs {
		if t.row.Status == StatusPending {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if !a.row.CreatedAt.Equal(b.row.CreatedAt) {
			return a.row.CreatedAt.Before(b.row.CreatedAt)
		}
		return a.seq < b.seq
	})
	out := make([]TransactionRow, 0, len(pending))
	for _, t := range pending {
		out = append(out, cloneTransaction(t.row))
	}
	return out, nil
}

// Transactions returns all rows, newest date first, pending before synced on ties.
func (m *Memory) Transactions(context.Context) ([]TransactionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TransactionRow, 0, len(m.txs))
	for _, t := range m.txs {
		out = append(out, cloneTransaction(t.row))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date.After(b.Date)
		}
		if a.Status != b.Status {
			return a.Status == StatusPending
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, nil
}

// DeleteTransactionByLocalID removes a row if present.
func (m *Memory) DeleteTransactionByLocalID(_ context.Context, localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.txs {
		if t.row.LocalID == localID {
			m.txs = append(m.txs[:i], m.txs[i+1:]...)
			return nil
		}
	}
	return nil
}

// ReplaceSyncedTransactions swaps the synced partition while holding the write
// lock, so no reader observes the intermediate state.
func (m *Memory) ReplaceSyncedTransactions(_ context.Context, rows []TransactionRow) error {
	for _, r := range rows {
		if err := checkSynced(r); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]memTransaction, 0, len(m.txs)+len(rows))
	for _, t := range m.txs {
		if t.row.Status != StatusSynced {
			kept = append(kept, t)
		}
	}
	prev, prevSeq := m.txs, m.nextSeq
	m.txs = kept
	for _, r := range rows {
		r.Status = StatusSynced
		if err := m.insertLocked(r); err != nil {
			m.txs, m.nextSeq = prev, prevSeq
			return err
		}
	}
	return nil
}

// ReplaceCategories swaps the category cache for rows.
func (m *Memory) ReplaceCategories(_ context.Context, rows []CategoryRow) error {
	seen := make(map[string]bool, len(rows))
	for _, c := range rows {
		if seen[c.ServerID] {
			return fmt.Errorf("insert category %s: %w", c.ServerID, ErrDuplicateKey)
		}
		seen[c.ServerID] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cats = append([]CategoryRow(nil), rows...)
	return nil
}

// Categories returns cached categories ordered by type then name.
func (m *Memory) Categories(context.Context) ([]CategoryRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]CategoryRow(nil), m.cats...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// UpsertProfile replaces the cached profile.
func (m *Memory) UpsertProfile(_ context.Context, p ProfileRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneProfile(p)
	m.profile = &cp
	return nil
}

// Profile returns the cached profile or nil.
func (m *Memory) Profile(context.Context) (*ProfileRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return nil, nil
	}
	cp := cloneProfile(*m.profile)
	return &cp, nil
}

// MetaValue returns the value stored under key.
func (m *Memory) MetaValue(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.meta[key]
	return v, ok, nil
}

// SetMetaValue stores value under key.
func (m *Memory) SetMetaValue(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meta[key]; !ok {
		m.metaSeq = append(m.metaSeq, key)
	}
	m.meta[key] = value
	return nil
}

// DumpTable returns rows shaped exactly like the SQLite columns.
func (m *Memory) DumpTable(_ context.Context, table string) ([]map[string]any, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []map[string]any{}
	switch table {
	case TableTransactions:
		for _, t := range m.txs {
			r := t.row
			out = append(out, map[string]any{
				"local_id":      r.LocalID,
				"server_id":     nullable(r.ServerID),
				"type":          string(r.Type),
				"amount":        r.Amount.String(),
				"category_id":   nullable(r.CategoryID),
				"category_name": nullable(r.CategoryName),
				"note":          nullable(r.Note),
				"date":          r.Date.String(),
				"status":        string(r.Status),
				"created_at":    r.CreatedAt.UnixNano(),
				"updated_at":    r.UpdatedAt.UnixNano(),
			})
		}
	case TableCategories:
		for _, c := range m.cats {
			isDefault := int64(0)
			if c.IsDefault {
				isDefault = 1
			}
			out = append(out, map[string]any{
				"server_id":  c.ServerID,
				"name":       c.Name,
				"type":       string(c.Type),
				"is_default": isDefault,
				"updated_at": c.UpdatedAt.UnixNano(),
			})
		}
	case TableProfile:
		if p := m.profile; p != nil {
			out = append(out, map[string]any{
				"id":         int64(1),
				"user_id":    p.UserID,
				"login":      p.Login,
				"name":       p.Name,
				"email":      nullable(p.Email),
				"currency":   nullable(p.Currency),
				"updated_at": p.UpdatedAt.UnixNano(),
			})
		}
	case TableMeta:
		for _, k := range m.metaSeq {
			out = append(out, map[string]any{"key": k, "value": m.meta[k]})
		}
	}
	return out, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTransaction(r TransactionRow) TransactionRow {
	r.ServerID = cloneString(r.ServerID)
	r.CategoryID = cloneString(r.CategoryID)
	r.CategoryName = cloneString(r.CategoryName)
	r.Note = cloneString(r.Note)
	return r
}

func cloneProfile(p ProfileRow) ProfileRow {
	p.Email = cloneString(p.Email)
	p.Currency = cloneString(p.Currency)
	return p
}
