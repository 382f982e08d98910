package pending

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/atinyakov/FinKeeper/internal/client/localstore"
	"github.com/atinyakov/FinKeeper/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steppingClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("local-%d", n)
	}
}

func draft(date string) Draft {
	return Draft{
		Type:       models.Expense,
		Amount:     decimal.RequireFromString("4.20"),
		CategoryID: "cat-1",
		Note:       "  coffee ",
		Date:       models.MustParseDate(date),
	}
}

func TestEnqueue_AssignsIdentityAndOrder(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	q := New(store, WithClock(steppingClock(start)), WithIDGenerator(sequentialIDs()))

	first, err := q.Enqueue(ctx, draft("2024-01-01"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, draft("2024-01-03"))
	require.NoError(t, err)

	assert.Equal(t, "local-1", first.LocalID)
	assert.Equal(t, localstore.StatusPending, first.Status)
	assert.Nil(t, first.ServerID)
	assert.Equal(t, "coffee", *first.Note)
	assert.Nil(t, first.CategoryName)

	rows, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-01", rows[0].Date.String())
	assert.Equal(t, "2024-01-03", rows[1].Date.String())
	assert.True(t, rows[0].CreatedAt.Before(rows[1].CreatedAt))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, q.Ack(ctx, "local-1"))
	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEnqueue_RejectsInvalid(t *testing.T) {
	q := New(localstore.NewMemory())
	bad := draft("2024-01-01")
	bad.Amount = decimal.Zero

	_, err := q.Enqueue(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidDraft)
}

func TestEnqueue_DuplicateIDSurfaces(t *testing.T) {
	q := New(localstore.NewMemory(), WithIDGenerator(func() string { return "same" }))
	_, err := q.Enqueue(context.Background(), draft("2024-01-01"))
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), draft("2024-01-02"))
	require.ErrorIs(t, err, localstore.ErrDuplicateKey)
}

func TestPayload(t *testing.T) {
	note := "lunch"
	cat := "cat-7"
	row := localstore.TransactionRow{
		Type:       models.Income,
		Amount:     decimal.NewFromInt(5),
		CategoryID: &cat,
		Note:       &note,
		Date:       models.MustParseDate("2024-02-02"),
	}
	p := Payload(row)
	assert.Equal(t, "cat-7", p.CategoryID)
	assert.Equal(t, "lunch", p.Note)
	assert.Equal(t, models.Income, p.Type)
	assert.Equal(t, "2024-02-02", p.Date.String())

	row.CategoryID, row.Note = nil, nil
	p = Payload(row)
	assert.Empty(t, p.CategoryID)
	assert.Empty(t, p.Note)
}
