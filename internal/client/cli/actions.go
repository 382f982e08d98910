package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/atinyakov/FinKeeper/internal/client/localstore"
	"github.com/atinyakov/FinKeeper/internal/client/mode"
	"github.com/atinyakov/FinKeeper/internal/client/pending"
	"github.com/atinyakov/FinKeeper/internal/models"
	"github.com/shopspring/decimal"
)

// entry is a transaction as typed by the user.
type entry struct {
	Type     string
	Amount   string
	Category string
	Date     string
	Note     string
}

// draft validates e and resolves its category against the cached list.
func (a *app) draft(ctx context.Context, e entry) (pending.Draft, error) {
	typ, err := models.ParseTransactionType(strings.ToLower(e.Type))
	if err != nil {
		return pending.Draft{}, err
	}
	amount, err := decimal.NewFromString(e.Amount)
	if err != nil {
		return pending.Draft{}, fmt.Errorf("invalid amount %q", e.Amount)
	}
	date := models.Today()
	if e.Date != "" {
		if date, err = models.ParseDate(e.Date); err != nil {
			return pending.Draft{}, err
		}
	}

	d := pending.Draft{Type: typ, Amount: amount, Date: date, Note: e.Note}
	if e.Category == "" {
		return d, nil
	}
	cats, err := a.store.Categories(ctx)
	if err != nil {
		return pending.Draft{}, err
	}
	for _, c := range cats {
		if c.ServerID == e.Category || strings.EqualFold(c.Name, e.Category) {
			if c.Type != typ {
				return pending.Draft{}, fmt.Errorf("category %q is for %s", c.Name, c.Type)
			}
			d.CategoryID = c.ServerID
			d.CategoryName = c.Name
			return d, nil
		}
	}
	return pending.Draft{}, fmt.Errorf("unknown category %q, run 'categories' to list them", e.Category)
}

func (a *app) add(ctx context.Context, w io.Writer, e entry) (localstore.TransactionRow, error) {
	d, err := a.draft(ctx, e)
	if err != nil {
		return localstore.TransactionRow{}, err
	}
	row, err := a.queue.Enqueue(ctx, d)
	if err != nil {
		return localstore.TransactionRow{}, err
	}
	fmt.Fprintf(w, "queued %s %s %s on %s\n", row.LocalID, row.Type, row.Amount.StringFixed(2), row.Date)
	return row, nil
}

func (a *app) printTransactions(ctx context.Context, w io.Writer) error {
	rows, err := a.store.Transactions(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no transactions")
		return nil
	}
	currency, err := a.currency(ctx)
	if err != nil {
		return err
	}

	totals := map[models.TransactionType]decimal.Decimal{}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTYPE\tAMOUNT\tCATEGORY\tNOTE\tSTATUS")
	for _, r := range rows {
		totals[r.Type] = totals[r.Type].Add(r.Amount)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Date, r.Type, formatAmount(r.Amount, currency), deref(r.CategoryName), deref(r.Note), r.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "income %s, expense %s\n",
		formatAmount(totals[models.Income], currency), formatAmount(totals[models.Expense], currency))
	return err
}

// currency is the cached profile currency, or "" before the first sync.
func (a *app) currency(ctx context.Context) (string, error) {
	p, err := a.store.Profile(ctx)
	if err != nil || p == nil {
		return "", err
	}
	return deref(p.Currency), nil
}

// formatAmount renders amount in currency's notation. Unknown or empty
// currencies fall back to two decimals.
func formatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

func (a *app) printCategories(ctx context.Context, w io.Writer) error {
	cats, err := a.store.Categories(ctx)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		fmt.Fprintln(w, "no categories cached, sync first")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE")
	for _, c := range cats {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ServerID, c.Name, c.Type)
	}
	return tw.Flush()
}

func (a *app) printStatus(ctx context.Context, w io.Writer, m mode.Mode, reason string) error {
	n, err := a.queue.Len(ctx)
	if err != nil {
		return err
	}
	last, ok, err := a.store.MetaValue(ctx, localstore.MetaLastSyncAt)
	if err != nil {
		return err
	}
	if !ok {
		last = "never"
	} else if ts, perr := time.Parse(time.RFC3339Nano, last); perr == nil {
		last = ts.Local().Format("2006-01-02 15:04:05")
	}
	profile, err := a.store.Profile(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "mode:      %s", m)
	if reason != "" {
		fmt.Fprintf(w, " (%s)", reason)
	}
	fmt.Fprintln(w)
	if profile != nil {
		fmt.Fprintf(w, "user:      %s (%s)\n", profile.Name, profile.Login)
	}
	fmt.Fprintf(w, "pending:   %d\n", n)
	fmt.Fprintf(w, "last sync: %s\n", last)
	if s := a.state.Current(); s.Message != "" {
		fmt.Fprintf(w, "sync:      %s\n", s.Message)
	}
	return nil
}

func printCaps(w io.Writer, m mode.Mode) {
	c := m.Capabilities()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "mode\t%s\n", m)
	for _, row := range []struct {
		name string
		ok   bool
	}{
		{"add transaction", c.CanAdd},
		{"edit transaction", c.CanEdit},
		{"delete transaction", c.CanDelete},
		{"manage categories", c.CanManageCategories},
		{"select category", c.CanSelectCategory},
		{"main sections", c.CanAccessMainSections},
		{"profile settings", c.CanAccessProfileSettings},
	} {
		fmt.Fprintf(tw, "%s\t%s\n", row.name, yesNo(row.ok))
	}
	tw.Flush()
}

func (a *app) dump(ctx context.Context, w io.Writer, table string) error {
	rows, err := a.store.DumpTable(ctx, table)
	if err != nil {
		return fmt.Errorf("%w (known: %s)", err, strings.Join(localstore.Tables, ", "))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func (a *app) printProfile(ctx context.Context, w io.Writer) error {
	p, err := a.store.Profile(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Fprintln(w, "no profile cached, sync first")
		return nil
	}
	fmt.Fprintf(w, "login:    %s\nname:     %s\nemail:    %s\ncurrency: %s\n",
		p.Login, p.Name, deref(p.Email), deref(p.Currency))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
