package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/atinyakov/FinKeeper/internal/client/localstore"
	"github.com/atinyakov/FinKeeper/internal/client/mode"
	"github.com/spf13/cobra"
)

type appFunc func() *app

func newAddCommand(get appFunc) *cobra.Command {
	var (
		e       entry
		syncNow bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction locally; it is sent on the next sync",
		Example: `  finkeeper add --amount 12.50 --category Food --note lunch
  finkeeper add --type income --amount 1500 --date 2024-05-01 --sync`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if _, err := a.add(ctx, out, e); err != nil {
				return err
			}
			if !syncNow {
				return nil
			}
			if err := a.requireSession(ctx); err != nil {
				fmt.Fprintln(out, err)
				return nil
			}
			ctrl := a.controller(batchUI{out: out, tokens: a.tokens})
			if err := ctrl.GoOnline(ctx); err != nil {
				fmt.Fprintf(out, "kept for later: %v\n", err)
				return nil
			}
			printResult(out, a)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&e.Type, "type", "expense", "income or expense")
	f.StringVar(&e.Amount, "amount", "", "positive amount, e.g. 12.50")
	f.StringVar(&e.Category, "category", "", "category name or id")
	f.StringVar(&e.Date, "date", "", "YYYY-MM-DD, today when empty")
	f.StringVar(&e.Note, "note", "", "free-form note")
	f.BoolVar(&syncNow, "sync", false, "try to sync right away")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newListCommand(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show cached transactions, pending ones included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().printTransactions(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newCategoriesCommand(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "Show cached categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().printCategories(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newSyncCommand(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending transactions and refresh the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			ctrl := a.controller(batchUI{out: out, tokens: a.tokens})
			if err := ctrl.GoOnline(ctx); err != nil {
				return err
			}
			printResult(out, a)
			return nil
		},
	}
}

func newStatusCommand(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, pending count and last sync time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			m, reason := a.probe(cmd.Context())
			return a.printStatus(cmd.Context(), cmd.OutOrStdout(), m, reason)
		},
	}
}

func newCapsCommand(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Show which actions are available in the current mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _ := get().probe(cmd.Context())
			printCaps(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

func newDumpCommand(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:       "dump <table>",
		Short:     "Print the raw rows of a local table as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: localstore.Tables,
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().dump(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func newRegisterCommand(get appFunc) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "register <login>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if name == "" {
				name = args[0]
			}
			token, err := a.client.Register(cmd.Context(), args[0], name, email)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			if err := a.tokens.Save(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name, defaults to the login")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	return cmd
}

func newLoginCommand(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "login <login>",
		Short: "Sign in and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			token, err := a.client.Login(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if err := a.tokens.Save(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", args[0])
			return nil
		},
	}
}

func newLogoutCommand(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().tokens.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

// probe reports the mode a single health check implies.
func (a *app) probe(ctx context.Context) (mode.Mode, string) {
	if err := a.client.Health(ctx); err != nil {
		return mode.Offline, fmt.Sprintf("cannot reach server: %v", err)
	}
	return mode.Online, ""
}

func printResult(out io.Writer, a *app) {
	r := a.engine.LastResult()
	fmt.Fprintf(out, "synced: pushed %d, failed %d, %d transactions, %d categories\n",
		r.Pushed, r.Failed, r.Refreshed, r.Categories)
}
