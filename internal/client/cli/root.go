// Package cli implements the finkeeper command line: one-shot commands that
// work against the local cache and an interactive shell that keeps the
// client in sync while it runs.
package cli

import (
	"github.com/atinyakov/FinKeeper/internal/config"
	"github.com/spf13/cobra"
)

// BuildInfo is printed by --version.
type BuildInfo struct {
	Version string
	Date    string
}

// NewRootCommand creates the root command. Every subcommand loads the
// configuration and opens the local store before it runs.
func NewRootCommand(build BuildInfo) *cobra.Command {
	v := config.NewClientViper()
	var a *app

	cmd := &cobra.Command{
		Use:           "finkeeper",
		Short:         "FinKeeper - offline-first personal finance tracker",
		Version:       build.Version + " (" + build.Date + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = openApp(cmd, v)
			return err
		},
	}
	config.ClientFlags(cmd.PersistentFlags())

	get := func() *app { return a }
	cmd.AddCommand(
		newAddCommand(get),
		newListCommand(get),
		newCategoriesCommand(get),
		newSyncCommand(get),
		newStatusCommand(get),
		newCapsCommand(get),
		newDumpCommand(get),
		newRegisterCommand(get),
		newLoginCommand(get),
		newLogoutCommand(get),
		newShellCommand(get),
	)
	// close the store after every subcommand, failed ones included
	for _, sub := range cmd.Commands() {
		run := sub.RunE
		sub.RunE = func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if cerr := a.Close(); err == nil {
					err = cerr
				}
			}()
			return run(cmd, args)
		}
	}
	return cmd
}