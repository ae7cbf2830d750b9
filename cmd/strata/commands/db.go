package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newDbCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
		Long: `Database operations.

Examples:
  strata db drop --environment "test;fixture;dev"   # only test instances can be dropped`,
	}

	var store storeFlags
	drop := &cobra.Command{
		Use:   "drop",
		Short: "Drop the database of a test instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, ds, release, err := a.open(cmd, &store)
			if err != nil {
				return err
			}
			defer release()

			if err := ds.DeleteDB(ctx); err != nil {
				return err
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("Dropped %s", ds.Instance())
			return nil
		},
	}
	store.bind(drop, false)
	cmd.AddCommand(drop)
	return cmd
}
