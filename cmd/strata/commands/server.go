package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/datasource"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/tid"
)

func newServerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage MongoServer records",
		Long: `MongoServer records describe MongoDB deployments. They always live in the
root dataset and are keyed by server id.

Examples:
  strata server add east --host db1:27017 --host db2:27017
  strata server uri east`,
	}
	cmd.AddCommand(newServerAddCmd(a), newServerURICmd(a))
	return cmd
}

func newServerAddCmd(a *app) *cobra.Command {
	var (
		store storeFlags
		hosts []string
	)
	cmd := &cobra.Command{
		Use:   "add ID",
		Short: "Save a MongoServer record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, ds, release, err := a.open(cmd, &store)
			if err != nil {
				return err
			}
			defer release()

			srv := &datasource.MongoServer{ServerID: args[0], Hosts: hosts}
			rec, err := ds.Save(ctx, srv, tid.Empty)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", rec.ID, srv.URI())
			return nil
		},
	}
	store.bind(cmd, false)
	cmd.Flags().StringArrayVar(&hosts, "host", nil, "host[:port] (repeatable)")
	return cmd
}

func newServerURICmd(a *app) *cobra.Command {
	var store storeFlags
	cmd := &cobra.Command{
		Use:   "uri ID",
		Short: "Print the connection URI of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, ds, release, err := a.open(cmd, &store)
			if err != nil {
				return err
			}
			defer release()

			srv, found, err := datasource.LoadAs[datasource.MongoServer](ctx, ds, args[0], tid.Empty)
			if err != nil {
				return err
			}
			if !found {
				return errors.WithHintf(
					errors.NewNotFound("server %s not found", args[0]),
					"add it with: strata server add %s --host <host>", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), srv.URI())
			return nil
		},
	}
	store.bind(cmd, false)
	return cmd
}
