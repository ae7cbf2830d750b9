package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/strata/dataset"
	"github.com/teranos/strata/datasource"
	"github.com/teranos/strata/query"
	"github.com/teranos/strata/tid"
)

func newDataSetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Create, list and inspect datasets",
		Long: `Datasets scope records. A dataset record lives in the dataset it was saved
into, so datasets are addressed by path: "common/child" is the dataset named
child saved into common, which itself lives in the root.

Examples:
  strata dataset create common
  strata dataset create child --in common --parent common
  strata dataset ls --in common
  strata dataset visibility common/child`,
	}
	cmd.AddCommand(newDataSetCreateCmd(a), newDataSetLsCmd(a), newDataSetVisibilityCmd(a))
	return cmd
}

func newDataSetCreateCmd(a *app) *cobra.Command {
	var (
		store       storeFlags
		in          string
		parents     []string
		nonTemporal bool
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, ds, release, err := a.open(cmd, &store)
			if err != nil {
				return err
			}
			defer release()

			saveTo, err := ds.ResolveDataSet(ctx, in)
			if err != nil {
				return err
			}
			var parentIDs []tid.TID
			for _, p := range parents {
				id, err := ds.ResolveDataSet(ctx, p)
				if err != nil {
					return err
				}
				parentIDs = append(parentIDs, id)
			}
			var opts []datasource.DataSetOption
			if nonTemporal {
				opts = append(opts, datasource.NonTemporal())
			}
			id, err := ds.CreateDataSet(ctx, args[0], parentIDs, saveTo, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	store.bind(cmd, false)
	cmd.Flags().StringVar(&in, "in", "", "Path of the dataset to save the new dataset into (default: root)")
	cmd.Flags().StringArrayVar(&parents, "parent", nil, "Path of a parent dataset (repeatable, in override order)")
	cmd.Flags().BoolVar(&nonTemporal, "non-temporal-dataset", false, "Keep only the latest version of each key saved into the new dataset")
	return cmd
}

func newDataSetLsCmd(a *app) *cobra.Command {
	var (
		store storeFlags
		in    string
	)
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List the datasets visible from a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, ds, release, err := a.open(cmd, &store)
			if err != nil {
				return err
			}
			defer release()

			leaf, err := ds.ResolveDataSet(ctx, in)
			if err != nil {
				return err
			}
			cur, err := ds.LoadByQuery(ctx, query.New(dataset.TypeName).InDataSet(leaf))
			if err != nil {
				return err
			}
			recs, err := cur.All(ctx)
			if err != nil {
				return err
			}

			data := pterm.TableData{{"Name", "TID", "Saved in", "Parents", "Non-temporal"}}
			for _, rec := range recs {
				d := rec.Data.(*dataset.DataSet)
				savedIn, err := ds.DataSetName(ctx, rec.DataSet)
				if err != nil {
					return err
				}
				if savedIn == "" {
					savedIn = "(root)"
				}
				names := make([]string, 0, len(d.Parents))
				for _, p := range d.Parents {
					n, err := ds.DataSetName(ctx, p)
					if err != nil {
						return err
					}
					names = append(names, n)
				}
				data = append(data, []string{
					d.DataSetID, rec.ID.String(), savedIn, strings.Join(names, ", "), fmt.Sprint(d.NonTemporal),
				})
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No datasets")
				return nil
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render()
		},
	}
	store.bind(cmd, false)
	cmd.Flags().StringVar(&in, "in", "", "Dataset path to list from (default: root)")
	return cmd
}

func newDataSetVisibilityCmd(a *app) *cobra.Command {
	var store storeFlags
	cmd := &cobra.Command{
		Use:   "visibility PATH",
		Short: "Show the override order of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, ds, release, err := a.open(cmd, &store)
			if err != nil {
				return err
			}
			defer release()

			leaf, err := ds.ResolveDataSet(ctx, args[0])
			if err != nil {
				return err
			}
			vis, err := ds.Visibility(ctx, leaf)
			if err != nil {
				return err
			}
			data := pterm.TableData{{"Rank", "Dataset", "TID"}}
			for i, id := range vis.Order {
				name, err := ds.DataSetName(ctx, id)
				if err != nil {
					return err
				}
				if name == "" {
					name = "(root)"
				}
				data = append(data, []string{fmt.Sprint(i), name, id.String()})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render()
		},
	}
	store.bind(cmd, false)
	return cmd
}
