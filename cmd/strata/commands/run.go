package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/errors"
)

type runFlags struct {
	store     storeFlags
	dataSet   string
	key       string
	typeName  string
	handler   string
	arguments []string
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a record and run a handler on it",
		Long: `Load the record with --key of --type as seen from --dataset, then run the
named --handler on it and print its result.

--dataset is a path of dataset names from the root, e.g. "common/child";
an empty path is the root dataset.

Examples:
  strata run --source memory: --environment "test;fixture;dev" \
      --dataset "" --type DataSet --key common --handler Visibility
  strata run --source mongodb://db1/ --environment "uat;east;main" \
      --dataset common --type MongoServer --key east --handler URI \
      --arguments verbose=true`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			handlerArgs, err := parseArguments(f.arguments)
			if err != nil {
				return err
			}
			ctx, ds, release, err := a.open(cmd, &f.store)
			if err != nil {
				return err
			}
			defer release()

			out, err := ds.Run(ctx, f.typeName, f.key, f.dataSet, f.handler, handlerArgs)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			if out != "" && !strings.HasSuffix(out, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	f.store.bind(cmd, true)
	cmd.Flags().StringVar(&f.dataSet, "dataset", "", `Dataset path, e.g. "common/child"`)
	cmd.Flags().StringVar(&f.key, "key", "", "Record key")
	cmd.Flags().StringVar(&f.typeName, "type", "", "Record type name")
	cmd.Flags().StringVar(&f.handler, "handler", "", "Handler to run")
	cmd.Flags().StringArrayVar(&f.arguments, "arguments", nil, "Handler argument as name=value (repeatable)")
	for _, name := range []string{"dataset", "key", "type", "handler"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// parseArguments turns repeated name=value flags into a map. The value may
// contain '=' and may be empty; the name may not.
func parseArguments(raw []string) (map[string]string, error) {
	args := make(map[string]string, len(raw))
	for _, a := range raw {
		name, val, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.WithHint(
				errors.NewPrecondition("argument %q is not of the form name=value", a),
				"pass --arguments name=value once per argument")
		}
		if _, dup := args[name]; dup {
			return nil, errors.NewPrecondition("argument %s given more than once", name)
		}
		args[name] = val
	}
	return args, nil
}
