// Package commands implements the strata CLI.
package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/strata/am"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/record"
)

// RegisterTypes adds application record types to the registry every command
// opens its data source with. Binaries embedding these commands set it before
// Execute.
var RegisterTypes func(reg *record.Registry) error

// NewRootCmd builds the strata command tree.
func NewRootCmd() *cobra.Command {
	var (
		configPath string
		verbosity  int
		jsonLog    bool
	)
	app := &app{}

	root := &cobra.Command{
		Use:   "strata",
		Short: "Temporal, dataset-scoped records over a document store",
		Long: `strata - temporal, dataset-scoped records over a document store.

Every save is a new immutable version. Datasets form a DAG: a dataset sees
its own records first, then its parents' in declaration order.

Available commands:
  run      - Load a record and run a handler on it
  dataset  - Create, list and inspect datasets
  server   - Manage MongoServer records
  db       - Database operations
  am       - Show and validate configuration ("I am")
  version  - Show build information

Examples:
  strata dataset create common --source sqlite:./data --environment test;fixture;dev
  strata run --source sqlite:./data --environment "test;fixture;dev" \
      --dataset common --type DataSet --key common --handler Describe`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("verbose") {
				cfg.Log.Verbosity = verbosity
			}
			if cmd.Flags().Changed("json-log") {
				cfg.Log.JSON = jsonLog
			}
			if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Verbosity); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
			app.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Cleanup()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Read configuration from this file only (default: merged am.toml cascade)")
	root.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	root.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "Log as JSON on stderr")

	root.AddCommand(
		newRunCmd(app),
		newDataSetCmd(app),
		newServerCmd(app),
		newDbCmd(app),
		newAmCmd(app),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and reports a failure on stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func loadConfig(path string) (*am.Config, error) {
	if path != "" {
		return am.LoadFromFile(path)
	}
	cfg, err := am.Load()
	if err != nil {
		return nil, err
	}
	// Commands adjust their copy with flags
	c := *cfg
	return &c, nil
}

func printError(err error) {
	pterm.Error.WithWriter(os.Stderr).Println(err.Error())
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(os.Stderr, "  hint: %s\n", hint)
	}
}
