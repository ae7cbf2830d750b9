package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/strata/am"
	"github.com/teranos/strata/errors"
)

func newAmCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "am",
		Short: "Show and validate configuration",
		Long: `am - strata configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (STRATA_* prefix, STRATA_SOURCE for store.source)
3. Project config (am.toml, searched upwards from the working directory)
4. User config (~/.strata/am.toml)
5. System config (/etc/strata/am.toml)
6. Default values

Examples:
  strata am show                  # Show current configuration
  strata am show --format yaml    # Show configuration as YAML
  strata am show --sources        # Show where each setting comes from
  strata am validate              # Validate current configuration
  strata am save                  # Write the effective configuration to ~/.strata/am.toml`,
	}

	var (
		format  string
		sources bool
	)
	show := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sources {
				data := pterm.TableData{{"Key", "Value", "Source", "From"}}
				for _, s := range am.Introspect() {
					data = append(data, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
				}
				return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render()
			}
			out, err := a.cfg.Marshal(format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# strata configuration\n%s", out)
			return nil
		},
	}
	show.Flags().StringVar(&format, "format", am.FormatTOML, "Output format: toml, yaml")
	show.Flags().BoolVar(&sources, "sources", false, "Show the source of every setting")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return errors.Wrap(err, "configuration validation failed")
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Println("Configuration is valid")
			return nil
		},
	}

	save := &cobra.Command{
		Use:   "save [PATH]",
		Short: "Write the effective configuration as TOML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := am.UserConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.NewPrecondition("no home directory, pass a path")
			}
			if err := a.cfg.Save(path); err != nil {
				return err
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("Saved %s", path)
			return nil
		},
	}

	cmd.AddCommand(show, validate, save)
	return cmd
}
