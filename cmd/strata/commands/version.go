package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/version"
)

func newVersionCmd() *cobra.Command {
	var (
		jsonOutput bool
		require    string
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show strata version information",
		Long: `Display version, build time, commit hash and platform information.

With --require, exit non-zero unless the build satisfies a semver constraint:
  strata version --require ">= 1.2, < 2"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if require != "" {
				ok, err := info.Satisfies(require)
				if err != nil {
					return err
				}
				if !ok {
					return errors.NewPrecondition("strata %s does not satisfy %q", info.Version, require)
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return errors.Wrap(err, "failed to format version as JSON")
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintln(out, info.String())
			fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output version info as JSON")
	cmd.Flags().StringVar(&require, "require", "", "Fail unless the version satisfies this semver constraint")
	return cmd
}
