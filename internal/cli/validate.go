package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [paths...]",
		Short: "Check the manifest and scenario files without running them",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := root.load(nil)
			if err != nil {
				return err
			}
			suite, err := loadSuite(m, args)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid scenarios", err)
			}
			if err := checkSuite(suite); err != nil {
				return WrapExitError(ExitFailure, "invalid scenarios", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d scenarios, %d route sets %v\n",
				len(suite.Scenarios), len(suite.RouteSets), routeSetNames(suite))
			return nil
		},
	}
}
