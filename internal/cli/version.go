package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/pizza-e2e/internal/pizzaapi"
)

func newVersionCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "pizza-e2e version %s (service twin %s)\n", root.Version, pizzaapi.Version)
			return nil
		},
	}
}
