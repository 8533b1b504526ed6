package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/pizza-e2e/internal/scenario"
)

type listEntry struct {
	Name      string   `json:"name"`
	Source    string   `json:"source"`
	Tags      []string `json:"tags,omitempty"`
	Actions   int      `json:"actions"`
	RouteSets []string `json:"route_sets,omitempty"`
}

func newListCommand(root *RootOptions) *cobra.Command {
	var (
		filter string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list [paths...]",
		Short: "List the scenarios a run would execute",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := root.load(nil)
			if err != nil {
				return err
			}
			suite, err := loadSuite(m, args)
			if err != nil {
				return WrapExitError(ExitCommandError, "loading scenarios", err)
			}
			scenarios, err := scenario.Filter(suite.Scenarios, filter)
			if err != nil {
				return WrapExitError(ExitCommandError, "filtering scenarios", err)
			}

			entries := make([]listEntry, 0, len(scenarios))
			for _, s := range scenarios {
				source := "builtin"
				if s.Dir != "" {
					source = s.Dir
				}
				entries = append(entries, listEntry{
					Name:      s.Name,
					Source:    source,
					Tags:      s.Tags,
					Actions:   len(s.Actions),
					RouteSets: s.RouteSets,
				})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			fmt.Fprintf(out, "  %-32s %-8s %-7s %s\n", "SCENARIO", "ACTIONS", "SOURCE", "ROUTE SETS")
			fmt.Fprintf(out, "  %-32s %-8s %-7s %s\n", "--------", "-------", "------", "----------")
			for _, e := range entries {
				sets := strings.Join(e.RouteSets, ",")
				if sets == "" {
					sets = "-"
				}
				fmt.Fprintf(out, "  %-32s %-8d %-7s %s\n", e.Name, e.Actions, e.Source, sets)
			}
			fmt.Fprintf(out, "\n%d scenarios\n", len(entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "run", "", "only list scenarios whose name matches this regexp")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
