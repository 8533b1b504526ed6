// pizza-e2e runs browser scenarios against the JWT Pizza front end.
//
// Usage:
//
//	pizza-e2e run [paths...]      Run scenarios and report the results
//	pizza-e2e list [paths...]     List the scenarios a run would execute
//	pizza-e2e validate [paths...] Check the manifest and scenario files
//	pizza-e2e twin serve          Serve the JWT Pizza service twin
//	pizza-e2e twin status         Health check a running twin
//	pizza-e2e twin reset          Restore a running twin's seed data
//	pizza-e2e twin seed <file>    Replace a running twin's state
//	pizza-e2e twin state          Print a running twin's state
//	pizza-e2e version             Print the version
package main

import (
	"fmt"
	"os"

	"github.com/wondertwin-ai/pizza-e2e/internal/cli"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pizza-e2e: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
