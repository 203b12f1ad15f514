// Command schedulerctl is an operational CLI that talks to a running
// scheduler daemon over its REST API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fieldnote/scrapesched/internal/cli/schedulerctl"
)

func main() {
	if err := schedulerctl.Command().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
