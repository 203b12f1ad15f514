// Command schedulerd runs the scheduler daemon: the admission REST API, the
// priority-lane worker pool, and the progress WebSocket hub.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fieldnote/scrapesched/internal/cli/schedulerd"
)

func main() {
	if err := schedulerd.Command().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
