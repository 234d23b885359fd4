// Command codorch is the bug-triage orchestrator's entrypoint: it wires
// the cobra CLI surface (run/list/attach/send/stop/status) to the
// Manager and exits with the status code spec.md §6.1 describes (0 ok, 2
// needs-human, 1 argument/infrastructure errors).
package main

import (
	"os"

	"github.com/codorch/codorch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
