// Command migrator is the process entrypoint: it wires the cobra command
// tree and exits non-zero on error, the same shape the teacher toolbox's
// main.go uses around its own root command.
package main

import (
	"fmt"
	"os"

	"github.com/sqlbridge/migrator/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
