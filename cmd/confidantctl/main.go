// Command confidantctl is the administrative CLI for a running confidantd
// daemon: it talks to the admin HTTP surface (spec.md §6) over plain HTTP,
// the same shared-token auth the admin surface itself enforces.
//
// Grounded on the teacher's cmd/giztoy cobra CLI (commands/root.go's
// persistent-flags + cobra.OnInitialize shape, commands/get_cmd.go's
// RunE + formatOutput convention).
package main

import (
	"os"

	cli "github.com/kurame123/confidant/internal/cliutil"

	"github.com/kurame123/confidant/cmd/confidantctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}
