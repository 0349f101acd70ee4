// Command optiprobe is a C12.18/C12.19 assessment tool: it opens a
// session to a meter over a serial optical probe, runs a handshake, and
// drives table reads/writes/procedures from the command line. Its
// structure follows marmos91/dittofs's cmd/dittofs: a cobra root
// command with persistent option flags (including --config) and a
// subcommand per operation.
package main

import (
	"fmt"
	"os"

	"github.com/cascade-sec/optiprobe/cmd/optiprobe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "optiprobe:", err)
		os.Exit(1)
	}
}
