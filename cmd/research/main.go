// Command research is the thin CLI driver around the core orchestrator: it
// wires concrete providers, subscribes a terminal renderer to the event
// bus, runs one session, and prints the final cited report.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
