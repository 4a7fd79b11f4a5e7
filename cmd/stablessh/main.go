// Command stablessh is the client/server CLI for the resumable
// SSH-over-QUIC tunnel. Grounded on the teacher's flag-based main.go
// for the overall "parse flags, dispatch on mode" shape, rebuilt on
// cobra/pflag the way caddyserver-caddy's cmd package composes its
// subcommands, since the teacher's single flag.FlagSet has no room for
// this system's four independent subcommands and their own flag sets.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "stablessh",
		Short:         "Resumable SSH-over-QUIC tunnel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServerCmd())
	root.AddCommand(newClientCmd())
	root.AddCommand(newCtlCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stablessh:", err)
		os.Exit(1)
	}
}
