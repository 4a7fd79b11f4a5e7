package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stablessh/internal/ctl"
)

func newCtlCmd() *cobra.Command {
	var target string

	root := &cobra.Command{
		Use:   "ctl",
		Short: "Control-plane operations against a running server",
	}
	root.PersistentFlags().StringVar(&target, "ctl-target", "http://localhost:50051", "control RPC base URL")

	connCmd := &cobra.Command{Use: "conn", Short: "Inspect and manage pool entries"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every pool entry on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctl.NewClient(target)
			conns, err := client.ConnList(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(ctl.FormatTable(conns))
			return nil
		},
	}

	killCmd := &cobra.Command{
		Use:   "kill id",
		Short: "Best-effort kill of a pool entry by short id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctl.NewClient(target)
			status, err := client.ConnKill(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(status)
			if status != "ok" {
				return fmt.Errorf("kill: %s", status)
			}
			return nil
		},
	}

	connCmd.AddCommand(listCmd, killCmd)
	root.AddCommand(connCmd)
	return root
}
