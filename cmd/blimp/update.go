package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Refresh the package list from every configured remote",
	Args:  cobra.NoArgs,
	RunE:  runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	orch, env, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer env.Close()

	results := orch.Update()
	failed := false
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("Remote %q: %v\n", r.Host, r.Err)
			failed = true
			continue
		}
		fmt.Printf("Remote %q: found %d package(s).\n", r.Host, len(r.Packages))
	}
	if failed {
		return fmt.Errorf("update failed")
	}
	return nil
}
