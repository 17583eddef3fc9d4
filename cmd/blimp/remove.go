package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove [package...]",
	Short: "Remove installed packages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	orch, env, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer env.Close()

	plan, err := orch.PlanRemove(args)
	if err != nil {
		return err
	}

	fmt.Print(plan.String())
	if !assumeYes && !confirm() {
		fmt.Println("Aborting.")
		return nil
	}

	return orch.ApplyRemove(plan, nil)
}
