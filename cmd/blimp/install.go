package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var assumeYes bool

var installCmd = &cobra.Command{
	Use:   "install [package...]",
	Short: "Resolve, download, and install packages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "don't prompt for confirmation")
}

func runInstall(cmd *cobra.Command, args []string) error {
	orch, env, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer env.Close()

	plan, err := orch.PlanInstall(args)
	if err != nil {
		return err
	}

	fmt.Print(plan.String())
	if !assumeYes && !confirm() {
		fmt.Println("Aborting.")
		return nil
	}

	return orch.ApplyInstall(plan)
}

// confirm prompts the user for a yes/no answer on stdin, mirroring
// original_source/client/src/confirm.rs's prompt().
func confirm() bool {
	fmt.Print("Continue? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil || line == "" {
		return false
	}
	switch line[0] {
	case 'y', 'Y':
		return true
	default:
		return false
	}
}
