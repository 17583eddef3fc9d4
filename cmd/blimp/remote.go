package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage configured remote mirrors",
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured remotes and their status",
	Args:  cobra.NoArgs,
	RunE:  runRemoteList,
}

var remoteAddCmd = &cobra.Command{
	Use:   "add [host...]",
	Short: "Add one or more remotes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemoteAdd,
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove [host...]",
	Short: "Remove one or more remotes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemoteRemove,
}

func init() {
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.AddCommand(remoteListCmd, remoteAddCmd, remoteRemoveCmd)
}

func runRemoteList(cmd *cobra.Command, args []string) error {
	orch, env, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer env.Close()

	fmt.Println("Remotes list:")
	for _, entry := range orch.ListRemotes() {
		if entry.Up {
			fmt.Printf("- %s (status: UP): %s\n", entry.Host, entry.MOTD)
		} else {
			fmt.Printf("- %s (status: DOWN)\n", entry.Host)
		}
	}
	return nil
}

func runRemoteAdd(cmd *cobra.Command, args []string) error {
	orch, env, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer env.Close()
	return orch.AddRemotes(args)
}

func runRemoteRemove(cmd *cobra.Command, args []string) error {
	orch, env, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer env.Close()
	return orch.RemoveRemotes(args)
}
