package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blimp-pm/blimp/pkg/environment"
	"github.com/blimp-pm/blimp/pkg/envs"
	"github.com/blimp-pm/blimp/pkg/orchestrator"
	"github.com/blimp-pm/blimp/pkg/remote"
	"github.com/blimp-pm/blimp/pkg/repository"
)

var (
	sysroot    string
	localRepos []string
	verbose    bool
	log        = logrus.StandardLogger()
)

var rootCmd = &cobra.Command{
	Use:          "blimp",
	Short:        "Install, update, and remove packages from Blimp repositories",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sysroot, "sysroot", envs.Sysroot(), "target system root")
	rootCmd.PersistentFlags().StringArrayVar(&localRepos, "repo", envs.LocalRepos(""), "local repository path (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func Execute() error {
	return rootCmd.Execute()
}

// openOrchestrator opens the sysroot environment, loads the configured
// local repositories and remotes, and wires them into an Orchestrator. The
// caller owns the returned environment's lock and must close it.
func openOrchestrator() (*orchestrator.Orchestrator, *environment.Environment, error) {
	env, err := environment.Open(sysroot)
	if err != nil {
		return nil, nil, err
	}

	repos := make([]repository.Repository, 0, len(localRepos))
	for _, path := range localRepos {
		repos = append(repos, repository.New(path))
	}

	hosts, err := remote.LoadRemotes(env.RemotesPath())
	if err != nil {
		env.Close()
		return nil, nil, err
	}
	remotes := make([]remote.Remote, 0, len(hosts))
	for host := range hosts {
		remotes = append(remotes, remote.New(host))
	}

	return orchestrator.New(env, repos, remotes, log), env, nil
}
