package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blimp-pm/blimp/pkg/builder"
	"github.com/blimp-pm/blimp/pkg/envs"
	"github.com/blimp-pm/blimp/pkg/repository"
)

const workDirName = "work"

var rootCmd = &cobra.Command{
	Use:          "blimp-builder <from> <to>",
	Short:        "Build a package from its descriptor and seal it into a repository",
	Long: `Builds a package according to its build descriptor found at <from>, then
writes the resulting archive into the repository rooted at <to>.

Environment variables (all optional):
  JOBS         recommended number of build jobs
  BUILD        target triplet of the machine the package is built on
  HOST         target triplet the package is built for
  TARGET       target triplet the package itself builds for (cross compilers)
  BLIMP_DEBUG  if "true", staging directories are kept for troubleshooting`,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE:         runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	log := logrus.StandardLogger()
	from, to := args[0], args[1]

	jobs, ok := envs.Jobs()
	if !ok {
		var err error
		jobs, err = builder.JobsCount()
		if err != nil {
			return err
		}
	}
	build := builder.HostTriplet()
	host := envs.Host(build)
	target := envs.Target(host)
	debug := envs.Debug()

	log.Infof("jobs: %d; build: %s; host: %s; target: %s", jobs, build, host, target)

	p, err := builder.New(from, workDirName)
	if err != nil {
		return err
	}

	log.Info("fetching sources...")
	if err := p.FetchSources(); err != nil {
		return fmt.Errorf("fetching sources: %w", err)
	}

	log.Info("compiling...")
	if err := p.Build(jobs, build, host, target); err != nil {
		return fmt.Errorf("building package: %w", err)
	}

	log.Infof("sealing into repository at %q...", to)
	archivePath, err := p.Seal(repository.New(to))
	if err != nil {
		return fmt.Errorf("sealing archive: %w", err)
	}
	log.Infof("created %s", archivePath)

	if debug {
		log.Debugf("build directory: %s; fake sysroot: %s", p.BuildDir, p.Sysroot)
		return nil
	}

	log.Info("cleaning up...")
	return p.Cleanup()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
