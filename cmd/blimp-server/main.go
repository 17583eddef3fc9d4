package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blimp-pm/blimp/pkg/remote"
	"github.com/blimp-pm/blimp/pkg/repository"
)

var (
	listenAddr string
	repoPath   string
	motd       string
)

var rootCmd = &cobra.Command{
	Use:          "blimp-server",
	Short:        "Serve a Blimp package repository over HTTP",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&listenAddr, "listen", "0.0.0.0:8080", "address to listen on")
	rootCmd.Flags().StringVar(&repoPath, "repo", ".", "path to the repository to serve")
	rootCmd.Flags().StringVar(&motd, "motd", fmt.Sprintf("Blimp server version %s", remote.ServerVersion), "message of the day returned by /motd")
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.StandardLogger()
	repo := repository.New(repoPath)
	srv := remote.NewServer(repo, motd, log)

	log.WithField("addr", listenAddr).Info("starting blimp-server")
	return http.ListenAndServe(listenAddr, srv.Router())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
