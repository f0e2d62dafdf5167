package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "webserver",
		Short: "Epoll based HTTP server for static pages and account forms",
		Long: `webserver serves a document root over a small HTTP/1.1 subset.

One reactor thread multiplexes every connection with epoll and hands
complete reads to a fixed worker pool. Idle connections are closed after
a configurable timeout. Login and register forms are checked against an
accounts store (in memory or badger).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default $XDG_CONFIG_HOME/webserver/config.yaml)")

	rootCmd.AddCommand(
		serveCmd(),
		initCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
