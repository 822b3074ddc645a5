// Package cmd provides the sessiond CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sessiond",
	Short: "sessiond - demo session service",
	Long: `sessiond runs the session engine behind a small HTTP API.

Configuration is read from sessiond.yaml in the current directory or
/etc/sessiond/. Environment variables override config values with the
SESSIOND_ prefix, for example SESSIOND_SERVER_ADDR=:9090.

Commands:
  serve       Start the HTTP server
  config      Print the resolved configuration
  loadtest    Measure verify and refresh latency`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sessiond.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}
