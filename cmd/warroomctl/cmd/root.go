// Package cmd contains the CLI commands for warroomctl.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/warroom/internal/client"
)

// Environment defaults for the global flags.
const (
	envServer = "WARROOM_SERVER"
	envActor  = "WARROOM_ACTOR"
)

var (
	serverURL string
	actorName string
	output    string
	timeout   time.Duration
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warroomctl",
	Short: "Warroom CLI - drive incidents from the terminal",
	Long: `warroomctl talks to a running warroom-server over its HTTP API.

Examples:
  # Open an incident
  warroomctl incident create --title "Checkout 5xx" --severity critical

  # Attach telemetry from a file
  warroomctl event import events.json

  # Follow an incident room live
  warroomctl watch 3f2c...

  # Resolve and render the postmortem
  warroomctl incident status 3f2c... resolved
  warroomctl incident postmortem 3f2c... --format html --out pm.html`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr(envServer, "http://localhost:8080"), "warroom-server base URL")
	rootCmd.PersistentFlags().StringVar(&actorName, "actor", envOr(envActor, os.Getenv("USER")), "name recorded on changes you make")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newClient builds an API client from the global flags.
func newClient() (*client.Client, error) {
	c, err := client.New(client.Config{
		BaseURL: serverURL,
		Actor:   actorName,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	printVerbose("server: %s, actor: %q", serverURL, actorName)
	return c, nil
}

func printVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
