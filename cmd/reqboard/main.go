// Command reqboard mirrors a Discord request channel onto a live web board.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reqboard/reqboard/internal/config"
)

// Version information, set during build
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "reqboard",
	Short: "Request board for a Discord channel",
	Long: `reqboard watches one Discord channel for request messages and keeps a live
board of them. Messages use a simple block format:

  User: @alice
  Request: Fix login bug
  Date: 2024-01-05

  Anything after a blank line is kept as extra context.

Replies in a message's thread override its fields. A ✅ reaction marks the
request done; the board can add that reaction too.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "board", Title: "Board:"},
		&cobra.Group{ID: "tools", Title: "Tools:"},
	)

	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./reqboard.yaml when present)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before the config")
}

// loadConfig reads .env and the config file named by the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle().Render("Error: ")+err.Error())
		os.Exit(1)
	}
}
