package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "timelimitd",
	Short: "timelimitd - daily time limit daemon for distracting websites",
	Long: `timelimitd is the native companion daemon for a browser extension that
tracks time spent on distracting websites and enforces daily limits. The
extension forwards activity and navigation events to the daemon's localhost
API; the daemon accounts usage, evaluates limits, and answers with redirect
commands when a site's daily ceiling is reached.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to server command when no subcommand is provided
		return runServer(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to configuration file")
}

// defaultConfigPath returns the per-user config location, falling back to the
// system path when the home directory cannot be resolved.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "/etc/timelimitd/config.yaml"
	}
	return filepath.Join(dir, "timelimitd", "config.yaml")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
