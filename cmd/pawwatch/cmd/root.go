// Package cmd contains the CLI commands for pawwatch.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pawwatch/internal/config"
)

var (
	configFile string
	output     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pawwatch",
	Short: "pawwatch - behavior and weight alerts for dog daycares",
	Long: `pawwatch watches behavior evaluations and weight records of daycare
dogs, raises alerts when thresholds or trends are crossed, and notifies
owners, teachers and admins.

Examples:
  # Run the hook API
  pawwatch serve -c /etc/pawwatch/pawwatch.yaml

  # Dry-run the rules over a sample file
  pawwatch check samples.yaml

  # Load subjects and users
  pawwatch import directory.yaml -c pawwatch.yaml`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
}

// loadConfig reads --config, or returns the defaults when none is given.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// printError prints an error message to stderr.
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
