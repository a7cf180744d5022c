package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	buildinfo "github.com/good-yellow-bee/pawwatch/pkg/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of pawwatch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if output == "json" {
			data, err := json.MarshalIndent(buildinfo.GetBuildInfo(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.VersionString())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
