package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smm",
	Short: "smm - social media activity scheduler and publisher",
	Long: `smm schedules social media activities from activity plans, generates
their content and publishes them to the configured platforms.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(walkCmd)
}
