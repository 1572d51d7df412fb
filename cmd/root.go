package cmd

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "tactilesql-scheduler",
	Short: "Claim-based task scheduler and run-lifecycle engine",
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
