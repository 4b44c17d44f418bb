package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "homesync",
	Short:         "Household coordination API",
	Long:          `HomeSync plans a household's chores and meals and keeps its weekly shopping list in step with the accepted meals.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/config.yaml", "Path to configuration file")
	rootCmd.AddCommand(serveCmd, migrateCmd, syncCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
