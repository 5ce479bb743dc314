package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "processo",
	Short: "Processo runs business processes with interaction and rollback",
	Long: `Processo is an embeddable business-process engine. This command runs
registered processes from the command line and serves the HTTP surface
(process execution and entity-sync lock endpoints).`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
}
