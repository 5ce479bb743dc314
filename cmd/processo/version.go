package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petrijr/processo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of processo",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("processo version %s\n", strings.TrimSpace(processo.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
