package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petrijr/processo"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a registered process to completion",
	Long: `Runs a process from the command line. Seed parameters are given as
--param key=value flags. If the process suspends awaiting interaction, run
reports the awaited parameters and exits; interactive processes are meant to
be driven through the HTTP surface (see "processo serve").`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		processName, _ := cmd.Flags().GetString("process")
		paramFlags, _ := cmd.Flags().GetStringArray("param")

		if processName == "" {
			fmt.Println("--process is required")
			os.Exit(1)
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		logger := newLogger(cfg)

		eng, cleanup, err := newEngine(cfg, processo.NewLoggingObserver(logger))
		if err != nil {
			fmt.Printf("Error building engine: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		if err := registerProcesses(eng); err != nil {
			fmt.Printf("Error registering processes: %v\n", err)
			os.Exit(1)
		}

		params, err := parseParams(paramFlags)
		if err != nil {
			fmt.Printf("Error parsing --param: %v\n", err)
			os.Exit(1)
		}

		inst, err := processo.Start(context.Background(), eng, processName, params)
		if err != nil {
			fmt.Printf("Process failed: %v\n", err)
			os.Exit(1)
		}

		switch inst.Status {
		case processo.StatusSuspended:
			fmt.Printf("Process %s suspended awaiting: %s\n",
				inst.ID, strings.Join(inst.AwaitingParams, ", "))
		default:
			fmt.Printf("Process %s finished with status %s\n", inst.ID, inst.Status)
			for _, name := range sortedParamNames(inst.Params) {
				fmt.Printf("  %s = %v\n", name, inst.Params[name])
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("process", "", "Name of the process to run")
	runCmd.Flags().StringArray("param", nil, "Seed parameter as key=value (repeatable)")
}

// parseParams turns key=value flags into a parameter map. Values are kept
// as strings; steps convert them as needed.
func parseParams(flags []string) (map[string]any, error) {
	params := make(map[string]any, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed parameter %q, want key=value", f)
		}
		params[key] = value
	}
	return params, nil
}

func sortedParamNames(params map[string]any) []string {
	names := make([]string, 0, len(params))
	for n := range params {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
