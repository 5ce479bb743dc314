package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/petrijr/processo"
	"github.com/petrijr/processo/pkg/entsync"
	"github.com/petrijr/processo/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the process-execution and entity-sync HTTP surface. Processes
can be started, interacted with, and rolled back over JSON endpoints; entity
locks are requested and released under /api/sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := loadConfig(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		logger := newLogger(cfg)

		obs := processo.NewCompositeObserver(
			processo.NewLoggingObserver(logger),
			metrics.NewObserver(prometheus.DefaultRegisterer),
		)

		eng, cleanup, err := newEngine(cfg, obs)
		if err != nil {
			fmt.Printf("Error building engine: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		if err := registerProcesses(eng); err != nil {
			fmt.Printf("Error registering processes: %v\n", err)
			os.Exit(1)
		}

		// Instances left RUNNING by a previous crash cannot make progress.
		recovered, err := eng.RecoverStuckInstances(context.Background())
		if err != nil {
			fmt.Printf("Error recovering instances: %v\n", err)
			os.Exit(1)
		}
		if recovered > 0 {
			logger.Info("recovered stuck instances", "count", recovered)
		}

		syncSvc := entsync.NewService(entsync.NewMemoryLockStore(), logger)

		srv := &http.Server{
			Addr:    cfg.Listen,
			Handler: buildHandler(eng, syncSvc),
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting processo server on %s (store=%s)\n", srv.Addr, cfg.Store)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("processo server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
