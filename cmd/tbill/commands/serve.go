package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alqatri/tbilltracker/internal/api"
	"github.com/alqatri/tbilltracker/internal/api/handlers"
	"github.com/alqatri/tbilltracker/internal/scheduler"
	"github.com/alqatri/tbilltracker/internal/scheduler/jobs"
)

// serveCmd runs the operational API together with the background scheduler.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and the ingestion scheduler",
	Long: `Starts the operational HTTP API and the cron-driven ingestion
scheduler in one process. Stop with Ctrl+C; shutdown drains in-flight
requests and waits for a running ingestion to settle.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, cleanup, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	orchestrator := buildOrchestrator(cfg, log, st)

	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewIngestionJob(orchestrator, cfg.Ingest.CronSpec, log)); err != nil {
		return fmt.Errorf("register ingestion job: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	auctionHandler := handlers.NewAuctionHandler(st, orchestrator, log)
	router := api.NewRouter(auctionHandler, log)
	server := api.New(cfg, log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	PrintSuccess(fmt.Sprintf("API listening on :%s, scheduler running (%s)", cfg.APIPort, cfg.Ingest.CronSpec))
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
