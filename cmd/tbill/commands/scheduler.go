package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alqatri/tbilltracker/internal/scheduler"
	"github.com/alqatri/tbilltracker/internal/scheduler/jobs"
)

// schedulerCmd runs only the cron-driven ingestion, without the API.
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the ingestion scheduler",
	Long: `Runs the cron-driven ingestion daemon without the HTTP API.

The schedule comes from INGEST_CRON (seconds-resolution cron
expression). Each trigger performs a non-forced run: a dataset within
the source's publication cadence is left untouched.`,
	RunE: runSchedulerDaemon,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runSchedulerDaemon(cmd *cobra.Command, args []string) error {
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
	job := jobs.NewIngestionJob(orchestrator, cfg.Ingest.CronSpec, log)
	if err := sched.AddJob(job); err != nil {
		return fmt.Errorf("register ingestion job: %w", err)
	}

	sched.Start()
	PrintSuccess(fmt.Sprintf("Scheduler started, %s on %q", job.Name(), job.Schedule()))
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()

	for name, stat := range sched.Stats() {
		fmt.Printf("📊 %s\n", name)
		PrintKeyValue("Total runs", fmt.Sprintf("%d", stat.TotalRuns), 12)
		PrintKeyValue("Success", fmt.Sprintf("%.1f%%", stat.SuccessRate*100), 12)
		if stat.LastRun != nil {
			PrintKeyValue("Last run", stat.LastRun.Format("2006-01-02 15:04:05"), 12)
		}
	}
	return nil
}
