package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alqatri/tbilltracker/internal/ingest"
)

var updateForce bool

// updateCmd runs one ingestion cycle.
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch and store the latest auction results",
	Long: `Runs one fetch → parse → persist cycle against the auction listing.

Without --force, a dataset already within the source's publication
cadence is left untouched.

Exit codes:
  0  updated or already up to date
  1  run failed, nothing stored
  2  partial update, some rows rejected`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "fetch even when the dataset looks fresh")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
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

	report, err := orchestrator.Run(ctx, updateForce)
	if err != nil {
		PrintError(fmt.Sprintf("Ingestion failed after %d attempt(s): %v", report.Attempts, err))
		return err
	}

	printReport(report)

	if report.Outcome == ingest.OutcomePartialUpdate {
		exitCode = 2
	}
	return nil
}

func printReport(report *ingest.Report) {
	PrintDoubleSeparator()
	fmt.Println("  Ingestion Report")
	PrintSeparator()
	PrintKeyValue("Outcome", string(report.Outcome), 12)
	PrintKeyValue("Attempts", fmt.Sprintf("%d", report.Attempts), 12)
	PrintKeyValue("Duration", report.FinishedAt.Sub(report.StartedAt).String(), 12)
	PrintKeyValue("Parsed", fmt.Sprintf("%d", report.Parsed), 12)
	PrintKeyValue("Stored", fmt.Sprintf("%d", report.Stored), 12)
	PrintKeyValue("Rejected", fmt.Sprintf("%d", len(report.Rejected)), 12)
	PrintSeparator()

	switch report.Outcome {
	case ingest.OutcomeUpToDate:
		PrintInfo("Dataset already up to date, source not contacted")
	case ingest.OutcomeUpdated:
		PrintSuccess(fmt.Sprintf("Stored %d auction record(s)", report.Stored))
	case ingest.OutcomePartialUpdate:
		PrintWarning(fmt.Sprintf("Stored %d record(s), rejected %d row(s):", report.Stored, len(report.Rejected)))
		for _, rej := range report.Rejected {
			fmt.Printf("   • tenor %d (%d): %s\n", rej.TenorDays, rej.Section, rej.Reason)
		}
	}
}
