package jobs

import (
	"context"

	"github.com/alqatri/tbilltracker/internal/ingest"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

// IngestionJob triggers a scheduled ingestion run. Freshness gating,
// retries, and single-flight all live in the orchestrator; the job only
// decides when to knock.
type IngestionJob struct {
	orchestrator *ingest.Orchestrator
	schedule     string
	log          *logger.Logger
}

// NewIngestionJob wires the job to the orchestrator with a cron expression
// from config.
func NewIngestionJob(orchestrator *ingest.Orchestrator, schedule string, log *logger.Logger) *IngestionJob {
	return &IngestionJob{
		orchestrator: orchestrator,
		schedule:     schedule,
		log:          log.Component("job.ingestion"),
	}
}

// Name returns the job name.
func (j *IngestionJob) Name() string {
	return "auction-ingestion"
}

// Schedule returns the cron expression.
func (j *IngestionJob) Schedule() string {
	return j.schedule
}

// Run performs one non-forced ingestion run. A dataset already within the
// publication cadence resolves to an up-to-date report, not a fetch.
func (j *IngestionJob) Run(ctx context.Context) error {
	report, err := j.orchestrator.Run(ctx, false)
	if err != nil {
		return err
	}

	j.log.WithFields(map[string]interface{}{
		"outcome":  string(report.Outcome),
		"stored":   report.Stored,
		"rejected": len(report.Rejected),
	}).Info("Scheduled ingestion finished")
	return nil
}
