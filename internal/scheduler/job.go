package scheduler

import (
	"context"
	"time"
)

// Job is a unit of scheduled work.
type Job interface {
	// Name returns the job name.
	Name() string

	// Run executes the job. Retry policy belongs to the job itself; the
	// scheduler records one result per trigger.
	Run(ctx context.Context) error

	// Schedule returns the cron expression, with seconds field.
	// Examples: "0 0 */4 * * *" (every 4 hours), "@daily".
	Schedule() string
}

// JobResult is the outcome of one trigger.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory keeps a bounded window of recent results per job.
type JobHistory struct {
	Results []JobResult
}

const historyWindow = 100

// AddResult appends a result, evicting the oldest past the window.
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyWindow {
		h.Results = h.Results[len(h.Results)-historyWindow:]
	}
}

// Latest returns the most recent result, or nil when the job never ran.
func (h *JobHistory) Latest() *JobResult {
	if len(h.Results) == 0 {
		return nil
	}
	return &h.Results[len(h.Results)-1]
}

// SuccessRate returns the fraction of successful runs in the window,
// counting skips as successes.
func (h *JobHistory) SuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0.0
	}

	success := 0
	for _, result := range h.Results {
		if result.Success {
			success++
		}
	}
	return float64(success) / float64(len(h.Results))
}
