package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alqatri/tbilltracker/internal/ingest"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

// Scheduler triggers registered jobs on their cron expressions and keeps
// per-job history. Jobs own their retry policy; a trigger that loses the
// single-flight race is recorded as skipped, not failed.
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger

	mu      sync.RWMutex
	jobs    map[string]Job
	history map[string]*JobHistory
}

// New creates an empty scheduler. Cron expressions include a seconds field.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		log:     log.Component("scheduler"),
		jobs:    make(map[string]Job),
		history: make(map[string]*JobHistory),
	}
}

// AddJob registers a job under its name. Names are unique.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	if _, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(context.Background(), job)
	}); err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.history[name] = &JobHistory{}

	s.log.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job registered")
	return nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.log.Info("Starting scheduler")
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.log.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// TriggerJob runs a job immediately, outside its schedule.
func (s *Scheduler) TriggerJob(ctx context.Context, name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	s.runJob(ctx, job)
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	name := job.Name()
	start := time.Now()

	s.log.WithField("job", name).Info("Job started")

	err := job.Run(ctx)
	end := time.Now()

	result := JobResult{
		JobName:   name,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Success:   err == nil,
	}

	switch {
	case err == nil:
		s.log.WithFields(map[string]interface{}{
			"job":      name,
			"duration": result.Duration.String(),
		}).Info("Job completed")
	case errors.Is(err, ingest.ErrRunInProgress):
		// Another trigger already holds the pipeline. Not a failure.
		result.Success = true
		result.Skipped = true
		s.log.WithField("job", name).Info("Job skipped, run already in progress")
	default:
		result.Error = err.Error()
		s.log.WithFields(map[string]interface{}{
			"job":      name,
			"duration": result.Duration.String(),
			"error":    err.Error(),
		}).Error("Job failed")
	}

	s.mu.Lock()
	if history, exists := s.history[name]; exists {
		history.AddResult(result)
	}
	s.mu.Unlock()
}

// JobHistoryFor returns the history for a job.
func (s *Scheduler) JobHistoryFor(name string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return history, nil
}

// Stats summarizes every registered job.
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))
	for name, history := range s.history {
		stat := JobStats{
			JobName:     name,
			Schedule:    s.jobs[name].Schedule(),
			TotalRuns:   len(history.Results),
			SuccessRate: history.SuccessRate(),
		}
		if latest := history.Latest(); latest != nil {
			t := latest.StartTime
			stat.LastRun = &t
			if latest.Success {
				stat.LastSuccess = &t
			} else {
				stat.LastFailure = &t
			}
		}
		stats[name] = stat
	}
	return stats
}

// JobStats summarizes one job's recent behavior.
type JobStats struct {
	JobName     string     `json:"job_name"`
	Schedule    string     `json:"schedule"`
	TotalRuns   int        `json:"total_runs"`
	SuccessRate float64    `json:"success_rate"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
}
