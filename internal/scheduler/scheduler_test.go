package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqatri/tbilltracker/internal/ingest"
	"github.com/alqatri/tbilltracker/pkg/config"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
}

type stubJob struct {
	name     string
	schedule string
	err      error
	runs     int
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }
func (j *stubJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(testLogger())
	job := &stubJob{name: "ingest", schedule: "0 0 */4 * * *"}

	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job), "duplicate name must be rejected")
}

func TestScheduler_AddJobBadSchedule(t *testing.T) {
	s := New(testLogger())
	err := s.AddJob(&stubJob{name: "broken", schedule: "not a cron expression"})
	assert.Error(t, err)
}

func TestScheduler_TriggerJob(t *testing.T) {
	s := New(testLogger())
	job := &stubJob{name: "ingest", schedule: "@daily"}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.TriggerJob(context.Background(), "ingest"))
	assert.Equal(t, 1, job.runs)

	assert.Error(t, s.TriggerJob(context.Background(), "missing"))
}

func TestScheduler_HistoryRecordsOutcomes(t *testing.T) {
	s := New(testLogger())
	job := &stubJob{name: "ingest", schedule: "@daily"}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.TriggerJob(context.Background(), "ingest"))
	job.err = errors.New("source down")
	require.NoError(t, s.TriggerJob(context.Background(), "ingest"))

	history, err := s.JobHistoryFor("ingest")
	require.NoError(t, err)
	require.Len(t, history.Results, 2)
	assert.True(t, history.Results[0].Success)
	assert.False(t, history.Results[1].Success)
	assert.Equal(t, "source down", history.Results[1].Error)
	assert.InDelta(t, 0.5, history.SuccessRate(), 1e-9)
}

func TestScheduler_InProgressCountsAsSkip(t *testing.T) {
	s := New(testLogger())
	job := &stubJob{name: "ingest", schedule: "@daily", err: ingest.ErrRunInProgress}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.TriggerJob(context.Background(), "ingest"))

	history, err := s.JobHistoryFor("ingest")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)
	assert.True(t, history.Results[0].Success)
	assert.True(t, history.Results[0].Skipped)
	assert.Empty(t, history.Results[0].Error)
}

func TestScheduler_Stats(t *testing.T) {
	s := New(testLogger())
	job := &stubJob{name: "ingest", schedule: "@daily"}
	require.NoError(t, s.AddJob(job))
	require.NoError(t, s.TriggerJob(context.Background(), "ingest"))

	stats := s.Stats()
	require.Contains(t, stats, "ingest")
	assert.Equal(t, 1, stats["ingest"].TotalRuns)
	assert.Equal(t, "@daily", stats["ingest"].Schedule)
	assert.NotNil(t, stats["ingest"].LastRun)
	assert.NotNil(t, stats["ingest"].LastSuccess)
	assert.Nil(t, stats["ingest"].LastFailure)
}

func TestJobHistory_WindowEviction(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historyWindow+10; i++ {
		h.AddResult(JobResult{JobName: "ingest", StartTime: time.Now(), Success: true})
	}
	assert.Len(t, h.Results, historyWindow)
}
