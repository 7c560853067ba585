package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alqatri/tbilltracker/internal/scraper"
	"github.com/alqatri/tbilltracker/internal/store"
	"github.com/alqatri/tbilltracker/internal/treasury"
	"github.com/alqatri/tbilltracker/pkg/config"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

// ErrRunInProgress is returned to a trigger that arrives while another run
// holds the pipeline. The caller gets no partial state, just the rejection.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// State tracks where in the pipeline a run currently is.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateParsing
	StatePersisting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateParsing:
		return "parsing"
	case StatePersisting:
		return "persisting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets reports serialize states by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome classifies how a run ended, distinguishable without reading logs.
type Outcome string

const (
	// OutcomeUpToDate means the stored dataset is fresh enough that no fetch
	// was attempted.
	OutcomeUpToDate Outcome = "up_to_date"

	// OutcomeUpdated means every parsed record persisted.
	OutcomeUpdated Outcome = "updated"

	// OutcomePartialUpdate means valid records persisted while some rows were
	// rejected during parsing.
	OutcomePartialUpdate Outcome = "partial_update"

	// OutcomeFailed means nothing was persisted.
	OutcomeFailed Outcome = "failed"
)

// Report is the full account of one ingestion run.
type Report struct {
	State      State              `json:"state"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Attempts   int                `json:"attempts"`
	Fetched    int                `json:"fetched_bytes"`
	Parsed     int                `json:"parsed_records"`
	Stored     int                `json:"stored_records"`
	Rejected   []scraper.RowError `json:"rejected_rows,omitempty"`
	Outcome    Outcome            `json:"outcome"`
	Err        string             `json:"error,omitempty"`
}

// Parser turns a raw payload into auction records.
type Parser interface {
	Parse(payload *scraper.RawPayload) (*scraper.ParseResult, error)
}

// Orchestrator drives one fetch→parse→persist pipeline at a time.
type Orchestrator struct {
	fetcher scraper.Fetcher
	parser  Parser
	store   store.Store
	cfg     config.IngestConfig
	log     *logger.Logger

	// sleep is swappable so retry tests run without wall-clock delays.
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
	last    *Report
}

// New wires the pipeline. The orchestrator does not own the store's
// lifecycle.
func New(fetcher scraper.Fetcher, parser Parser, st store.Store, cfg config.IngestConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		fetcher: fetcher,
		parser:  parser,
		store:   st,
		cfg:     cfg,
		log:     log.Component("ingest"),
		sleep:   sleepContext,
	}
}

// Run executes one ingestion run. With force false, a dataset whose newest
// session date is within the publication cadence short-circuits to
// OutcomeUpToDate without touching the source.
//
// Run is single-flight: a second caller gets ErrRunInProgress while the
// first still holds the pipeline.
func (o *Orchestrator) Run(ctx context.Context, force bool) (*Report, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	if o.cfg.RunBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunBudget)
		defer cancel()
	}

	report := &Report{State: StateFetching, StartedAt: time.Now().UTC()}
	err := o.run(ctx, force, report)
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.State = StateFailed
		report.Outcome = OutcomeFailed
		report.Err = err.Error()
		o.log.WithError(err).WithField("attempts", report.Attempts).Error("Ingestion run failed")
	}

	o.mu.Lock()
	o.last = report
	o.mu.Unlock()

	return report, err
}

func (o *Orchestrator) run(ctx context.Context, force bool, report *Report) error {
	if !force && o.upToDate(ctx) {
		report.State = StateSucceeded
		report.Outcome = OutcomeUpToDate
		o.log.Info("Dataset within publication cadence, skipping fetch")
		return nil
	}

	payload, err := o.fetchWithRetry(ctx, report)
	if err != nil {
		return err
	}
	report.Fetched = len(payload.HTML)

	report.State = StateParsing
	result, err := o.parser.Parse(payload)
	if err != nil {
		return fmt.Errorf("parse listing: %w", err)
	}
	report.Parsed = len(result.Records)
	report.Rejected = result.Rejected

	// The fetcher never hands over an empty payload, so zero valid records
	// means the page no longer looks like an auction listing.
	if len(result.Records) == 0 {
		return fmt.Errorf("no valid records in %d-byte payload: %w", len(payload.HTML), scraper.ErrSchemaDrift)
	}

	report.State = StatePersisting
	if err := o.store.UpsertMany(ctx, result.Records); err != nil {
		return fmt.Errorf("persist records: %w", err)
	}
	report.Stored = len(result.Records)

	report.State = StateSucceeded
	if len(result.Rejected) > 0 {
		report.Outcome = OutcomePartialUpdate
		o.log.WithFields(map[string]interface{}{
			"stored":   report.Stored,
			"rejected": len(result.Rejected),
		}).Warn("Ingestion stored a partial batch")
	} else {
		report.Outcome = OutcomeUpdated
		o.log.WithField("stored", report.Stored).Info("Ingestion run complete")
	}
	return nil
}

// upToDate reports whether the newest stored session date is within the
// publication cadence. Any storage doubt resolves to "stale" so the run
// proceeds to fetch.
func (o *Orchestrator) upToDate(ctx context.Context) bool {
	if o.cfg.Cadence <= 0 {
		return false
	}
	latest, err := o.store.LatestSessionDate(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.log.WithError(err).Warn("Freshness check failed, proceeding with fetch")
		}
		return false
	}
	return time.Since(latest) < o.cfg.Cadence
}

// fetchWithRetry fetches the listing with bounded exponential backoff.
// Unavailability and render timeouts are retried; a block signal from the
// source aborts the run immediately.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, report *Report) (*scraper.RawPayload, error) {
	delay := o.cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		report.Attempts = attempt

		payload, err := o.fetcher.FetchListing(ctx)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if errors.Is(err, scraper.ErrSourceBlocked) {
			return nil, fmt.Errorf("fetch attempt %d: %w", attempt, err)
		}
		if !errors.Is(err, scraper.ErrSourceUnavailable) && !errors.Is(err, scraper.ErrRenderTimeout) {
			return nil, fmt.Errorf("fetch attempt %d: %w", attempt, err)
		}
		if attempt == o.cfg.MaxAttempts {
			break
		}

		o.log.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Fetch failed, backing off")

		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
		if o.cfg.MaxDelay > 0 && delay > o.cfg.MaxDelay {
			delay = o.cfg.MaxDelay
		}
	}

	return nil, fmt.Errorf("fetch exhausted %d attempts: %w", o.cfg.MaxAttempts, lastErr)
}

// LastReport returns a copy of the most recent run's report, or nil when no
// run has happened yet.
func (o *Orchestrator) LastReport() *Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return nil
	}
	cp := *o.last
	return &cp
}

// Running reports whether a run currently holds the pipeline.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LatestPerTenor returns the latest record for each tenor that has one.
// Status surfaces use it; tenors with no history are skipped, not errors.
func (o *Orchestrator) LatestPerTenor(ctx context.Context) ([]treasury.AuctionRecord, error) {
	var out []treasury.AuctionRecord
	for _, tenor := range treasury.Tenors {
		rec, err := o.store.Latest(ctx, tenor)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}
