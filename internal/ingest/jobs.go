// Package ingest exposes the two ingestion entry points: a historical
// backfill and the daily refresh.
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"PortfolioPulse/internal/model"
	"PortfolioPulse/internal/orchestrator"
	"PortfolioPulse/internal/recorder"
	"PortfolioPulse/internal/universe"
)

// Job names used in reports, logs and the run history.
const (
	JobBackfill = "backfill"
	JobDaily    = "daily"
)

// Pacing tunes how a job walks the universe.
type Pacing struct {
	BatchSize       int
	Concurrency     int
	InterBatchPause time.Duration
	AttemptTimeout  time.Duration
}

// BackfillSettings configures BackfillHistorical.
type BackfillSettings struct {
	Pacing
	// LookbackDays is the size of the window ending today, in calendar days.
	LookbackDays int
	// Incremental starts each ticker at the first gap in its stored days
	// inside the window.
	Incremental bool
}

// maxClosure is the longest run of calendar days without a session that
// still counts as covered, such as a holiday next to a weekend.
const maxClosure = 4 * 24 * time.Hour

// DayLister lists the stored trading days of a ticker.
type DayLister interface {
	StoredDays(ctx context.Context, ticker string, from, to time.Time) ([]time.Time, error)
}

// Jobs runs ingestion jobs against one universe and records every report.
type Jobs struct {
	orch     *orchestrator.Orchestrator
	universe universe.Source
	prices   DayLister
	recorder recorder.Recorder
	backfill BackfillSettings
	daily    Pacing
	logger   *zap.Logger
	now      func() time.Time
}

// NewJobs creates the job runner. rec may be nil.
func NewJobs(orch *orchestrator.Orchestrator, u universe.Source, prices DayLister, rec recorder.Recorder,
	backfill BackfillSettings, daily Pacing, logger *zap.Logger) *Jobs {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Jobs{
		orch:     orch,
		universe: u,
		prices:   prices,
		recorder: rec,
		backfill: backfill,
		daily:    daily,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the clock deciding what "today" is.
func (j *Jobs) SetClock(now func() time.Time) { j.now = now }

// BackfillHistorical ingests [today - lookback, today] for every ticker.
func (j *Jobs) BackfillHistorical(ctx context.Context) (*model.RunReport, error) {
	today := model.TradingDay(j.now())
	window := model.DateRange{Start: today.AddDate(0, 0, -j.backfill.LookbackDays), End: today}

	plan := j.plan(JobBackfill, model.FetchHistorical, window, j.backfill.Pacing)
	if j.backfill.Incremental && j.prices != nil {
		plan.RangeFor = func(ctx context.Context, ticker string) (model.DateRange, error) {
			return j.incrementalRange(ctx, ticker, window)
		}
	}
	return j.run(ctx, plan)
}

// RefreshDaily ingests today's quote for every ticker.
func (j *Jobs) RefreshDaily(ctx context.Context) (*model.RunReport, error) {
	today := model.TradingDay(j.now())
	plan := j.plan(JobDaily, model.FetchDaily, model.DateRange{Start: today, End: today}, j.daily)
	return j.run(ctx, plan)
}

// Run dispatches by job name.
func (j *Jobs) Run(ctx context.Context, job string) (*model.RunReport, error) {
	switch job {
	case JobBackfill:
		return j.BackfillHistorical(ctx)
	case JobDaily:
		return j.RefreshDaily(ctx)
	default:
		return nil, model.Errorf(model.KindPreconditionFailure, "", "unknown job %q", job)
	}
}

func (j *Jobs) plan(job string, mode model.FetchMode, r model.DateRange, p Pacing) orchestrator.Plan {
	return orchestrator.Plan{
		Job:             job,
		Mode:            mode,
		Range:           r,
		Concurrency:     p.Concurrency,
		BatchSize:       p.BatchSize,
		InterBatchPause: p.InterBatchPause,
		AttemptTimeout:  p.AttemptTimeout,
	}
}

// incrementalRange narrows window to start at the first day not covered by
// stored data. Coverage is counted from the window start, so a ticker holding
// only recent daily rows still gets its full history. An empty range means
// the ticker is already current.
func (j *Jobs) incrementalRange(ctx context.Context, ticker string, window model.DateRange) (model.DateRange, error) {
	days, err := j.prices.StoredDays(ctx, ticker, window.Start, window.End)
	if err != nil {
		return window, err
	}
	window.Start = coveredUntil(window.Start, days)
	return window, nil
}

// coveredUntil walks the sorted stored days from start and returns the day
// after the covered prefix ends.
func coveredUntil(start time.Time, days []time.Time) time.Time {
	next := start
	for _, d := range days {
		if d.Sub(next) > maxClosure {
			break
		}
		if !d.Before(next) {
			next = d.AddDate(0, 0, 1)
		}
	}
	return next
}

func (j *Jobs) run(ctx context.Context, plan orchestrator.Plan) (*model.RunReport, error) {
	report, err := j.orch.Run(ctx, j.universe, plan)
	if err != nil {
		return nil, err
	}

	// A canceled run is still recorded.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := j.recorder.RecordRun(rctx, report); err != nil {
		j.logger.Error("record run", zap.String("job", plan.Job), zap.String("run_id", report.RunID), zap.Error(err))
	}
	return report, nil
}
