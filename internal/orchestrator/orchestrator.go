// Package orchestrator runs ingestion over a ticker universe in sequential
// batches with bounded concurrency inside each batch.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"PortfolioPulse/internal/collector"
	"PortfolioPulse/internal/model"
	"PortfolioPulse/internal/retry"
	"PortfolioPulse/internal/universe"
)

// Writer persists one observation. store.PriceStore satisfies it.
type Writer interface {
	Upsert(ctx context.Context, obs model.PriceObservation) (model.StoredPrice, error)
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// RangeFunc resolves the date range to ingest for one ticker.
type RangeFunc func(ctx context.Context, ticker string) (model.DateRange, error)

// Plan describes one run.
type Plan struct {
	Job  string
	Mode model.FetchMode
	// Range is used for every ticker unless RangeFor is set.
	Range    model.DateRange
	RangeFor RangeFunc

	Concurrency     int
	BatchSize       int
	InterBatchPause time.Duration
	// AttemptTimeout bounds a single fetch-and-write attempt. Attempts are
	// not interrupted by run cancellation, only by this timeout.
	AttemptTimeout time.Duration
}

func (p Plan) withDefaults(n int) Plan {
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	if p.BatchSize < 1 {
		p.BatchSize = n
	}
	if p.Mode == "" {
		p.Mode = model.FetchHistorical
	}
	return p
}

// Orchestrator drives QuoteSource and Writer for every ticker of a run.
type Orchestrator struct {
	source collector.QuoteSource
	writer Writer
	policy retry.Policy
	logger *zap.Logger
	sleep  Sleeper
	now    func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the timer used for retry delays and batch pauses.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithClock replaces the wall clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(source collector.QuoteSource, writer Writer, policy retry.Policy, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source: source,
		writer: writer,
		policy: policy,
		logger: logger,
		sleep:  Sleep,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run reads the universe and ingests every ticker in it. The only error is
// a precondition failure when the universe cannot be read; per-ticker
// failures are reported in the RunReport.
func (o *Orchestrator) Run(ctx context.Context, u universe.Source, plan Plan) (*model.RunReport, error) {
	tickers, err := u.ListActiveTickers(ctx)
	if err != nil {
		o.logger.Error("ticker universe unavailable", zap.String("job", plan.Job), zap.Error(err))
		return nil, fmt.Errorf("list ticker universe: %w: %w", model.ErrPreconditionFailure, err)
	}
	return o.RunTickers(ctx, tickers, plan), nil
}

// RunTickers ingests the given tickers. Batches run one after another with
// plan.InterBatchPause between them; within a batch at most
// plan.Concurrency tickers are in flight. Cancelling ctx stops new
// attempts and the partial report is returned with Canceled set.
func (o *Orchestrator) RunTickers(ctx context.Context, tickers []string, plan Plan) *model.RunReport {
	tickers = Normalize(tickers)
	plan = plan.withDefaults(len(tickers))
	log := o.logger.With(zap.String("job", plan.Job), zap.String("run_mode", string(plan.Mode)))

	report := model.NewRunReport(plan.Job, o.now())
	report.Universe = len(tickers)
	log.Info("run started",
		zap.String("run_id", report.RunID),
		zap.Int("universe", len(tickers)),
		zap.Int("batch_size", plan.BatchSize),
		zap.Int("concurrency", plan.Concurrency))

	batches := Partition(tickers, plan.BatchSize)
	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		for _, out := range o.runBatch(ctx, batch, plan) {
			if out != nil {
				report.Add(*out)
			}
		}
		log.Debug("batch finished", zap.Int("batch", i+1), zap.Int("batches", len(batches)))
		if i == len(batches)-1 || ctx.Err() != nil {
			continue
		}
		if err := o.sleep(ctx, plan.InterBatchPause); err != nil {
			break
		}
	}

	report.Canceled = ctx.Err() != nil
	report.FinishedAt = o.now()
	log.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("written", report.Written),
		zap.Bool("canceled", report.Canceled),
		zap.Duration("elapsed", report.Duration()))
	return report
}

// runBatch returns one outcome per ticker in input order; nil marks a
// ticker skipped because the run was canceled.
func (o *Orchestrator) runBatch(ctx context.Context, batch []string, plan Plan) []*model.IngestionOutcome {
	results := make([]*model.IngestionOutcome, len(batch))
	p := pool.New().WithMaxGoroutines(plan.Concurrency)
	for i, ticker := range batch {
		i, ticker := i, ticker
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			out := o.ingest(ctx, ticker, plan)
			results[i] = &out
		})
	}
	p.Wait()
	return results
}

// ingest runs one ticker to a terminal state.
func (o *Orchestrator) ingest(ctx context.Context, ticker string, plan Plan) (out model.IngestionOutcome) {
	started := o.now()
	out = model.IngestionOutcome{Ticker: ticker, State: model.StatePending}
	defer func() { out.Elapsed = o.now().Sub(started).Seconds() }()
	log := o.logger.With(zap.String("job", plan.Job), zap.String("ticker", ticker))

	task, err := o.task(ctx, ticker, plan)
	if err != nil {
		out.Fail(model.KindOf(err), err, 0)
		log.Warn("cannot plan ticker", zap.Error(err))
		return out
	}
	out.Range = task.Range
	if task.Range.Empty() {
		out.Succeed(0)
		log.Debug("already up to date")
		return out
	}

	for attempt := 0; ; attempt++ {
		out.State = model.StateAttempting
		out.Attempts = attempt + 1
		written, dropped, err := o.attempt(ctx, task, plan.AttemptTimeout)
		out.Dropped = dropped
		if err == nil {
			out.Succeed(written)
			log.Debug("ingested", zap.Int("count", written), zap.Int("dropped", dropped), zap.Int("attempts", out.Attempts))
			return out
		}

		kind := model.KindOf(err)
		delay, ok := o.policy.NextDelay(kind, attempt)
		if !ok {
			out.Fail(kind, err, written)
			log.Warn("ticker failed", zap.String("kind", string(kind)), zap.Int("attempts", out.Attempts), zap.Error(err))
			return out
		}

		out.State = model.StateRetrying
		log.Info("retrying", zap.String("kind", string(kind)), zap.Int("attempt", out.Attempts), zap.Duration("delay", delay), zap.Error(err))
		if serr := o.sleep(ctx, delay); serr != nil {
			out.Fail(kind, fmt.Errorf("retry abandoned: %w (last error: %v)", serr, err), written)
			log.Warn("retry abandoned", zap.String("kind", string(kind)), zap.Error(serr))
			return out
		}
	}
}

func (o *Orchestrator) task(ctx context.Context, ticker string, plan Plan) (model.TickerTask, error) {
	task := model.TickerTask{Ticker: ticker, Range: plan.Range, Mode: plan.Mode}
	if plan.RangeFor != nil {
		r, err := plan.RangeFor(ctx, ticker)
		if err != nil {
			return task, err
		}
		task.Range = r
	}
	return task, nil
}

// attempt fetches and writes one task. written is the number of rows stored
// by this attempt; dropped counts rows discarded by normalization or
// rejected as invalid.
func (o *Orchestrator) attempt(ctx context.Context, task model.TickerTask, timeout time.Duration) (written, dropped int, err error) {
	actx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, timeout)
		defer cancel()
	}

	if task.Mode == model.FetchDaily {
		obs, err := o.source.FetchDaily(actx, task.Ticker)
		if err != nil {
			return 0, 0, err
		}
		obs.Ticker = task.Ticker
		if _, err := o.writer.Upsert(actx, obs); err != nil {
			return 0, 0, err
		}
		return 1, 0, nil
	}

	it, err := o.source.FetchHistorical(actx, task.Ticker, task.Range.Start, task.Range.End)
	if err != nil {
		return 0, 0, err
	}
	rejected := 0
	for it.Next() {
		obs := it.Observation()
		obs.Ticker = task.Ticker
		if _, err := o.writer.Upsert(actx, obs); err != nil {
			if model.KindOf(err) == model.KindInvalidObservation {
				rejected++
				continue
			}
			return written, it.Dropped() + rejected, err
		}
		written++
	}
	return written, it.Dropped() + rejected, it.Err()
}
