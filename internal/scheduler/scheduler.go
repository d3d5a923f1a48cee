// Package scheduler triggers ingestion jobs from cron, chat commands and
// the HTTP surface, and reports their outcome.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"PortfolioPulse/internal/ingest"
	"PortfolioPulse/internal/model"
	"PortfolioPulse/internal/notifier"
	"PortfolioPulse/internal/recorder"
)

// ErrBusy is returned when a run of the same job is already in progress.
var ErrBusy = errors.New("job already running")

// Runner executes ingestion jobs. *ingest.Jobs satisfies it.
type Runner interface {
	Run(ctx context.Context, job string) (*model.RunReport, error)
}

// Sender delivers operator messages. *notifier.TelegramNotifier satisfies it.
type Sender interface {
	SendWithRetry(ctx context.Context, text string) error
}

// SignalSource computes analytics signals.
type SignalSource interface {
	Signal(ctx context.Context, ticker string) (*model.Signal, error)
}

// Jobs lists the job names the scheduler knows, in display order.
var Jobs = []string{ingest.JobDaily, ingest.JobBackfill}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	sender  Sender
	runs    recorder.Reader
	signals SignalSource
	logger  *zap.Logger
	ctx     context.Context

	mu      sync.Mutex
	running map[string]bool
}

// NewScheduler creates a new Scheduler. sender, runs and signals may be nil.
func NewScheduler(ctx context.Context, runner Runner, sender Sender, runs recorder.Reader, signals SignalSource, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		sender:  sender,
		runs:    runs,
		signals: signals,
		logger:  logger,
		ctx:     ctx,
		running: make(map[string]bool),
	}
}

// RegisterAll registers the daily refresh and the backfill. An empty
// backfill spec leaves backfill to manual triggers.
func (s *Scheduler) RegisterAll(dailyCron, backfillCron string) error {
	if _, err := s.cron.AddFunc(dailyCron, func() { s.runScheduled(ingest.JobDaily) }); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	if backfillCron == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(backfillCron, func() { s.runScheduled(ingest.JobBackfill) }); err != nil {
		return fmt.Errorf("register backfill task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunDailyNow runs the daily refresh immediately (manual trigger / RUN_ON_START).
func (s *Scheduler) RunDailyNow() { s.runScheduled(ingest.JobDaily) }

// RunBackfillNow runs the backfill immediately.
func (s *Scheduler) RunBackfillNow() { s.runScheduled(ingest.JobBackfill) }

// Trigger runs job on the scheduler's context unless a run of the same job
// is in progress, and notifies the outcome.
func (s *Scheduler) Trigger(job string) (*model.RunReport, error) {
	if !s.acquire(job) {
		return nil, fmt.Errorf("%s: %w", job, ErrBusy)
	}
	defer s.release(job)

	s.logger.Info("running job", zap.String("job", job))
	report, err := s.runner.Run(s.ctx, job)
	if err != nil {
		s.logger.Error("job could not start", zap.String("job", job), zap.Error(err))
		s.trySend(fmt.Sprintf("❌ %s run could not start: %v", job, err))
		return nil, err
	}
	s.trySend(notifier.FormatRunReport(report))
	return report, nil
}

func (s *Scheduler) runScheduled(job string) {
	if _, err := s.Trigger(job); errors.Is(err, ErrBusy) {
		s.logger.Warn("skipping run, previous run still active", zap.String("job", job))
	}
}

func (s *Scheduler) acquire(job string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[job] {
		return false
	}
	s.running[job] = true
	return true
}

func (s *Scheduler) release(job string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, job)
}

// Running reports whether job is in progress.
func (s *Scheduler) Running(job string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[job]
}

// HandleCommand processes a user command and returns a reply. Job
// commands start the run in the background; its report is sent when done.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch strings.ToLower(fields[0]) {
	case "/daily", "/backfill":
		job := strings.TrimPrefix(strings.ToLower(fields[0]), "/")
		if s.Running(job) {
			return fmt.Sprintf("⏳ %s run already in progress", job)
		}
		go s.runScheduled(job)
		return fmt.Sprintf("▶️ %s run started", job)
	case "/status":
		return s.status(ctx)
	case "/signal":
		if len(fields) < 2 {
			return "usage: /signal TICKER"
		}
		return s.signal(ctx, fields[1])
	default:
		return helpText
	}
}

// repeatFailureRuns is how many recent daily runs /status inspects for
// chronically failing tickers.
const repeatFailureRuns = 5

// sendTimeout bounds one notification including its retries.
const sendTimeout = 30 * time.Second

const helpText = "Commands:\n• /daily: refresh today's quotes\n• /backfill: ingest history\n• /status: last runs\n• /signal TICKER: analytics signal"

func (s *Scheduler) status(ctx context.Context) string {
	if s.runs == nil {
		return "run history is not configured"
	}
	latest := make(map[string]*model.RunReport, len(Jobs))
	for _, job := range Jobs {
		r, err := s.runs.Latest(ctx, job)
		if err != nil {
			if !errors.Is(err, recorder.ErrNoRuns) {
				s.logger.Error("read run history", zap.String("job", job), zap.Error(err))
			}
			continue
		}
		latest[job] = r
	}
	msg := notifier.FormatStatus(latest, Jobs)
	if fc, ok := s.runs.(recorder.FailureCounter); ok {
		counts, err := fc.FailureCounts(ctx, ingest.JobDaily, repeatFailureRuns)
		if err != nil {
			s.logger.Error("read failure counts", zap.Error(err))
		} else {
			msg += notifier.FormatRepeatFailures(ingest.JobDaily, counts, repeatFailureRuns)
		}
	}
	return msg
}

func (s *Scheduler) signal(ctx context.Context, ticker string) string {
	if s.signals == nil {
		return "analytics is not configured"
	}
	sig, err := s.signals.Signal(ctx, ticker)
	if err != nil {
		return fmt.Sprintf("❌ %s: %v", model.NormalizeTicker(ticker), err)
	}
	return notifier.FormatSignal(sig)
}

func (s *Scheduler) trySend(text string) {
	if s.sender == nil {
		return
	}
	// Reports of runs cut short by shutdown are still delivered.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), sendTimeout)
	defer cancel()
	if err := s.sender.SendWithRetry(ctx, text); err != nil {
		s.logger.Error("send notification", zap.Error(err))
	}
}
