package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"PortfolioPulse/internal/collector"
	"PortfolioPulse/internal/model"
	"PortfolioPulse/internal/orchestrator"
	"PortfolioPulse/internal/recorder"
	"PortfolioPulse/internal/retry"
	"PortfolioPulse/internal/store"
	"PortfolioPulse/internal/universe"
)

var today = time.Date(2024, 6, 14, 21, 30, 0, 0, time.UTC)

// calendarSource returns one bar per calendar day of the requested range
// and remembers what was asked.
type calendarSource struct {
	mu        sync.Mutex
	requested map[string]model.DateRange
	daily     map[string]int
}

func newCalendarSource() *calendarSource {
	return &calendarSource{requested: map[string]model.DateRange{}, daily: map[string]int{}}
}

func (s *calendarSource) Name() string { return "calendar" }

func (s *calendarSource) FetchDaily(ctx context.Context, ticker string) (model.PriceObservation, error) {
	s.mu.Lock()
	s.daily[ticker]++
	s.mu.Unlock()
	return bar(ticker, model.TradingDay(today)), nil
}

func (s *calendarSource) FetchHistorical(ctx context.Context, ticker string, start, end time.Time) (collector.ObservationIter, error) {
	s.mu.Lock()
	s.requested[ticker] = model.DateRange{Start: start, End: end}
	s.mu.Unlock()
	var obs []model.PriceObservation
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		obs = append(obs, bar(ticker, d))
	}
	return collector.NewSliceIter(obs, 0), nil
}

func bar(ticker string, d time.Time) model.PriceObservation {
	return model.PriceObservation{Ticker: ticker, Date: d, Close: model.Decimal(decimal.NewFromInt(42))}
}

type memRecorder struct {
	reports []*model.RunReport
}

func (m *memRecorder) RecordRun(_ context.Context, r *model.RunReport) error {
	m.reports = append(m.reports, r)
	return nil
}
func (m *memRecorder) Close() error { return nil }

type fixture struct {
	jobs  *Jobs
	src   *calendarSource
	store *store.SQLiteStore
	rec   *memRecorder
}

func newFixture(t *testing.T, u universe.Source, backfill BackfillSettings) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "prices.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	src := newCalendarSource()
	orch := orchestrator.New(src, st, retry.DefaultPolicy(), zap.NewNop(),
		orchestrator.WithSleeper(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))
	rec := &memRecorder{}
	jobs := NewJobs(orch, u, st, rec, backfill, Pacing{Concurrency: 4, BatchSize: 50}, zap.NewNop())
	jobs.SetClock(func() time.Time { return today })
	return &fixture{jobs: jobs, src: src, store: st, rec: rec}
}

func TestBackfillHistorical_FullWindow(t *testing.T) {
	f := newFixture(t, universe.Static{"AAA", "BBB"}, BackfillSettings{LookbackDays: 9, Pacing: Pacing{Concurrency: 2}})

	report, err := f.jobs.BackfillHistorical(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Job != JobBackfill || report.Succeeded != 2 || report.Written != 20 {
		t.Errorf("report = %+v", report)
	}
	want := model.DateRange{Start: time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)}
	if got := f.src.requested["AAA"]; !got.Start.Equal(want.Start) || !got.End.Equal(want.End) {
		t.Errorf("requested %s, want %s", got, want)
	}
	if len(f.rec.reports) != 1 || f.rec.reports[0] != report {
		t.Error("report was not recorded")
	}
}

func seed(t *testing.T, st *store.SQLiteStore, ticker string, from, to time.Time) {
	t.Helper()
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if _, err := st.Upsert(context.Background(), bar(ticker, d)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBackfillHistorical_Incremental(t *testing.T) {
	f := newFixture(t, universe.Static{"OLD", "CUR", "GAP", "DONE", "NEW"}, BackfillSettings{LookbackDays: 30, Incremental: true})
	ctx := context.Background()
	day := model.TradingDay(today)
	start := day.AddDate(0, 0, -30)

	seed(t, f.store, "OLD", start, day.AddDate(0, 0, -3))
	seed(t, f.store, "CUR", day, day)
	seed(t, f.store, "GAP", start, day.AddDate(0, 0, -20))
	seed(t, f.store, "GAP", day.AddDate(0, 0, -10), day)
	seed(t, f.store, "DONE", start, day)

	report, err := f.jobs.BackfillHistorical(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 0 || report.Succeeded != 5 {
		t.Fatalf("report = %+v", report)
	}

	tests := []struct {
		ticker string
		want   time.Time
	}{
		{"OLD", day.AddDate(0, 0, -2)},
		{"CUR", start},
		{"GAP", day.AddDate(0, 0, -19)},
		{"NEW", start},
	}
	for _, tt := range tests {
		got, fetched := f.src.requested[tt.ticker]
		if !fetched || !got.Start.Equal(tt.want) || !got.End.Equal(day) {
			t.Errorf("%s requested %s (fetched=%v), want start %s", tt.ticker, got, fetched, tt.want.Format(model.DateLayout))
		}
	}

	if _, fetched := f.src.requested["DONE"]; fetched {
		t.Error("up-to-date ticker was fetched")
	}
	done, _ := report.Outcome("DONE")
	if !done.Success || done.Count != 0 || done.Attempts != 0 {
		t.Errorf("DONE outcome = %+v", done)
	}
}

func TestBackfillHistorical_AfterDailyRefresh(t *testing.T) {
	f := newFixture(t, universe.Static{"NEWCO"}, BackfillSettings{LookbackDays: 1095, Incremental: true})
	ctx := context.Background()
	day := model.TradingDay(today)

	if _, err := f.jobs.RefreshDaily(ctx); err != nil {
		t.Fatal(err)
	}
	report, err := f.jobs.BackfillHistorical(ctx)
	if err != nil {
		t.Fatal(err)
	}
	out, _ := report.Outcome("NEWCO")
	if !out.Success || out.Count != 1096 {
		t.Errorf("backfill outcome = %+v", out)
	}
	days, err := f.store.StoredDays(ctx, "NEWCO", day.AddDate(0, 0, -1095), day)
	if err != nil || len(days) != 1096 {
		t.Errorf("stored %d days in window, err %v", len(days), err)
	}
}

func TestCoveredUntil(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) // Friday
	d := func(offset int) time.Time { return start.AddDate(0, 0, offset) }
	tests := []struct {
		name string
		days []time.Time
		want time.Time
	}{
		{"nothing stored", nil, start},
		{"weekend skipped", []time.Time{d(0), d(3), d(4)}, d(5)},
		{"short head gap", []time.Time{d(3), d(4)}, d(5)},
		{"head gap", []time.Time{d(10), d(11)}, start},
		{"hole in the middle", []time.Time{d(0), d(3), d(12), d(13)}, d(4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coveredUntil(start, tt.days); !got.Equal(tt.want) {
				t.Errorf("coveredUntil() = %s, want %s", got.Format(model.DateLayout), tt.want.Format(model.DateLayout))
			}
		})
	}
}

func TestRefreshDaily(t *testing.T) {
	f := newFixture(t, universe.Static{"aaa", "BBB", "AAA"}, BackfillSettings{})

	report, err := f.jobs.RefreshDaily(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Job != JobDaily || report.Universe != 2 || report.Succeeded != 2 {
		t.Errorf("report = %+v", report)
	}
	if f.src.daily["AAA"] != 1 || len(f.src.requested) != 0 {
		t.Errorf("daily calls = %v, historical = %v", f.src.daily, f.src.requested)
	}
	rows, err := f.store.Range(context.Background(), "BBB", model.TradingDay(today), model.TradingDay(today))
	if err != nil || len(rows) != 1 {
		t.Errorf("stored rows = %v, %v", rows, err)
	}
}

type brokenUniverse struct{}

func (brokenUniverse) ListActiveTickers(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestRun_PreconditionFailureIsNotRecorded(t *testing.T) {
	f := newFixture(t, brokenUniverse{}, BackfillSettings{})
	_, err := f.jobs.Run(context.Background(), JobDaily)
	if !errors.Is(err, model.ErrPreconditionFailure) {
		t.Fatalf("err = %v", err)
	}
	if len(f.rec.reports) != 0 {
		t.Error("a run that never started was recorded")
	}
}

func TestRun_UnknownJob(t *testing.T) {
	f := newFixture(t, universe.Static{"AAA"}, BackfillSettings{})
	if _, err := f.jobs.Run(context.Background(), "weekly"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestNewJobs_NilRecorder(t *testing.T) {
	orch := orchestrator.New(collector.NewMockSource(), nil, retry.DefaultPolicy(), zap.NewNop())
	j := NewJobs(orch, universe.Static{}, nil, nil, BackfillSettings{}, Pacing{}, zap.NewNop())
	if _, ok := j.recorder.(*recorder.NoopRecorder); !ok {
		t.Errorf("expected noop recorder, got %T", j.recorder)
	}
	report, err := j.RefreshDaily(context.Background())
	if err != nil || report.Universe != 0 {
		t.Errorf("empty universe run = %+v, %v", report, err)
	}
}
