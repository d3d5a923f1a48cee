package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"PortfolioPulse/internal/analytics"
	"PortfolioPulse/internal/model"
	"PortfolioPulse/internal/recorder"
	"PortfolioPulse/internal/scheduler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTrigger struct {
	err error
}

func (f fakeTrigger) Trigger(job string) (*model.RunReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := model.NewRunReport(job, time.Now())
	o := model.IngestionOutcome{Ticker: "AAA", Attempts: 1}
	o.Succeed(1)
	r.Add(o)
	return r, nil
}

func (f fakeTrigger) Running(job string) bool { return job == "backfill" }

type fakeRuns struct{ report *model.RunReport }

func (f fakeRuns) Latest(_ context.Context, job string) (*model.RunReport, error) {
	if f.report == nil || (job != "" && job != f.report.Job) {
		return nil, recorder.ErrNoRuns
	}
	return f.report, nil
}

type fakePrices struct {
	from, to time.Time
}

func (f *fakePrices) Range(_ context.Context, ticker string, from, to time.Time) ([]model.StoredPrice, error) {
	f.from, f.to = from, to
	return []model.StoredPrice{{Ticker: ticker, Date: to, Close: decimal.NewFromInt(10), AdjustedClose: decimal.NewFromInt(10)}}, nil
}

type fakeSignals struct{}

func (fakeSignals) Signal(_ context.Context, ticker string) (*model.Signal, error) {
	if ticker == "NEW" {
		return nil, fmt.Errorf("%s: %w", ticker, analytics.ErrInsufficientData)
	}
	return &model.Signal{Ticker: ticker, Action: model.ActionHold}, nil
}

func newTestRouter(trig Trigger, prices *fakePrices) *gin.Engine {
	return NewRouter(Deps{
		Trigger: trig,
		Runs:    fakeRuns{report: model.NewRunReport("daily", time.Now())},
		Prices:  prices,
		Signals: fakeSignals{},
		Jobs:    scheduler.Jobs,
	}, zap.NewNop())
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(newTestRouter(fakeTrigger{}, &fakePrices{}), http.MethodGet, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status  string          `json:"status"`
		Running map[string]bool `json:"running"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || !body.Running["backfill"] || body.Running["daily"] {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestIngest_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target string
		want   int
	}{
		{"success", nil, "/api/ingest/daily", http.StatusOK},
		{"unknown job", nil, "/api/ingest/weekly", http.StatusNotFound},
		{"busy", fmt.Errorf("daily: %w", scheduler.ErrBusy), "/api/ingest/daily", http.StatusConflict},
		{"universe down", fmt.Errorf("list ticker universe: %w", model.ErrPreconditionFailure), "/api/ingest/backfill", http.StatusServiceUnavailable},
		{"other", errors.New("boom"), "/api/ingest/daily", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newTestRouter(fakeTrigger{err: tt.err}, &fakePrices{}), http.MethodPost, tt.target)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestIngest_ReturnsReportJSON(t *testing.T) {
	w := do(newTestRouter(fakeTrigger{}, &fakePrices{}), http.MethodPost, "/api/ingest/daily")
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"timestamp", "attempted", "succeeded", "failed", "errors"} {
		if _, ok := body[key]; !ok {
			t.Errorf("report JSON missing %q: %s", key, w.Body.String())
		}
	}
}

func TestLatestRun(t *testing.T) {
	r := newTestRouter(fakeTrigger{}, &fakePrices{})
	if w := do(r, http.MethodGet, "/api/runs/latest?job=daily"); w.Code != http.StatusOK {
		t.Errorf("daily status = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/runs/latest?job=backfill"); w.Code != http.StatusNotFound {
		t.Errorf("backfill status = %d", w.Code)
	}
}

func TestPrices(t *testing.T) {
	prices := &fakePrices{}
	r := newTestRouter(fakeTrigger{}, prices)

	w := do(r, http.MethodGet, "/api/prices/aapl?from=2024-01-02&to=2024-01-31")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if prices.from.Format(model.DateLayout) != "2024-01-02" || prices.to.Format(model.DateLayout) != "2024-01-31" {
		t.Errorf("range = %s..%s", prices.from, prices.to)
	}
	var body struct {
		Ticker string              `json:"ticker"`
		Prices []model.StoredPrice `json:"prices"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Ticker != "AAPL" || len(body.Prices) != 1 || !body.Prices[0].Close.Equal(decimal.NewFromInt(10)) {
		t.Errorf("body = %s", w.Body.String())
	}

	for _, bad := range []string{"/api/prices/AAPL?from=yesterday", "/api/prices/AAPL?to=2024-13-01", "/api/prices/AAPL?from=2024-02-01&to=2024-01-01"} {
		if w := do(r, http.MethodGet, bad); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", bad, w.Code)
		}
	}
}

func TestSignal(t *testing.T) {
	r := newTestRouter(fakeTrigger{}, &fakePrices{})
	if w := do(r, http.MethodGet, "/api/prices/AAPL/signal"); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/prices/NEW/signal"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}
