package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"PortfolioPulse/internal/model"
)

// chartBody builds a chart API payload with n daily bars starting at start.
// Bars whose index is in nullClose get a null close.
func chartBody(start time.Time, n int, nullClose map[int]bool) []byte {
	ts := make([]any, n)
	open := make([]any, n)
	high := make([]any, n)
	low := make([]any, n)
	closes := make([]any, n)
	volume := make([]any, n)
	adj := make([]any, n)
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i).Add(14*time.Hour + 30*time.Minute)
		ts[i] = d.Unix()
		p := 100 + float64(i)*0.1
		open[i], high[i], low[i] = p-0.5, p+1, p-1
		closes[i] = p
		volume[i] = 1000 + i
		adj[i] = p * 0.98
		if nullClose[i] {
			closes[i] = nil
		}
	}
	payload := map[string]any{
		"chart": map[string]any{
			"result": []any{map[string]any{
				"meta":      map[string]any{"symbol": "XYZ", "gmtoffset": -18000},
				"timestamp": ts,
				"indicators": map[string]any{
					"quote":    []any{map[string]any{"open": open, "high": high, "low": low, "close": closes, "volume": volume}},
					"adjclose": []any{map[string]any{"adjclose": adj}},
				},
			}},
			"error": nil,
		},
	}
	b, _ := json.Marshal(payload)
	return b
}

func newTestYahoo(t *testing.T, h http.HandlerFunc) *YahooSource {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewYahooSource(Options{BaseURL: srv.URL, Timeout: 5 * time.Second}, zap.NewNop())
}

func TestYahoo_FetchHistoricalDropsNullCloses(t *testing.T) {
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	nulls := map[int]bool{3: true, 100: true, 250: true, 600: true, 739: true}
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/XYZ") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("interval") != "1d" {
			t.Errorf("expected daily interval, got %q", r.URL.Query().Get("interval"))
		}
		w.Write(chartBody(start, 740, nulls))
	})

	it, err := y.FetchHistorical(context.Background(), "XYZ", start, start.AddDate(0, 0, 739))
	if err != nil {
		t.Fatalf("FetchHistorical: %v", err)
	}
	n := 0
	var last model.PriceObservation
	for it.Next() {
		last = it.Observation()
		if !last.Close.Valid {
			t.Fatal("observation without close reached the caller")
		}
		n++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iter err: %v", err)
	}
	if n != 735 {
		t.Errorf("expected 735 observations, got %d", n)
	}
	if it.Dropped() != 5 {
		t.Errorf("expected 5 dropped, got %d", it.Dropped())
	}
	if last.Volume == nil || !last.AdjustedClose.Valid {
		t.Errorf("expected volume and adjusted close on last bar, got %+v", last)
	}
	if !last.Date.Equal(start.AddDate(0, 0, 738)) {
		t.Errorf("last date = %s", last.Date.Format(model.DateLayout))
	}
}

func TestYahoo_FetchDailyReturnsLatestValidBar(t *testing.T) {
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("range") != "5d" {
			t.Errorf("expected 5d range, got %q", r.URL.Query().Get("range"))
		}
		w.Write(chartBody(start, 5, map[int]bool{4: true}))
	})
	obs, err := y.FetchDaily(context.Background(), "XYZ")
	if err != nil {
		t.Fatalf("FetchDaily: %v", err)
	}
	if !obs.Date.Equal(start.AddDate(0, 0, 3)) {
		t.Errorf("expected the last bar with a close, got %s", obs.Date.Format(model.DateLayout))
	}
}

func TestYahoo_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   model.ErrorKind
	}{
		{"throttled status", http.StatusTooManyRequests, "Too Many Requests", model.KindRateLimited},
		{"throttled text", http.StatusOK, "Too Many Requests\r\n", model.KindRateLimited},
		{"not found status", http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`, model.KindNotFound},
		{"not found payload", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"delisted"}}}`, model.KindNotFound},
		{"corrupt body", http.StatusOK, `{"chart":{"result":[{"timestamp":`, model.KindMalformed},
		{"no result", http.StatusOK, `{"chart":{"result":[],"error":null}}`, model.KindMalformed},
		{"missing quote", http.StatusOK, `{"chart":{"result":[{"meta":{},"timestamp":[1700000000],"indicators":{"quote":[]}}]}}`, model.KindMalformed},
		{"missing close series", http.StatusOK, `{"chart":{"result":[{"meta":{},"timestamp":[1700000000,1700086400],"indicators":{"quote":[{"open":[1,2]}]}}]}}`, model.KindMalformed},
		{"short close series", http.StatusOK, `{"chart":{"result":[{"meta":{},"timestamp":[1700000000,1700086400],"indicators":{"quote":[{"close":[1]}]}}]}}`, model.KindMalformed},
		{"server error", http.StatusBadGateway, "bad gateway", model.KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := y.FetchDaily(context.Background(), "XYZ")
			if got := model.KindOf(err); got != tt.kind {
				t.Errorf("kind = %s, want %s (err: %v)", got, tt.kind, err)
			}
		})
	}
}

func TestYahoo_FetchHistoricalMissingCloseIsMalformed(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{"meta":{},"timestamp":[1700000000,1700086400],"indicators":{"quote":[{"open":[1,2]}]}}]}}`))
	})
	start := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	it, err := y.FetchHistorical(context.Background(), "XYZ", start, start.AddDate(0, 0, 1))
	if model.KindOf(err) != model.KindMalformed {
		t.Fatalf("expected Malformed, got iter=%v err=%v", it, err)
	}
}

func TestYahoo_TransportErrorOnClosedServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	y := NewYahooSource(Options{BaseURL: url, Timeout: time.Second}, zap.NewNop())
	_, err := y.FetchDaily(context.Background(), "XYZ")
	if model.KindOf(err) != model.KindTransport {
		t.Errorf("expected Transport, got %v", err)
	}
}

func TestYahoo_SymbolMap(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write(chartBody(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 1, nil))
	}))
	defer srv.Close()

	y := NewYahooSource(Options{BaseURL: srv.URL, SymbolMap: map[string]string{"BRK.B": "BRK-B"}}, zap.NewNop())
	obs, err := y.FetchDaily(context.Background(), "BRK.B")
	if err != nil {
		t.Fatalf("FetchDaily: %v", err)
	}
	if !strings.HasSuffix(path, "/BRK-B") {
		t.Errorf("expected provider symbol in path, got %s", path)
	}
	if obs.Ticker != "BRK.B" {
		t.Errorf("observation must keep the internal ticker, got %s", obs.Ticker)
	}
}
