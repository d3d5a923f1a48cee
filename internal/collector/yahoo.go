package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"PortfolioPulse/internal/model"
)

// DefaultYahooBaseURL is the Yahoo Finance chart endpoint.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooSource implements QuoteSource using the Yahoo Finance chart API.
// It is safe for concurrent use; the HTTP client and limiter are shared.
type YahooSource struct {
	opts    Options
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewYahooSource creates a Yahoo source from explicit options.
func NewYahooSource(opts Options, logger *zap.Logger) *YahooSource {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultYahooBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent)
	if opts.Proxy != "" {
		client.SetProxy(opts.Proxy)
	}
	return &YahooSource{
		opts:    opts,
		client:  client,
		limiter: newLimiter(opts.RequestsPerSecond, opts.Burst),
		logger:  logger.With(zap.String("source", "yahoo")),
	}
}

func (y *YahooSource) Name() string { return "yahoo" }

// yahooChart is the response structure of the chart API. Value arrays are
// decoded loosely; normalization decides what is usable.
type yahooChart struct {
	Chart struct {
		Result []yahooResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int    `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []any `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []any `json:"open"`
			High   []any `json:"high"`
			Low    []any `json:"low"`
			Close  []any `json:"close"`
			Volume []any `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []any `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// FetchDaily returns the most recent bar with a usable close.
func (y *YahooSource) FetchDaily(ctx context.Context, ticker string) (model.PriceObservation, error) {
	obs, _, err := y.fetchChart(ctx, ticker, map[string]string{
		"interval": "1d",
		"range":    "5d",
	})
	if err != nil {
		return model.PriceObservation{}, err
	}
	if len(obs) == 0 {
		return model.PriceObservation{}, model.Errorf(model.KindMalformed, ticker, "yahoo: no valid quote in response")
	}
	return obs[len(obs)-1], nil
}

// FetchHistorical returns daily bars for [start, end].
func (y *YahooSource) FetchHistorical(ctx context.Context, ticker string, start, end time.Time) (ObservationIter, error) {
	start, end = model.TradingDay(start), model.TradingDay(end)
	obs, dropped, err := y.fetchChart(ctx, ticker, map[string]string{
		"interval":             "1d",
		"period1":              strconv.FormatInt(start.Unix(), 10),
		"period2":              strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10),
		"includeAdjustedClose": "true",
		"events":               "history",
	})
	if err != nil {
		return nil, err
	}
	kept := obs[:0]
	for _, o := range obs {
		if o.Date.Before(start) || o.Date.After(end) {
			continue
		}
		kept = append(kept, o)
	}
	return NewSliceIter(kept, dropped), nil
}

func (y *YahooSource) fetchChart(ctx context.Context, ticker string, query map[string]string) ([]model.PriceObservation, int, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, 0, model.NewError(model.KindTransport, ticker, fmt.Errorf("yahoo rate limiter: %w", err))
	}

	resp, err := y.client.R().
		SetContext(ctx).
		SetPathParam("symbol", y.opts.providerSymbol(ticker)).
		SetQueryParams(query).
		Get("/{symbol}")
	if err != nil {
		return nil, 0, model.NewError(model.KindTransport, ticker, fmt.Errorf("yahoo fetch: %w", err))
	}
	if err := classifyStatus(ticker, resp.StatusCode(), resp.Body()); err != nil {
		return nil, 0, err
	}

	var chart yahooChart
	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	if err := dec.Decode(&chart); err != nil {
		return nil, 0, model.NewError(model.KindMalformed, ticker, fmt.Errorf("yahoo decode: %w", err))
	}
	if e := chart.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") {
			return nil, 0, model.Errorf(model.KindNotFound, ticker, "yahoo: %s", e.Description)
		}
		return nil, 0, model.Errorf(model.KindMalformed, ticker, "yahoo api error %s: %s", e.Code, e.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, 0, model.Errorf(model.KindMalformed, ticker, "yahoo: response has no result")
	}

	obs, dropped, err := normalizeYahoo(ticker, chart.Chart.Result[0])
	if err != nil {
		return nil, 0, err
	}
	if dropped > 0 {
		y.logger.Debug("dropped unusable bars", zap.String("ticker", ticker), zap.Int("dropped", dropped))
	}
	return obs, dropped, nil
}

// normalizeYahoo turns one chart result into observations, dropping rows
// without a usable timestamp or close. A close series shorter than the
// timestamps is a broken payload, not a set of null rows.
func normalizeYahoo(ticker string, r yahooResult) ([]model.PriceObservation, int, error) {
	if len(r.Timestamp) == 0 {
		return nil, 0, nil
	}
	if len(r.Indicators.Quote) == 0 {
		return nil, 0, model.Errorf(model.KindMalformed, ticker, "yahoo: missing quote indicators")
	}
	q := r.Indicators.Quote[0]
	if len(q.Close) < len(r.Timestamp) {
		return nil, 0, model.Errorf(model.KindMalformed, ticker,
			"yahoo: %d close values for %d timestamps", len(q.Close), len(r.Timestamp))
	}
	var adj []any
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}
	loc := time.FixedZone("exchange", r.Meta.GMTOffset)

	obs := make([]model.PriceObservation, 0, len(r.Timestamp))
	dropped := 0
	for i, raw := range r.Timestamp {
		ts, ok := toInt64(raw)
		closePx := positive(toDecimal(at(q.Close, i)))
		if !ok || ts <= 0 || !closePx.Valid {
			dropped++
			continue
		}
		o := model.PriceObservation{
			Ticker:        ticker,
			Date:          model.TradingDay(time.Unix(ts, 0).In(loc)),
			Open:          positive(toDecimal(at(q.Open, i))),
			High:          positive(toDecimal(at(q.High, i))),
			Low:           positive(toDecimal(at(q.Low, i))),
			Close:         closePx,
			AdjustedClose: positive(toDecimal(at(adj, i))),
		}
		if v, ok := toInt64(at(q.Volume, i)); ok && v >= 0 {
			o.Volume = &v
		}
		obs = append(obs, o)
	}
	return obs, dropped, nil
}

// classifyStatus maps a non-success HTTP response to an error kind.
func classifyStatus(ticker string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) && looksRateLimited(body) {
			return model.Errorf(model.KindRateLimited, ticker, "provider throttled: %s", snippet(body))
		}
		return nil
	}
	switch {
	case status == http.StatusTooManyRequests || looksRateLimited(body):
		return model.Errorf(model.KindRateLimited, ticker, "status %d: %s", status, snippet(body))
	case status == http.StatusNotFound:
		return model.Errorf(model.KindNotFound, ticker, "status %d: %s", status, snippet(body))
	case status >= 500:
		return model.Errorf(model.KindTransport, ticker, "status %d: %s", status, snippet(body))
	default:
		return model.Errorf(model.KindMalformed, ticker, "status %d: %s", status, snippet(body))
	}
}

func looksRateLimited(body []byte) bool {
	if len(body) > 4096 {
		body = body[:4096]
	}
	return bytes.Contains(bytes.ToLower(body), []byte("too many requests"))
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
