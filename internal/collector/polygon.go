package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"PortfolioPulse/internal/model"
)

// PolygonSource implements QuoteSource using Polygon.io daily aggregates.
type PolygonSource struct {
	opts   Options
	client *polygon.Client
	logger *zap.Logger
}

// NewPolygonSource creates a Polygon source from explicit options. Every
// HTTP request the client makes waits on the source's limiter.
func NewPolygonSource(opts Options, logger *zap.Logger) *PolygonSource {
	limiter := newLimiter(opts.RequestsPerSecond, opts.Burst)
	base := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			base.Proxy = http.ProxyURL(u)
		} else {
			logger.Warn("ignoring invalid proxy url", zap.String("proxy", opts.Proxy), zap.Error(err))
		}
	}
	hc := &http.Client{
		Timeout:   opts.Timeout,
		Transport: &limitedTransport{base: base, limiter: limiter},
	}
	return &PolygonSource{
		opts:   opts,
		client: polygon.NewWithClient(opts.APIKey, hc),
		logger: logger.With(zap.String("source", "polygon")),
	}
}

// limitedTransport waits on the limiter before each request, which also
// gates the pages ListAggs fetches while the iterator is drained.
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("polygon rate limiter: %w", err)
	}
	return t.base.RoundTrip(req)
}

func (p *PolygonSource) Name() string { return "polygon" }

// FetchDaily returns the previous session's aggregate, which is the latest
// complete daily bar Polygon publishes.
func (p *PolygonSource) FetchDaily(ctx context.Context, ticker string) (model.PriceObservation, error) {
	params := &models.GetPreviousCloseAggParams{Ticker: p.opts.providerSymbol(ticker)}
	res, err := p.client.GetPreviousCloseAgg(ctx, params)
	if err != nil {
		return model.PriceObservation{}, classifyPolygon(ticker, err)
	}
	if res == nil || len(res.Results) == 0 {
		return model.PriceObservation{}, model.Errorf(model.KindNotFound, ticker, "polygon: no previous close")
	}
	obs, ok := normalizeAgg(ticker, res.Results[len(res.Results)-1])
	if !ok {
		return model.PriceObservation{}, model.Errorf(model.KindMalformed, ticker, "polygon: previous close has no usable close or timestamp")
	}
	return obs, nil
}

// FetchHistorical streams daily aggregates for [start, end]. Pages are
// requested lazily as the iterator is drained, each one rate limited.
func (p *PolygonSource) FetchHistorical(ctx context.Context, ticker string, start, end time.Time) (ObservationIter, error) {
	params := models.ListAggsParams{
		Ticker:     p.opts.providerSymbol(ticker),
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(model.TradingDay(start)),
		To:         models.Millis(model.TradingDay(end)),
	}
	it := p.client.ListAggs(ctx, params.WithAdjusted(true).WithOrder(models.Asc).WithLimit(50000))
	return &polygonIter{ticker: ticker, aggs: it}, nil
}

type aggIter interface {
	Next() bool
	Item() models.Agg
	Err() error
}

type polygonIter struct {
	ticker  string
	aggs    aggIter
	cur     model.PriceObservation
	dropped int
}

func (it *polygonIter) Next() bool {
	for it.aggs.Next() {
		obs, ok := normalizeAgg(it.ticker, it.aggs.Item())
		if !ok {
			it.dropped++
			continue
		}
		it.cur = obs
		return true
	}
	return false
}

func (it *polygonIter) Observation() model.PriceObservation { return it.cur }
func (it *polygonIter) Dropped() int                        { return it.dropped }

func (it *polygonIter) Err() error {
	if err := it.aggs.Err(); err != nil {
		return classifyPolygon(it.ticker, err)
	}
	return nil
}

func normalizeAgg(ticker string, a models.Agg) (model.PriceObservation, bool) {
	ts := time.Time(a.Timestamp)
	if ts.IsZero() || a.Close <= 0 || math.IsNaN(a.Close) {
		return model.PriceObservation{}, false
	}
	obs := model.PriceObservation{
		Ticker: ticker,
		Date:   model.TradingDay(ts.UTC()),
		Open:   positive(model.Decimal(decimal.NewFromFloat(a.Open))),
		High:   positive(model.Decimal(decimal.NewFromFloat(a.High))),
		Low:    positive(model.Decimal(decimal.NewFromFloat(a.Low))),
		Close:  model.Decimal(decimal.NewFromFloat(a.Close)),
	}
	if a.Volume >= 0 && !math.IsNaN(a.Volume) {
		v := int64(math.Round(a.Volume))
		obs.Volume = &v
	}
	return obs, true
}

func classifyPolygon(ticker string, err error) error {
	var apiErr *models.ErrorResponse
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return model.NewError(model.KindRateLimited, ticker, err)
		case apiErr.StatusCode == http.StatusNotFound:
			return model.NewError(model.KindNotFound, ticker, err)
		case apiErr.StatusCode >= 500:
			return model.NewError(model.KindTransport, ticker, err)
		case apiErr.StatusCode >= 400:
			return model.NewError(model.KindMalformed, ticker, err)
		}
	}
	if looksRateLimited([]byte(err.Error())) {
		return model.NewError(model.KindRateLimited, ticker, err)
	}
	return model.NewError(model.KindTransport, ticker, fmt.Errorf("polygon: %w", err))
}
