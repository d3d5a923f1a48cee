package collector

import (
	"context"
	"time"

	"PortfolioPulse/internal/model"
)

// QuoteSource fetches price observations from an external provider. It is
// the only component doing network I/O to the provider. Failures are
// returned as *model.IngestError with one of RateLimited, Malformed,
// NotFound or Transport.
type QuoteSource interface {
	Name() string
	FetchDaily(ctx context.Context, ticker string) (model.PriceObservation, error)
	FetchHistorical(ctx context.Context, ticker string, start, end time.Time) (ObservationIter, error)
}

// ObservationIter is a lazy, finite, non-restartable sequence of
// normalized observations. Rows dropped during normalization are counted
// by Dropped. Err reports a failure that ended the sequence early.
type ObservationIter interface {
	Next() bool
	Observation() model.PriceObservation
	Dropped() int
	Err() error
}

// Options configures a provider client. Each source owns its own HTTP
// client and rate limiter built from these values.
type Options struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	Proxy             string
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	// SymbolMap maps internal tickers to provider symbols.
	SymbolMap map[string]string
}

func (o Options) providerSymbol(ticker string) string {
	if mapped, ok := o.SymbolMap[ticker]; ok {
		return mapped
	}
	return ticker
}

// sliceIter drains pre-fetched observations.
type sliceIter struct {
	obs     []model.PriceObservation
	pos     int
	dropped int
	err     error
}

func (it *sliceIter) Next() bool {
	if it.pos >= len(it.obs) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIter) Observation() model.PriceObservation { return it.obs[it.pos-1] }
func (it *sliceIter) Dropped() int                        { return it.dropped }
func (it *sliceIter) Err() error                          { return it.err }

// NewSliceIter returns an iterator over obs.
func NewSliceIter(obs []model.PriceObservation, dropped int) ObservationIter {
	return &sliceIter{obs: obs, dropped: dropped}
}
