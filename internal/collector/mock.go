package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PortfolioPulse/internal/model"
)

// MockResponse is one scripted reply of a MockSource.
type MockResponse struct {
	Obs     []model.PriceObservation
	Dropped int
	Err     error
	// Delay blocks the call for the given time, honoring ctx.
	Delay time.Duration
}

// MockSource returns scripted responses per ticker, for development and
// testing. Once a ticker's script is exhausted the last response repeats.
// Unknown tickers fail with NotFound.
type MockSource struct {
	mu      sync.Mutex
	scripts map[string][]MockResponse
	calls   map[string]int
}

// NewMockSource creates an empty MockSource.
func NewMockSource() *MockSource {
	return &MockSource{
		scripts: make(map[string][]MockResponse),
		calls:   make(map[string]int),
	}
}

// Script sets the replies for ticker.
func (m *MockSource) Script(ticker string, responses ...MockResponse) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[ticker] = responses
	return m
}

// Calls returns how many fetches ticker received.
func (m *MockSource) Calls(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ticker]
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) next(ctx context.Context, ticker string) (MockResponse, error) {
	m.mu.Lock()
	script, ok := m.scripts[ticker]
	n := m.calls[ticker]
	m.calls[ticker] = n + 1
	m.mu.Unlock()

	if !ok || len(script) == 0 {
		return MockResponse{}, model.Errorf(model.KindNotFound, ticker, "mock: unknown ticker")
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	r := script[n]
	if r.Delay > 0 {
		select {
		case <-ctx.Done():
			return MockResponse{}, model.NewError(model.KindTransport, ticker, ctx.Err())
		case <-time.After(r.Delay):
		}
	}
	return r, r.Err
}

func (m *MockSource) FetchDaily(ctx context.Context, ticker string) (model.PriceObservation, error) {
	r, err := m.next(ctx, ticker)
	if err != nil {
		return model.PriceObservation{}, err
	}
	if len(r.Obs) == 0 {
		return model.PriceObservation{}, model.NewError(model.KindMalformed, ticker, fmt.Errorf("mock: empty daily response"))
	}
	return r.Obs[len(r.Obs)-1], nil
}

func (m *MockSource) FetchHistorical(ctx context.Context, ticker string, start, end time.Time) (ObservationIter, error) {
	r, err := m.next(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return NewSliceIter(r.Obs, r.Dropped), nil
}
