package analytics

import (
	"context"
	"fmt"
	"time"

	"PortfolioPulse/internal/model"
)

// HistoryDays is the calendar window read for a signal; it covers 252
// trading days plus the SMA200 warm-up.
const HistoryDays = 400

// PriceReader reads a stored series.
type PriceReader interface {
	Range(ctx context.Context, ticker string, from, to time.Time) ([]model.StoredPrice, error)
}

// Service computes signals from the price store.
type Service struct {
	prices PriceReader
	now    func() time.Time
}

// NewService creates a Service reading from prices.
func NewService(prices PriceReader) *Service {
	return &Service{prices: prices, now: time.Now}
}

// Signal evaluates ticker as of today.
func (s *Service) Signal(ctx context.Context, ticker string) (*model.Signal, error) {
	ticker = model.NormalizeTicker(ticker)
	today := model.TradingDay(s.now())
	prices, err := s.prices.Range(ctx, ticker, today.AddDate(0, 0, -HistoryDays), today)
	if err != nil {
		return nil, fmt.Errorf("read %s history: %w", ticker, err)
	}
	ind, err := Compute(ticker, prices)
	if err != nil {
		return nil, err
	}
	return Evaluate(ind), nil
}
