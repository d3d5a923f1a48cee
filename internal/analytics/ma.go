// Package analytics derives indicators and buy/sell signals from stored
// price series. Everything here is a pure function of its input.
package analytics

import (
	"errors"

	"PortfolioPulse/internal/model"
)

// ErrInsufficientData is returned when a series is shorter than a window.
var ErrInsufficientData = errors.New("not enough data")

// SMA computes the simple moving average of the last period values.
func SMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period), nil
}

// Closes extracts adjusted closes in series order.
func Closes(prices []model.StoredPrice) []float64 {
	closes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.AdjustedClose.InexactFloat64()
	}
	return closes
}
