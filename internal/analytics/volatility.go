package analytics

import (
	"errors"
	"math"
)

// Momentum is the percent change between the last close and the close
// lookback observations earlier.
func Momentum(closes []float64, lookback int) (float64, error) {
	if lookback <= 0 {
		return 0, errors.New("lookback must be positive")
	}
	if len(closes) < lookback+1 {
		return 0, ErrInsufficientData
	}
	base := closes[len(closes)-1-lookback]
	if base <= 0 {
		return 0, errors.New("non-positive base close")
	}
	return (closes[len(closes)-1]/base - 1) * 100, nil
}

// Volatility is the annualized sample standard deviation of daily log
// returns over the last window returns.
func Volatility(closes []float64, window int) (float64, error) {
	if window < 2 {
		return 0, errors.New("window must be at least 2")
	}
	if len(closes) < window+1 {
		return 0, ErrInsufficientData
	}
	tail := closes[len(closes)-window-1:]
	returns := make([]float64, 0, window)
	for i := 1; i < len(tail); i++ {
		if tail[i-1] <= 0 || tail[i] <= 0 {
			return 0, errors.New("non-positive close in window")
		}
		returns = append(returns, math.Log(tail[i]/tail[i-1]))
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	ss := 0.0
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss/float64(len(returns)-1)) * math.Sqrt(TradingDaysPerYear), nil
}
