package analytics

import (
	"errors"
	"math"

	"PortfolioPulse/internal/model"
)

// TradingDaysPerYear is the window of the 52-week range and the
// annualization factor of volatility.
const TradingDaysPerYear = 252

// Range52Week scans the most recent 252 stored days and returns the high
// and low. Days without a high or low fall back to the close.
func Range52Week(prices []model.StoredPrice) (high, low float64, err error) {
	if len(prices) == 0 {
		return 0, 0, ErrInsufficientData
	}
	start := max(len(prices)-TradingDaysPerYear, 0)
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, p := range prices[start:] {
		c := p.Close.InexactFloat64()
		h, l := c, c
		if p.High.Valid {
			h = p.High.Decimal.InexactFloat64()
		}
		if p.Low.Valid {
			l = p.Low.Decimal.InexactFloat64()
		}
		high = math.Max(high, h)
		low = math.Min(low, l)
	}
	return high, low, nil
}

// Position returns where current sits within [low, high] (0.0~1.0).
func Position(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	return math.Min(math.Max(pos, 0), 1), nil
}
