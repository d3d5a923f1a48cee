package analytics

import (
	"fmt"

	"PortfolioPulse/internal/model"
)

// step scores values up to and including upTo.
type step struct {
	upTo  float64
	score float64
}

// ladder maps a value to the score of the first step whose bound it does
// not exceed, or to above when it exceeds every bound.
type ladder struct {
	steps []step
	above float64
}

func (l ladder) score(v float64) float64 {
	for _, s := range l.steps {
		if v <= s.upTo {
			return s.score
		}
	}
	return l.above
}

var (
	// momentumLadder works on percent change.
	momentumLadder = ladder{
		steps: []step{{-15, -2}, {-8, -1.5}, {-3, -1}, {3, 0}, {8, 1}, {15, 1.5}},
		above: 2,
	}
	rsiLadder = ladder{
		steps: []step{{25, 2}, {30, 1.5}, {40, 1}, {45, 0.5}, {55, 0}, {60, -0.5}, {70, -1}, {80, -1.5}},
		above: -2,
	}
	// positionLadder works on the 0..1 position in the 52-week range.
	positionLadder = ladder{
		steps: []step{{0.1, 1.5}, {0.3, 1}, {0.7, 0}, {0.9, -0.5}},
		above: -1,
	}
)

const (
	momentumWeight = 0.35
	rsiWeight      = 0.25
	trendWeight    = 0.25
	positionWeight = 0.15

	// noisyVolatility is the annualized volatility above which the
	// momentum score is halved.
	noisyVolatility = 0.6
)

func factor(name string, raw, weight float64, commentary string) model.FactorScore {
	return model.FactorScore{
		Name:       name,
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: commentary,
	}
}

func scoreMomentum(ind *model.Indicators) model.FactorScore {
	raw := momentumLadder.score(ind.Momentum)
	if ind.Volatility > noisyVolatility {
		raw /= 2
	}
	return factor("momentum", raw, momentumWeight,
		fmt.Sprintf("%+.1f%% over %d days, vol %.0f%%", ind.Momentum, MomentumLookback, ind.Volatility*100))
}

// scoreRSI treats oversold as a buying opportunity and overbought as a
// reason to trim.
func scoreRSI(ind *model.Indicators) model.FactorScore {
	return factor("rsi14", rsiLadder.score(ind.RSI14), rsiWeight, fmt.Sprintf("RSI=%.0f", ind.RSI14))
}

// scoreTrend compares the close and SMA50 against SMA200. Stretched prices
// more than 25% above SMA200 lose half a point.
func scoreTrend(ind *model.Indicators) model.FactorScore {
	if ind.SMA200 == 0 {
		return factor("trend", 0, trendWeight, "SMA200 unavailable")
	}
	deviation := (ind.Close - ind.SMA200) / ind.SMA200 * 100
	var raw float64
	switch {
	case ind.SMA50 > ind.SMA200 && deviation > 0:
		raw = 1
	case ind.SMA50 < ind.SMA200 && deviation < 0:
		raw = -1
	}
	if deviation > 25 {
		raw -= 0.5
	}
	return factor("trend", raw, trendWeight, fmt.Sprintf("%+.1f%% vs SMA200", deviation))
}

func score52WeekPosition(ind *model.Indicators) model.FactorScore {
	return factor("52w position", positionLadder.score(ind.Position52w), positionWeight,
		fmt.Sprintf("%.0f%% of range", ind.Position52w*100))
}
