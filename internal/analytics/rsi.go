package analytics

import "errors"

// RSI computes the Wilder-smoothed relative strength index. The first
// period changes seed simple averages; later changes are smoothed with
// weight 1/period. Fewer than period+1 closes yield the neutral 50.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("rsi period must be positive")
	}
	if len(closes) <= period {
		return 50, nil
	}

	n := float64(period)
	var up, down float64
	for i := 1; i < len(closes); i++ {
		g, l := split(closes[i] - closes[i-1])
		if i <= period {
			up += g / n
			down += l / n
			continue
		}
		up = (up*(n-1) + g) / n
		down = (down*(n-1) + l) / n
	}

	if down == 0 {
		return 100, nil
	}
	return 100 - 100/(1+up/down), nil
}

// split returns the gain and loss parts of a price change.
func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}
