package model

import "time"

// Indicators holds the technical indicators derived from one ticker's
// stored series. Zero values mean the series was too short.
type Indicators struct {
	Ticker      string    `json:"ticker"`
	AsOf        time.Time `json:"as_of"`
	Close       float64   `json:"close"`
	SMA50       float64   `json:"sma50"`
	SMA200      float64   `json:"sma200"`
	RSI14       float64   `json:"rsi14"`
	Momentum    float64   `json:"momentum_pct"` // percent change over the momentum window
	Volatility  float64   `json:"volatility"`   // annualized
	High52w     float64   `json:"high_52w"`
	Low52w      float64   `json:"low_52w"`
	Position52w float64   `json:"position_52w"` // 0.0 ~ 1.0
	Points      int       `json:"points"`
}
