package analytics

import (
	"errors"
	"fmt"

	"PortfolioPulse/internal/model"
)

// Windows used by Compute.
const (
	MomentumLookback = 20
	VolatilityWindow = 20
	RSIPeriod        = 14
)

// Thresholds mapping the weighted score to an action.
const (
	BuyThreshold  = 0.5
	SellThreshold = -0.5
)

// Compute derives indicators from a date-ordered series. Indicators whose
// window exceeds the series stay zero.
func Compute(ticker string, prices []model.StoredPrice) (*model.Indicators, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrInsufficientData)
	}
	closes := Closes(prices)
	last := prices[len(prices)-1]
	ind := &model.Indicators{
		Ticker: ticker,
		AsOf:   last.Date,
		Close:  closes[len(closes)-1],
		Points: len(prices),
	}

	var err error
	if ind.SMA50, err = optional(SMA(closes, 50)); err != nil {
		return nil, err
	}
	if ind.SMA200, err = optional(SMA(closes, 200)); err != nil {
		return nil, err
	}
	if ind.RSI14, err = RSI(closes, RSIPeriod); err != nil {
		return nil, err
	}
	if ind.Momentum, err = optional(Momentum(closes, MomentumLookback)); err != nil {
		return nil, err
	}
	if ind.Volatility, err = optional(Volatility(closes, VolatilityWindow)); err != nil {
		return nil, err
	}
	if ind.High52w, ind.Low52w, err = Range52Week(prices); err != nil {
		return nil, err
	}
	if ind.Position52w, err = Position(last.Close.InexactFloat64(), ind.High52w, ind.Low52w); err != nil {
		return nil, err
	}
	return ind, nil
}

// optional turns ErrInsufficientData into a zero value.
func optional(v float64, err error) (float64, error) {
	if errors.Is(err, ErrInsufficientData) {
		return 0, nil
	}
	return v, err
}

// Evaluate scores the indicators and maps the total to an action.
func Evaluate(ind *model.Indicators) *model.Signal {
	factors := []model.FactorScore{
		scoreMomentum(ind),
		scoreRSI(ind),
		scoreTrend(ind),
		score52WeekPosition(ind),
	}

	total := 0.0
	for _, f := range factors {
		total += f.Weighted
	}

	sig := &model.Signal{
		Ticker:     ind.Ticker,
		Action:     model.ActionHold,
		TotalScore: total,
		Factors:    factors,
		Indicators: *ind,
	}
	switch {
	case total >= BuyThreshold:
		sig.Action = model.ActionBuy
	case total <= SellThreshold:
		sig.Action = model.ActionSell
	}

	if ind.RSI14 > 85 {
		sig.Warning = "RSI above 85: consider taking profit"
	}
	return sig
}
