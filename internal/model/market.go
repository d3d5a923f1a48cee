package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of a trading day.
const DateLayout = "2006-01-02"

// PriceObservation is one ticker's OHLCV data for one trading day.
// Any price field may be absent except Close.
type PriceObservation struct {
	Ticker        string              `json:"ticker"`
	Date          time.Time           `json:"date"`
	Open          decimal.NullDecimal `json:"open"`
	High          decimal.NullDecimal `json:"high"`
	Low           decimal.NullDecimal `json:"low"`
	Close         decimal.NullDecimal `json:"close"`
	Volume        *int64              `json:"volume,omitempty"`
	AdjustedClose decimal.NullDecimal `json:"adjusted_close"`
}

// StoredPrice is a PriceObservation as persisted, with AdjustedClose
// defaulted to Close.
type StoredPrice struct {
	Ticker        string              `json:"ticker"`
	Date          time.Time           `json:"date"`
	Open          decimal.NullDecimal `json:"open"`
	High          decimal.NullDecimal `json:"high"`
	Low           decimal.NullDecimal `json:"low"`
	Close         decimal.Decimal     `json:"close"`
	Volume        *int64              `json:"volume,omitempty"`
	AdjustedClose decimal.Decimal     `json:"adjusted_close"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// DateRange is an inclusive range of trading days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Empty reports whether the range contains no day.
func (r DateRange) Empty() bool {
	return r.End.Before(r.Start)
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// TradingDay strips the time of day from t, keeping its calendar date in
// t's location, and returns that date at UTC midnight.
func TradingDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD trading day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// NormalizeTicker upper-cases and trims a symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Decimal wraps a valid decimal into a NullDecimal.
func Decimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
