package model

// Action is the recommendation derived from a ticker's indicators.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// FactorScore represents a single factor's scoring result.
type FactorScore struct {
	Name       string  `json:"name"`
	RawScore   float64 `json:"raw_score"`
	Weight     float64 `json:"weight"`
	Weighted   float64 `json:"weighted"`
	Commentary string  `json:"commentary"`
}

// Signal is the output of the analytics engine for one ticker.
type Signal struct {
	Ticker     string        `json:"ticker"`
	Action     Action        `json:"action"`
	TotalScore float64       `json:"total_score"`
	Factors    []FactorScore `json:"factors"`
	Indicators Indicators    `json:"indicators"`
	Warning    string        `json:"warning,omitempty"`
}
