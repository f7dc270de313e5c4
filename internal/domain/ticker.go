package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker represents one price observation from the external feed.
type Ticker struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ChangeRate decimal.Decimal `json:"change_rate"` // 24h change (%)
	// Liquidity is the depth available for immediate execution, in base
	// units. Market orders larger than this partially fill.
	Liquidity decimal.Decimal `json:"liquidity"`
	Timestamp time.Time       `json:"timestamp"`
}

// Quote is a point-in-time snapshot served to the order engine.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Liquidity decimal.Decimal
}

// ChangeDirection returns "positive", "negative", or "neutral"
func (t *Ticker) ChangeDirection() string {
	if t.ChangeRate.IsPositive() {
		return "positive"
	}
	if t.ChangeRate.IsNegative() {
		return "negative"
	}
	return "neutral"
}
