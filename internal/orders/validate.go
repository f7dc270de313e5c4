package orders

import (
	"fmt"
	"time"

	"etodesk/internal/domain"

	"github.com/shopspring/decimal"
)

// CreateOrderParams carries everything needed to place an order. Fields
// past the basic block only apply to the advanced types.
type CreateOrderParams struct {
	UserID      string
	Type        domain.OrderType
	Side        domain.OrderSide
	Asset       string // Base symbol
	Quote       string // Quote symbol; defaults to USDC
	Amount      decimal.Decimal
	Price       decimal.Decimal // Limit price
	StopPrice   decimal.Decimal // Trigger price
	TimeInForce domain.TimeInForce
	Priority    int

	// SlippageTolerance is a fraction (0.01 = 1%) padded onto the required
	// balance of buy orders so a small adverse move cannot strand them.
	SlippageTolerance decimal.Decimal

	// Trailing stop
	TrailAmount  decimal.Decimal
	TrailPercent decimal.Decimal

	// Iceberg
	VisibleSize decimal.Decimal

	// TWAP / VWAP
	Duration   time.Duration
	SliceCount int
	Weights    []decimal.Decimal

	// OCO
	OCOLimitPrice decimal.Decimal
	OCOStopPrice  decimal.Decimal
}

func (p *CreateOrderParams) normalize() {
	if p.Quote == "" {
		p.Quote = "USDC"
	}
	if p.TimeInForce == "" {
		p.TimeInForce = domain.TIFGoodTillCancel
	}
}

// ValidationResult is returned to callers instead of an error so inline
// messages can be rendered without unwrapping anything.
type ValidationResult struct {
	IsValid         bool            `json:"is_valid"`
	Errors          []string        `json:"errors,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	RequiredBalance decimal.Decimal `json:"required_balance"`
	EstimatedCost   decimal.Decimal `json:"estimated_cost"`
	PriceImpact     decimal.Decimal `json:"price_impact"` // Percent of available liquidity
	Slippage        decimal.Decimal `json:"slippage"`     // Expected execution drift, percent
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// largeOrderFraction of visible liquidity triggers a non-blocking warning.
var largeOrderFraction = decimal.NewFromFloat(0.5)

// highImpactPct is the price-impact warning threshold, in percent.
var highImpactPct = decimal.NewFromInt(5)

// Validate computes the funds requirement for the given parameters and
// checks them against the ledger without taking a hold.
func (e *Engine) Validate(p CreateOrderParams) ValidationResult {
	p.normalize()
	return e.validate(p)
}

func (e *Engine) validate(p CreateOrderParams) ValidationResult {
	var res ValidationResult

	if !p.Amount.IsPositive() {
		res.fail("amount must be greater than zero")
	}
	if p.Side != domain.SideBuy && p.Side != domain.SideSell {
		res.fail("side must be buy or sell")
	}

	refPrice, ok := e.referencePrice(p)
	if !ok {
		res.fail("no market price available for %s", p.Asset)
		return res
	}

	switch p.Type {
	case domain.OrderTypeLimit, domain.OrderTypeIceberg:
		if !p.Price.IsPositive() {
			res.fail("%s order requires a limit price", p.Type)
		}
	case domain.OrderTypeStop, domain.OrderTypeTakeProfit:
		if !p.StopPrice.IsPositive() {
			res.fail("%s order requires a trigger price", p.Type)
		}
	case domain.OrderTypeStopLimit:
		if !p.Price.IsPositive() || !p.StopPrice.IsPositive() {
			res.fail("stop_limit order requires both limit and trigger prices")
		}
	case domain.OrderTypeTrailingStop:
		if !p.TrailAmount.IsPositive() && !p.TrailPercent.IsPositive() {
			res.fail("trailing_stop order requires a trail amount or percent")
		}
	case domain.OrderTypeOCO:
		if !p.OCOLimitPrice.IsPositive() || !p.OCOStopPrice.IsPositive() {
			res.fail("oco order requires both leg prices")
		}
	case domain.OrderTypeTWAP:
		if p.SliceCount < 2 || p.Duration <= 0 {
			res.fail("twap order requires a duration and at least 2 slices")
		}
	case domain.OrderTypeVWAP:
		if len(p.Weights) < 2 || p.Duration <= 0 {
			res.fail("vwap order requires a duration and at least 2 weights")
		}
	}

	// Multi-leg orders cannot fill entirely at once; an OCO leg rests until
	// its trigger and slices release over the schedule.
	if p.TimeInForce == domain.TIFFillOrKill {
		switch p.Type {
		case domain.OrderTypeOCO, domain.OrderTypeIceberg, domain.OrderTypeTWAP, domain.OrderTypeVWAP:
			res.fail("fill_or_kill is not supported for %s orders", p.Type)
		}
	}

	if len(res.Errors) > 0 {
		return res
	}

	notional := p.Amount.Mul(refPrice)
	fee := notional.Mul(e.feeRate)
	res.EstimatedCost = notional.Add(fee)

	if p.Side == domain.SideBuy {
		required := res.EstimatedCost
		if p.SlippageTolerance.IsPositive() {
			required = required.Mul(decimal.NewFromInt(1).Add(p.SlippageTolerance))
		}
		res.RequiredBalance = required
		if available := e.ledger.Available(p.Quote); required.GreaterThan(available) {
			res.fail("insufficient %s balance: %s required, %s available", p.Quote, required, available)
		}
	} else {
		res.RequiredBalance = p.Amount
		if available := e.ledger.Available(p.Asset); p.Amount.GreaterThan(available) {
			res.fail("insufficient %s balance: %s required, %s available", p.Asset, p.Amount, available)
		}
	}

	if quote, ok := e.quotes.Quote(p.Asset); ok && quote.Liquidity.IsPositive() {
		res.PriceImpact = p.Amount.Div(quote.Liquidity).Mul(decimal.NewFromInt(100)).Round(4)
		res.Slippage = res.PriceImpact.Div(decimal.NewFromInt(2)).Round(4)
		if res.PriceImpact.GreaterThan(highImpactPct) {
			res.warn("high price impact: %s%% of visible liquidity", res.PriceImpact)
		}
		if p.Amount.GreaterThan(quote.Liquidity.Mul(largeOrderFraction)) {
			res.warn("order size is large relative to available liquidity")
		}
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// referencePrice picks the price used for funds estimation: the limit price
// when one exists, the trigger price for bare stops, else the live quote.
func (e *Engine) referencePrice(p CreateOrderParams) (decimal.Decimal, bool) {
	if p.Price.IsPositive() {
		return p.Price, true
	}
	if p.OCOLimitPrice.IsPositive() {
		return p.OCOLimitPrice, true
	}
	if p.StopPrice.IsPositive() {
		return p.StopPrice, true
	}
	quote, ok := e.quotes.Quote(p.Asset)
	if !ok || !quote.Price.IsPositive() {
		return decimal.Zero, false
	}
	return quote.Price, true
}
