package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType identifies the execution style of a trade intent.
type OrderType string

const (
	OrderTypeMarket       OrderType = "market"
	OrderTypeLimit        OrderType = "limit"
	OrderTypeStop         OrderType = "stop"
	OrderTypeStopLimit    OrderType = "stop_limit"
	OrderTypeTakeProfit   OrderType = "take_profit"
	OrderTypeOCO          OrderType = "oco"
	OrderTypeTrailingStop OrderType = "trailing_stop"
	OrderTypeIceberg      OrderType = "iceberg"
	OrderTypeTWAP         OrderType = "twap"
	OrderTypeVWAP         OrderType = "vwap"
)

// OrderSide is the direction of a trade.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus tracks the lifecycle state. Transitions are monotonic:
// pending -> open -> partially_filled -> filled, with cancelled/rejected/
// expired as the alternative exits. Terminal states are absorbing.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal step in
// the lifecycle state machine.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusOpen || next == StatusCancelled || next == StatusRejected
	case StatusOpen:
		return next == StatusPartiallyFilled || next == StatusFilled ||
			next == StatusCancelled || next == StatusExpired
	case StatusPartiallyFilled:
		return next == StatusPartiallyFilled || next == StatusFilled ||
			next == StatusCancelled || next == StatusExpired
	}
	return false
}

// TimeInForce governs how long an order may rest unfilled.
type TimeInForce string

const (
	TIFGoodTillCancel TimeInForce = "GTC"
	TIFImmediate      TimeInForce = "IOC"
	TIFFillOrKill     TimeInForce = "FOK"
	TIFDay            TimeInForce = "DAY"
)

// OrderFill is an immutable record of a partial or full execution.
type OrderFill struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Timestamp time.Time       `json:"timestamp"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	TxHash    string          `json:"tx_hash,omitempty"`
}

// Order is a trade intent from creation through terminal state.
// Amounts are denominated in the base asset; costs in the quote asset.
type Order struct {
	ID       string      `json:"id"`
	UserID   string      `json:"user_id,omitempty"`
	ParentID string      `json:"parent_id,omitempty"` // Set on compound-order slices
	Type     OrderType   `json:"type"`
	Side     OrderSide   `json:"side"`
	Status   OrderStatus `json:"status"`
	Asset    string      `json:"asset"` // Base symbol, e.g. "MAANG"
	Quote    string      `json:"quote"` // Quote symbol, e.g. "USDC"

	Amount    decimal.Decimal `json:"amount"`
	Filled    decimal.Decimal `json:"filled"`
	Remaining decimal.Decimal `json:"remaining"`

	Price     decimal.Decimal `json:"price,omitempty"`      // Limit price, zero for market
	StopPrice decimal.Decimal `json:"stop_price,omitempty"` // Trigger price for stop types
	Triggered bool            `json:"triggered,omitempty"`  // Stop trigger has fired

	TimeInForce TimeInForce `json:"time_in_force"`
	Priority    int         `json:"priority"`

	Fills            []OrderFill     `json:"fills"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	AverageFillPrice decimal.Decimal `json:"average_fill_price"`

	SlippageTolerance decimal.Decimal `json:"slippage_tolerance"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	RequiredBalance   decimal.Decimal `json:"required_balance"`

	// ReservationID is the ledger hold backing this order while active.
	ReservationID string `json:"reservation_id,omitempty"`

	// Detail carries the type-specific variant for advanced orders.
	// Nil for the simple types.
	Detail OrderDetail `json:"detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // Zero when the order never expires
}

// IsOpen reports whether the order is still working.
func (o *Order) IsOpen() bool {
	return o.Status == StatusPending || o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}

// RecordFill appends a fill and updates the aggregate fields. The caller is
// responsible for the status transition that follows.
func (o *Order) RecordFill(f OrderFill) {
	o.Fills = append(o.Fills, f)
	o.Filled = o.Filled.Add(f.Amount)
	o.Remaining = o.Amount.Sub(o.Filled)
	o.TotalFees = o.TotalFees.Add(f.Fee)

	// Volume-weighted average over all fills.
	var notional decimal.Decimal
	for _, fill := range o.Fills {
		notional = notional.Add(fill.Amount.Mul(fill.Price))
	}
	if o.Filled.IsPositive() {
		o.AverageFillPrice = notional.Div(o.Filled)
	}
	o.UpdatedAt = f.Timestamp
}

// VerifyInvariant checks the fill-accounting invariant while active.
func (o *Order) VerifyInvariant() {
	if !o.Filled.Add(o.Remaining).Equal(o.Amount) {
		panic("ORDER_INVARIANT_FILL_MISMATCH: " + o.ID +
			" filled=" + o.Filled.String() + " remaining=" + o.Remaining.String() +
			" amount=" + o.Amount.String())
	}
	if o.Filled.IsNegative() || o.Remaining.IsNegative() {
		panic("ORDER_INVARIANT_NEGATIVE: " + o.ID)
	}
}
