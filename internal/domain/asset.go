package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetBalance represents the simulated holdings for a single asset.
// This is the core structure the reservation invariants are verified against.
type AssetBalance struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Decimals int32           `json:"decimals"`
	Balance  decimal.Decimal `json:"balance"`  // Total owned
	Reserved decimal.Decimal `json:"reserved"` // Held by active reservations
	Price    decimal.Decimal `json:"price"`    // Last known USD price
}

// Available returns the spendable balance (total - reserved).
func (b *AssetBalance) Available() decimal.Decimal {
	return b.Balance.Sub(b.Reserved)
}

// USDValue returns the total balance valued at the last known price.
func (b *AssetBalance) USDValue() decimal.Decimal {
	return b.Balance.Mul(b.Price)
}

// VerifyInvariant checks that the balance satisfies its invariants.
// Call this after any state change to ensure data integrity.
func (b *AssetBalance) VerifyInvariant() {
	if b.Balance.IsNegative() {
		panic("BALANCE_INVARIANT_NEGATIVE_AMOUNT: " + b.Symbol + " = " + b.Balance.String())
	}
	if b.Reserved.IsNegative() {
		panic("BALANCE_INVARIANT_NEGATIVE_RESERVED: " + b.Symbol + " = " + b.Reserved.String())
	}
	if b.Reserved.GreaterThan(b.Balance) {
		panic("BALANCE_INVARIANT_RESERVED_EXCEEDS_AMOUNT: " + b.Symbol +
			" reserved=" + b.Reserved.String() + " amount=" + b.Balance.String())
	}
}

// ReservationType distinguishes what a hold was taken for.
type ReservationType string

const (
	ReservationOrder       ReservationType = "order"
	ReservationTransaction ReservationType = "transaction"
	ReservationStake       ReservationType = "stake"
)

// Reservation is an ephemeral hold against an asset balance. It is owned
// exclusively by the ledger's reservation table; callers keep only the ID.
type Reservation struct {
	ID        string          `json:"id"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Type      ReservationType `json:"type"`
	OrderID   string          `json:"order_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AmountCheck is the result of validating a user-entered amount.
type AmountCheck struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}
