package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRecord is the journaled form of a terminal order.
type OrderRecord struct {
	ID        string          `gorm:"primaryKey" json:"id"`
	Type      string          `json:"type"`
	Side      string          `json:"side"`
	Status    string          `gorm:"index" json:"status"`
	Asset     string          `gorm:"index" json:"asset"`
	Quote     string          `json:"quote"`
	Amount    decimal.Decimal `gorm:"type:text" json:"amount"`
	Filled    decimal.Decimal `gorm:"type:text" json:"filled"`
	AvgPrice  decimal.Decimal `gorm:"type:text" json:"avg_price"`
	TotalFees decimal.Decimal `gorm:"type:text" json:"total_fees"`
	CreatedAt time.Time       `json:"created_at"`
	ClosedAt  time.Time       `json:"closed_at"`
}

// FillRecord is the journaled form of an execution.
type FillRecord struct {
	ID        string          `gorm:"primaryKey" json:"id"`
	OrderID   string          `gorm:"index" json:"order_id"`
	Amount    decimal.Decimal `gorm:"type:text" json:"amount"`
	Price     decimal.Decimal `gorm:"type:text" json:"price"`
	Fee       decimal.Decimal `gorm:"type:text" json:"fee"`
	TxHash    string          `json:"tx_hash"`
	Timestamp time.Time       `json:"timestamp"`
}

// PositionRecord is the journaled form of a staking position.
type PositionRecord struct {
	ID           string          `gorm:"primaryKey" json:"id"`
	AssetID      string          `gorm:"index" json:"asset_id"`
	Symbol       string          `json:"symbol"`
	Amount       decimal.Decimal `gorm:"type:text" json:"amount"`
	LockMonths   int             `json:"lock_months"`
	EffectiveAPY decimal.Decimal `gorm:"type:text" json:"effective_apy"`
	Status       string          `json:"status"`
	StakedAt     time.Time       `json:"staked_at"`
	ClosedAt     time.Time       `json:"closed_at"`
}

// FaucetClaim tracks the cooldown state of one claimant address.
type FaucetClaim struct {
	Address     string          `gorm:"primaryKey" json:"address"`
	LastClaimAt time.Time       `json:"last_claim_at"`
	ClaimCount  int             `json:"claim_count"`
	Dispensed   decimal.Decimal `gorm:"type:text" json:"dispensed"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
