package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is the qualitative risk tier of a staking asset.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// baseScore maps the tier to the starting point of the 0-100 risk score.
func (r RiskLevel) baseScore() int {
	switch r {
	case RiskLow:
		return 15
	case RiskMedium:
		return 40
	case RiskHigh:
		return 70
	}
	return 40
}

// BaseScore exposes the tier's starting risk score.
func (r RiskLevel) BaseScore() int { return r.baseScore() }

// StakingAsset is a catalog entry for a stakeable asset.
type StakingAsset struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	BaseAPY     decimal.Decimal `json:"base_apy"` // Percent, e.g. 10 for 10%
	MinStake    decimal.Decimal `json:"min_stake"`
	MaxStake    decimal.Decimal `json:"max_stake"`
	LockPeriods []int           `json:"lock_periods"` // Months
	TVL         decimal.Decimal `json:"tvl"`
	Risk        RiskLevel       `json:"risk"`
}

// PositionStatus tracks a staking position's lifecycle.
type PositionStatus string

const (
	PositionActive    PositionStatus = "active"
	PositionUnlocking PositionStatus = "unlocking"
	PositionCompleted PositionStatus = "completed"
)

// StakingPosition is a user's open stake.
type StakingPosition struct {
	ID            string          `json:"id"`
	AssetID       string          `json:"asset_id"`
	Symbol        string          `json:"symbol"`
	Amount        decimal.Decimal `json:"amount"`
	LockMonths    int             `json:"lock_months"`
	AutoCompound  bool            `json:"auto_compound"`
	EffectiveAPY  decimal.Decimal `json:"effective_apy"`
	Status        PositionStatus  `json:"status"`
	ReservationID string          `json:"reservation_id,omitempty"`
	StakedAt      time.Time       `json:"staked_at"`
	UnlocksAt     time.Time       `json:"unlocks_at"`
}

// Projection is the previewed outcome of a staking position.
type Projection struct {
	EffectiveAPY   decimal.Decimal `json:"effective_apy"`
	TotalRewards   decimal.Decimal `json:"total_rewards"`
	MonthlyRewards decimal.Decimal `json:"monthly_rewards"`
	EndValue       decimal.Decimal `json:"end_value"`
	RiskScore      int             `json:"risk_score"` // 0-100, higher is riskier
}
