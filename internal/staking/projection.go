// Package staking provides the yield projection math and the position book
// for the simulated staking pools. Projections are pure functions; the book
// owns positions and routes staked funds through the ledger's reservation
// discipline so a stake can never exceed the available balance.
package staking

import (
	"etodesk/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)

	bonus12mo = decimal.NewFromFloat(2.5)
	bonus6mo  = decimal.NewFromFloat(1.5)
	bonus3mo  = decimal.NewFromFloat(0.8)
)

// lockBonus returns the APY bonus in percentage points for a lock period.
func lockBonus(months int) decimal.Decimal {
	switch {
	case months >= 12:
		return bonus12mo
	case months >= 6:
		return bonus6mo
	case months >= 3:
		return bonus3mo
	}
	return decimal.Zero
}

// EffectiveAPY applies the lock-period bonus to the nominal base rate and,
// when autoCompound is set, converts it to the effective annual rate under
// monthly compounding. Rates are percentages; the result is rounded to two
// decimals. A zero base rate stays zero: lock bonuses do not conjure yield
// out of a non-yielding pool.
func EffectiveAPY(baseAPY decimal.Decimal, months int, autoCompound bool) decimal.Decimal {
	if !baseAPY.IsPositive() {
		return decimal.Zero
	}

	nominal := baseAPY.Add(lockBonus(months))
	if !autoCompound {
		return nominal.Round(2)
	}

	// effective = (1 + nominal/12)^12 - 1
	monthly := nominal.Div(hundred).Div(twelve)
	compounded := decimal.NewFromInt(1).Add(monthly).Pow(twelve)
	return compounded.Sub(decimal.NewFromInt(1)).Mul(hundred).Round(2)
}

// Project previews the outcome of staking amount for months against the
// asset. Pure: identical inputs produce identical output and nothing is
// mutated.
func Project(asset domain.StakingAsset, amount decimal.Decimal, months int, autoCompound bool) domain.Projection {
	effective := EffectiveAPY(asset.BaseAPY, months, autoCompound)

	yearly := amount.Mul(effective).Div(hundred)
	total := yearly.Mul(decimal.NewFromInt(int64(months))).Div(twelve)

	return domain.Projection{
		EffectiveAPY:   effective,
		TotalRewards:   total.Round(8),
		MonthlyRewards: yearly.Div(twelve).Round(8),
		EndValue:       amount.Add(total).Round(8),
		RiskScore:      riskScore(asset, amount, months),
	}
}

// riskScore grades a prospective position 0-100 (higher is riskier) from
// the asset tier, the position's concentration against the pool's TVL, and
// the lock length. Longer locks reduce the score.
func riskScore(asset domain.StakingAsset, amount decimal.Decimal, months int) int {
	score := asset.Risk.BaseScore()

	if asset.TVL.IsPositive() && amount.IsPositive() {
		concentrationPct := amount.Div(asset.TVL).Mul(hundred)
		penalty := int(concentrationPct.IntPart())
		if penalty > 25 {
			penalty = 25
		}
		score += penalty
	}

	lockCredit := months
	if lockCredit > 15 {
		lockCredit = 15
	}
	score -= lockCredit

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
