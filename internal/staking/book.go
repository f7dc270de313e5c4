package staking

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"etodesk/internal/domain"
	"etodesk/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Journal archives closed staking positions. Nil disables archiving.
type Journal interface {
	SavePosition(rec domain.PositionRecord) error
}

// Book owns the staking catalog and the user's open positions. Staked
// funds are held as ledger reservations for the life of the position, so
// the same balance cannot back a stake and an order at once.
type Book struct {
	mu        sync.Mutex
	ledger    *ledger.Ledger
	assets    map[string]domain.StakingAsset
	positions map[string]*domain.StakingPosition
	journal   Journal
	now       func() time.Time
	log       *slog.Logger
}

// NewBook creates a position book over the given staking catalog.
func NewBook(l *ledger.Ledger, catalog []domain.StakingAsset, log *slog.Logger) *Book {
	if log == nil {
		log = slog.Default()
	}
	assets := make(map[string]domain.StakingAsset, len(catalog))
	for _, a := range catalog {
		assets[a.ID] = a
	}
	return &Book{
		ledger:    l,
		assets:    assets,
		positions: make(map[string]*domain.StakingPosition),
		now:       time.Now,
		log:       log,
	}
}

// SetJournal attaches a closed-position archive.
func (b *Book) SetJournal(j Journal) { b.journal = j }

// SetClock overrides the time source (for testing).
func (b *Book) SetClock(now func() time.Time) { b.now = now }

// Asset returns one catalog entry.
func (b *Book) Asset(id string) (domain.StakingAsset, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.assets[id]
	return a, ok
}

// Assets returns the catalog sorted by ID.
func (b *Book) Assets() []domain.StakingAsset {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]domain.StakingAsset, 0, len(b.assets))
	for _, a := range b.assets {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Project previews a stake against a catalog asset without touching state.
func (b *Book) Project(assetID string, amount decimal.Decimal, months int, autoCompound bool) (domain.Projection, error) {
	b.mu.Lock()
	asset, ok := b.assets[assetID]
	b.mu.Unlock()
	if !ok {
		return domain.Projection{}, fmt.Errorf("project %s: %w", assetID, domain.ErrUnknownAsset)
	}
	return Project(asset, amount, months, autoCompound), nil
}

// AddPosition opens a stake: amount is checked against the asset's bounds,
// the funds are reserved in the ledger, and the position is recorded with
// its effective APY locked in.
func (b *Book) AddPosition(assetID string, amount decimal.Decimal, months int, autoCompound bool) (*domain.StakingPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	asset, ok := b.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("stake %s: %w", assetID, domain.ErrUnknownAsset)
	}
	if amount.LessThan(asset.MinStake) || amount.GreaterThan(asset.MaxStake) {
		return nil, fmt.Errorf("stake %s %s (bounds %s..%s): %w",
			assetID, amount, asset.MinStake, asset.MaxStake, domain.ErrStakeOutOfRange)
	}

	resID, err := b.ledger.Reserve(asset.Symbol, amount, domain.ReservationStake, "")
	if err != nil {
		return nil, err
	}

	now := b.now()
	pos := &domain.StakingPosition{
		ID:            uuid.NewString(),
		AssetID:       assetID,
		Symbol:        asset.Symbol,
		Amount:        amount,
		LockMonths:    months,
		AutoCompound:  autoCompound,
		EffectiveAPY:  EffectiveAPY(asset.BaseAPY, months, autoCompound),
		Status:        domain.PositionActive,
		ReservationID: resID,
		StakedAt:      now,
		UnlocksAt:     now.AddDate(0, months, 0),
	}
	b.positions[pos.ID] = pos

	b.log.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.String("asset", asset.Symbol),
		slog.String("amount", amount.String()),
		slog.Int("lock_months", months))

	snapshot := *pos
	return &snapshot, nil
}

// RemovePosition closes a stake and releases the reserved funds.
func (b *Book) RemovePosition(positionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[positionID]
	if !ok {
		return fmt.Errorf("unstake %s: position not found", positionID)
	}

	b.ledger.Release(pos.ReservationID)
	delete(b.positions, positionID)
	pos.Status = domain.PositionCompleted

	b.log.Info("position closed", slog.String("position_id", positionID))

	if b.journal != nil {
		rec := domain.PositionRecord{
			ID:           pos.ID,
			AssetID:      pos.AssetID,
			Symbol:       pos.Symbol,
			Amount:       pos.Amount,
			LockMonths:   pos.LockMonths,
			EffectiveAPY: pos.EffectiveAPY,
			Status:       string(pos.Status),
			StakedAt:     pos.StakedAt,
			ClosedAt:     b.now(),
		}
		if err := b.journal.SavePosition(rec); err != nil {
			b.log.Warn("position journal write failed", slog.Any("error", err))
		}
	}
	return nil
}

// Positions returns snapshots of all open positions, oldest first.
func (b *Book) Positions() []domain.StakingPosition {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]domain.StakingPosition, 0, len(b.positions))
	for _, pos := range b.positions {
		result = append(result, *pos)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StakedAt.Before(result[j].StakedAt)
	})
	return result
}

// TotalStaked sums open positions for one symbol.
func (b *Book) TotalStaked(symbol string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := decimal.Zero
	for _, pos := range b.positions {
		if pos.Symbol == symbol {
			total = total.Add(pos.Amount)
		}
	}
	return total
}
