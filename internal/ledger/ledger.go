// Package ledger is the single source of truth for simulated per-asset
// balances and fund reservations. All mutation goes through its methods;
// check-then-reserve runs under one lock so two intents can never commit
// the same funds.
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"etodesk/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetSpec seeds one catalog entry at construction time.
type AssetSpec struct {
	Symbol   string
	Name     string
	Decimals int32
	Balance  decimal.Decimal
	Price    decimal.Decimal
}

// Ledger owns the balance table and the reservation table.
type Ledger struct {
	mu           sync.RWMutex
	balances     map[string]*domain.AssetBalance
	reservations map[string]*domain.Reservation
	now          func() time.Time
}

// New creates a ledger seeded with the given asset catalog.
func New(catalog []AssetSpec) *Ledger {
	l := &Ledger{
		balances:     make(map[string]*domain.AssetBalance, len(catalog)),
		reservations: make(map[string]*domain.Reservation),
		now:          time.Now,
	}
	for _, spec := range catalog {
		l.balances[spec.Symbol] = &domain.AssetBalance{
			Symbol:   spec.Symbol,
			Name:     spec.Name,
			Decimals: spec.Decimals,
			Balance:  spec.Balance,
			Price:    spec.Price,
		}
	}
	return l
}

// SetClock overrides the time source (for testing).
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// AllBalances returns a snapshot of every balance, sorted by symbol.
func (l *Ledger) AllBalances() []domain.AssetBalance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.AssetBalance, 0, len(l.balances))
	for _, b := range l.balances {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// Balance returns a snapshot for one asset, or nil if unsupported.
func (l *Ledger) Balance(asset string) *domain.AssetBalance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.balances[asset]
	if !ok {
		return nil
	}
	snapshot := *b
	return &snapshot
}

// Available returns the spendable balance; zero for unknown assets.
func (l *Ledger) Available(asset string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.balances[asset]
	if !ok {
		return decimal.Zero
	}
	return b.Available()
}

// PortfolioValue returns the USD value of all holdings.
func (l *Ledger) PortfolioValue() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, b := range l.balances {
		total = total.Add(b.USDValue())
	}
	return total
}

// Reserve places a hold of amount against the asset and returns the
// reservation ID. The availability check and the write happen under the
// same lock acquisition.
func (l *Ledger) Reserve(asset string, amount decimal.Decimal, typ domain.ReservationType, orderID string) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("reserve %s: %w", asset, domain.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.balances[asset]
	if !ok {
		return "", fmt.Errorf("reserve %s: %w", asset, domain.ErrUnknownAsset)
	}
	if amount.GreaterThan(b.Available()) {
		return "", fmt.Errorf("reserve %s %s (available %s): %w",
			asset, amount, b.Available(), domain.ErrInsufficientBalance)
	}

	res := &domain.Reservation{
		ID:        uuid.NewString(),
		Asset:     asset,
		Amount:    amount,
		Type:      typ,
		OrderID:   orderID,
		CreatedAt: l.now(),
	}
	l.reservations[res.ID] = res
	b.Reserved = b.Reserved.Add(amount)
	b.VerifyInvariant()
	return res.ID, nil
}

// Release removes a hold. Returns false if the ID is unknown, which makes
// a double release an explicit no-op rather than an error.
func (l *Ledger) Release(reservationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseLocked(reservationID)
}

func (l *Ledger) releaseLocked(reservationID string) bool {
	res, ok := l.reservations[reservationID]
	if !ok {
		return false
	}
	delete(l.reservations, reservationID)

	if b, ok := l.balances[res.Asset]; ok {
		b.Reserved = b.Reserved.Sub(res.Amount)
		if b.Reserved.IsNegative() {
			b.Reserved = decimal.Zero
		}
		b.VerifyInvariant()
	}
	return true
}

// ReleaseAll drops every active reservation and returns how many were held.
func (l *Ledger) ReleaseAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id := range l.reservations {
		if l.releaseLocked(id) {
			n++
		}
	}
	return n
}

// Reservation returns a snapshot of one hold, or nil if it no longer exists.
func (l *Ledger) Reservation(id string) *domain.Reservation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	res, ok := l.reservations[id]
	if !ok {
		return nil
	}
	snapshot := *res
	return &snapshot
}

// ActiveReservations returns snapshots of all current holds.
func (l *Ledger) ActiveReservations() []domain.Reservation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Reservation, 0, len(l.reservations))
	for _, res := range l.reservations {
		result = append(result, *res)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Apply adds a signed delta to the asset's total balance, flooring at zero.
// Used after a simulated fill to debit or credit.
func (l *Ledger) Apply(asset string, change decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.balances[asset]
	if !ok {
		return fmt.Errorf("apply %s: %w", asset, domain.ErrUnknownAsset)
	}
	b.Balance = b.Balance.Add(change)
	if b.Balance.IsNegative() {
		b.Balance = decimal.Zero
	}
	if b.Reserved.GreaterThan(b.Balance) {
		b.Reserved = b.Balance
	}
	b.VerifyInvariant()
	return nil
}

// SetPrice updates the last known USD price for an asset. Unknown symbols
// are ignored; the feed may carry more markets than the ledger tracks.
func (l *Ledger) SetPrice(asset string, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.balances[asset]; ok && !price.IsNegative() {
		b.Price = price
	}
}

// ValidateAmount checks a user-entered amount against the asset's
// availability without taking a hold.
func (l *Ledger) ValidateAmount(asset string, amount decimal.Decimal) domain.AmountCheck {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !amount.IsPositive() {
		return domain.AmountCheck{Error: "amount must be greater than zero"}
	}
	b, ok := l.balances[asset]
	if !ok {
		return domain.AmountCheck{Error: "unsupported asset: " + asset}
	}
	if amount.GreaterThan(b.Available()) {
		return domain.AmountCheck{Error: fmt.Sprintf(
			"insufficient balance: %s available, %s requested", b.Available(), amount)}
	}
	return domain.AmountCheck{IsValid: true}
}

// FormatAmount renders an amount clamped to the asset's decimal places.
func (l *Ledger) FormatAmount(asset string, amount decimal.Decimal) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	decimals := int32(8)
	if b, ok := l.balances[asset]; ok {
		decimals = b.Decimals
	}
	return amount.Truncate(decimals).StringFixed(decimals)
}

// ParseAmount converts user input into a decimal, failing fast on
// non-numeric input.
func ParseAmount(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("parse amount: empty input: %w", domain.ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", input, domain.ErrInvalidAmount)
	}
	return d, nil
}
