// Package orders implements the order lifecycle engine: validation,
// placement, price-triggered execution, cancellation, modification, and
// time-in-force expiry. The ledger is the sole authority on fund
// availability; the engine never keeps its own copy of a balance.
package orders

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"etodesk/internal/domain"
	"etodesk/internal/infra"
	"etodesk/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteSource supplies live prices and visible liquidity per symbol.
type QuoteSource interface {
	Quote(symbol string) (domain.Quote, bool)
}

// Journal archives terminal orders and fills. Implementations must be safe
// for concurrent use; a nil journal disables archiving.
type Journal interface {
	ArchiveOrder(rec domain.OrderRecord) error
	SaveFill(rec domain.FillRecord) error
}

// Engine owns the in-memory order table. All operations run under one
// mutex so a modification can never observe a half-settled fill.
type Engine struct {
	mu      sync.Mutex
	ledger  *ledger.Ledger
	quotes  QuoteSource
	journal Journal
	feeRate decimal.Decimal
	orders  map[string]*domain.Order
	created []string // Order IDs in creation sequence
	now     func() time.Time
	log     *slog.Logger
}

// NewEngine creates an order engine bound to the given ledger and quote
// source. feeRate is a fraction of notional (0.001 = 10 bps).
func NewEngine(l *ledger.Ledger, quotes QuoteSource, feeRate decimal.Decimal, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		ledger:  l,
		quotes:  quotes,
		feeRate: feeRate,
		orders:  make(map[string]*domain.Order),
		now:     time.Now,
		log:     log,
	}
}

// SetJournal attaches a terminal-order archive.
func (e *Engine) SetJournal(j Journal) { e.journal = j }

// SetClock overrides the time source (for testing).
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Place validates the parameters, reserves the required balance, and either
// executes immediately (market, IOC, FOK) or leaves the order resting. The
// validation result is always returned so callers can render messages; the
// error is ErrOrderRejected when validation failed, or an operational error.
func (e *Engine) Place(p CreateOrderParams) (*domain.Order, ValidationResult, error) {
	p.normalize()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(e.now())

	res := e.validate(p)
	if !res.IsValid {
		o := e.buildOrderLocked(p, res)
		o.Status = domain.StatusRejected
		e.insertLocked(o)
		e.archiveLocked(o)
		e.log.Warn("order rejected", slog.String("order_id", o.ID), slog.Any("errors", res.Errors))
		infra.GlobalMetrics.RecordOrderRejected()
		return snapshot(o), res, fmt.Errorf("%w: %v", domain.ErrOrderRejected, res.Errors)
	}

	// FOK must fill entirely at once; check liquidity before committing funds.
	if p.TimeInForce == domain.TIFFillOrKill {
		if q, ok := e.quotes.Quote(p.Asset); !ok || q.Liquidity.IsPositive() && q.Liquidity.LessThan(p.Amount) {
			o := e.buildOrderLocked(p, res)
			o.Status = domain.StatusRejected
			e.insertLocked(o)
			e.archiveLocked(o)
			infra.GlobalMetrics.RecordOrderRejected()
			res.IsValid = false
			res.Errors = append(res.Errors, "insufficient liquidity for fill-or-kill")
			return snapshot(o), res, fmt.Errorf("%w: insufficient liquidity for FOK", domain.ErrOrderRejected)
		}
	}

	o := e.buildOrderLocked(p, res)

	spendAsset := p.Quote
	if p.Side == domain.SideSell {
		spendAsset = p.Asset
	}
	resID, err := e.ledger.Reserve(spendAsset, res.RequiredBalance, domain.ReservationOrder, o.ID)
	if err != nil {
		// The validate read and this reserve are two lock acquisitions on the
		// ledger; a competing hold can land between them. Surface it the same
		// way a validation failure is surfaced.
		o.Status = domain.StatusRejected
		e.insertLocked(o)
		e.archiveLocked(o)
		infra.GlobalMetrics.RecordOrderRejected()
		res.IsValid = false
		res.Errors = append(res.Errors, err.Error())
		return snapshot(o), res, fmt.Errorf("%w: %v", domain.ErrOrderRejected, err)
	}
	o.ReservationID = resID
	infra.GlobalMetrics.RecordReservation()

	o.Status = domain.StatusOpen
	if p.TimeInForce == domain.TIFDay {
		o.ExpiresAt = endOfDay(o.CreatedAt)
	}
	e.insertLocked(o)

	switch p.Type {
	case domain.OrderTypeMarket:
		e.executeMarketLocked(o, decimal.Zero)
	case domain.OrderTypeOCO:
		e.buildOCOLegsLocked(o, p)
	case domain.OrderTypeIceberg:
		e.buildIcebergSlicesLocked(o, p)
	case domain.OrderTypeTWAP:
		e.buildTWAPSlicesLocked(o, p)
	case domain.OrderTypeVWAP:
		e.buildVWAPSlicesLocked(o, p)
	case domain.OrderTypeTrailingStop:
		o.Detail = &domain.TrailingStopDetail{
			TrailAmount:  p.TrailAmount,
			TrailPercent: p.TrailPercent,
		}
		// Seed the reference from the live quote so the first tick does
		// not count as a favorable move from zero.
		if q, ok := e.quotes.Quote(o.Asset); ok {
			e.updateTrailingLocked(o, q)
		}
	default:
		// Resting order; it may already be marketable at the current quote.
		if q, ok := e.quotes.Quote(o.Asset); ok {
			e.tryTriggerLocked(o, q)
		}
	}

	// IOC and FOK never rest: whatever could not fill synchronously is gone,
	// including any legs or slices spawned during dispatch.
	if o.IsOpen() {
		switch p.TimeInForce {
		case domain.TIFImmediate:
			e.teardownChildrenLocked(o, domain.StatusCancelled)
			e.terminalizeLocked(o, domain.StatusCancelled)
		case domain.TIFFillOrKill:
			e.teardownChildrenLocked(o, domain.StatusCancelled)
			e.terminalizeLocked(o, domain.StatusRejected)
		}
	}

	e.log.Info("order placed",
		slog.String("order_id", o.ID),
		slog.String("type", string(o.Type)),
		slog.String("side", string(o.Side)),
		slog.String("asset", o.Asset),
		slog.String("amount", o.Amount.String()),
		slog.String("status", string(o.Status)))
	infra.GlobalMetrics.RecordOrderPlaced()

	return snapshot(o), res, nil
}

// Cancel transitions a non-terminal order to cancelled and releases its
// reservation. Returns false, not an error, for unknown or terminal orders.
func (e *Engine) Cancel(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(e.now())

	o, ok := e.orders[orderID]
	if !ok || !o.IsOpen() {
		return false
	}

	// Cancelling a parent tears down its unfilled slices too.
	e.teardownChildrenLocked(o, domain.StatusCancelled)
	e.terminalizeLocked(o, domain.StatusCancelled)
	e.log.Info("order cancelled", slog.String("order_id", o.ID))
	infra.GlobalMetrics.RecordOrderCancelled()

	if o.ParentID != "" {
		e.finalizeParentLocked(o.ParentID)
	}
	return true
}

// ModifyParams holds the optional updates. Nil fields are left untouched.
type ModifyParams struct {
	Amount    *decimal.Decimal
	Price     *decimal.Decimal
	StopPrice *decimal.Decimal
}

// Modify re-validates the order with the updates applied and atomically
// swaps the backing reservation. Only pending/open orders can be modified.
func (e *Engine) Modify(orderID string, updates ModifyParams) (*domain.Order, ValidationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(e.now())

	o, ok := e.orders[orderID]
	if !ok {
		return nil, ValidationResult{}, domain.ErrOrderNotFound
	}
	if o.Status != domain.StatusPending && o.Status != domain.StatusOpen {
		return nil, ValidationResult{}, fmt.Errorf("order %s is %s: %w", orderID, o.Status, domain.ErrOrderNotModifiable)
	}
	if o.ParentID != "" {
		return nil, ValidationResult{}, fmt.Errorf("slice %s: %w", orderID, domain.ErrOrderNotModifiable)
	}

	p := CreateOrderParams{
		UserID:            o.UserID,
		Type:              o.Type,
		Side:              o.Side,
		Asset:             o.Asset,
		Quote:             o.Quote,
		Amount:            o.Amount,
		Price:             o.Price,
		StopPrice:         o.StopPrice,
		TimeInForce:       o.TimeInForce,
		Priority:          o.Priority,
		SlippageTolerance: o.SlippageTolerance,
	}
	if updates.Amount != nil {
		p.Amount = *updates.Amount
	}
	if updates.Price != nil {
		p.Price = *updates.Price
	}
	if updates.StopPrice != nil {
		p.StopPrice = *updates.StopPrice
	}

	// Swap sequence: release the old hold, validate, take the new hold.
	// Everything runs under the engine lock, so no other order operation
	// can observe the gap; only an out-of-band ledger user can.
	oldResID := o.ReservationID
	oldRequired := o.RequiredBalance
	spendAsset := o.Quote
	if o.Side == domain.SideSell {
		spendAsset = o.Asset
	}

	e.ledger.Release(oldResID)
	res := e.validate(p)
	if !res.IsValid {
		// Restore the original hold; the funds were just released under the
		// engine lock, but an out-of-band hold (staking) may have claimed
		// them. Losing the race cancels the order rather than leaving it
		// active and unreserved.
		if restored, err := e.ledger.Reserve(spendAsset, oldRequired, domain.ReservationOrder, o.ID); err == nil {
			o.ReservationID = restored
		} else {
			e.terminalizeLocked(o, domain.StatusCancelled)
			e.log.Error("modify rollback lost funds race, order cancelled",
				slog.String("order_id", o.ID), slog.Any("error", err))
			return nil, res, fmt.Errorf("%w; rollback failed: %v", domain.ErrOrderRejected, err)
		}
		return snapshot(o), res, fmt.Errorf("%w: %v", domain.ErrOrderRejected, res.Errors)
	}

	newResID, err := e.ledger.Reserve(spendAsset, res.RequiredBalance, domain.ReservationOrder, o.ID)
	if err != nil {
		if restored, rerr := e.ledger.Reserve(spendAsset, oldRequired, domain.ReservationOrder, o.ID); rerr == nil {
			o.ReservationID = restored
		} else {
			e.terminalizeLocked(o, domain.StatusCancelled)
			e.log.Error("modify rollback lost funds race, order cancelled",
				slog.String("order_id", o.ID), slog.Any("error", rerr))
		}
		res.IsValid = false
		res.Errors = append(res.Errors, err.Error())
		return snapshot(o), res, fmt.Errorf("%w: %v", domain.ErrOrderRejected, err)
	}

	o.ReservationID = newResID
	o.Amount = p.Amount
	o.Remaining = p.Amount.Sub(o.Filled)
	o.Price = p.Price
	o.StopPrice = p.StopPrice
	o.RequiredBalance = res.RequiredBalance
	o.EstimatedCost = res.EstimatedCost
	o.UpdatedAt = e.now()
	o.VerifyInvariant()

	e.log.Info("order modified", slog.String("order_id", o.ID), slog.String("amount", o.Amount.String()))

	if q, ok := e.quotes.Quote(o.Asset); ok {
		e.tryTriggerLocked(o, q)
	}
	return snapshot(o), res, nil
}

// OnPrice reruns trigger checks for every resting order on the symbol.
// Called by the portfolio service after each price update.
func (e *Engine) OnPrice(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(e.now())

	q, ok := e.quotes.Quote(symbol)
	if !ok || !q.Price.IsPositive() {
		return
	}

	for _, id := range e.created {
		o := e.orders[id]
		if o.Asset != symbol || !o.IsOpen() || o.Status == domain.StatusPending {
			continue
		}
		// Parents of sliced orders fill only through their children.
		if len(e.childrenLocked(o)) > 0 {
			continue
		}
		e.tryTriggerLocked(o, q)
	}
}

// Sweep runs the periodic reconciliation: DAY/expiry transitions and the
// release of due TWAP/VWAP slices. The owner calls it on a timer; every
// public operation also runs it lazily first.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sweepLocked(e.now())
}

func (e *Engine) sweepLocked(now time.Time) int {
	transitions := 0
	for _, id := range e.created {
		o := e.orders[id]
		if !o.IsOpen() {
			continue
		}
		if !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt) {
			transitions += e.teardownChildrenLocked(o, domain.StatusExpired)
			e.terminalizeLocked(o, domain.StatusExpired)
			e.log.Info("order expired", slog.String("order_id", o.ID))
			transitions++
			if o.ParentID != "" {
				e.finalizeParentLocked(o.ParentID)
			}
			continue
		}
		transitions += e.releaseDueSlicesLocked(o, now)
	}
	return transitions
}

// buildOrderLocked constructs the order shell from validated parameters.
func (e *Engine) buildOrderLocked(p CreateOrderParams, res ValidationResult) *domain.Order {
	now := e.now()
	return &domain.Order{
		ID:                uuid.NewString(),
		UserID:            p.UserID,
		Type:              p.Type,
		Side:              p.Side,
		Status:            domain.StatusPending,
		Asset:             p.Asset,
		Quote:             p.Quote,
		Amount:            p.Amount,
		Remaining:         p.Amount,
		Price:             p.Price,
		StopPrice:         p.StopPrice,
		TimeInForce:       p.TimeInForce,
		Priority:          p.Priority,
		SlippageTolerance: p.SlippageTolerance,
		EstimatedCost:     res.EstimatedCost,
		RequiredBalance:   res.RequiredBalance,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (e *Engine) insertLocked(o *domain.Order) {
	e.orders[o.ID] = o
	e.created = append(e.created, o.ID)
}

// tryTriggerLocked checks whether the resting order is executable at the
// quote and fills it as far as liquidity allows.
func (e *Engine) tryTriggerLocked(o *domain.Order, q domain.Quote) {
	if !o.IsOpen() || o.Status == domain.StatusPending {
		return
	}

	switch o.Type {
	case domain.OrderTypeMarket:
		e.executeMarketLocked(o, decimal.Zero)

	case domain.OrderTypeLimit, domain.OrderTypeIceberg:
		if marketable(o.Side, q.Price, o.Price) {
			e.executeMarketLocked(o, o.Price)
		}

	case domain.OrderTypeStop:
		if stopTriggered(o.Side, q.Price, o.StopPrice) {
			o.Triggered = true
			e.executeMarketLocked(o, decimal.Zero)
		}

	case domain.OrderTypeStopLimit:
		if !o.Triggered && stopTriggered(o.Side, q.Price, o.StopPrice) {
			o.Triggered = true
			o.UpdatedAt = e.now()
		}
		if o.Triggered && marketable(o.Side, q.Price, o.Price) {
			e.executeMarketLocked(o, o.Price)
		}

	case domain.OrderTypeTakeProfit:
		// Mirror of a stop: exits when the market moves in favor.
		if takeProfitTriggered(o.Side, q.Price, o.StopPrice) {
			o.Triggered = true
			e.executeMarketLocked(o, decimal.Zero)
		}

	case domain.OrderTypeTrailingStop:
		e.updateTrailingLocked(o, q)
	}
}

// marketable reports whether a limit order may execute at the market price.
func marketable(side domain.OrderSide, market, limit decimal.Decimal) bool {
	if side == domain.SideBuy {
		return market.LessThanOrEqual(limit)
	}
	return market.GreaterThanOrEqual(limit)
}

// stopTriggered reports whether a stop trigger has fired: buys arm above
// the trigger, sells below.
func stopTriggered(side domain.OrderSide, market, stop decimal.Decimal) bool {
	if side == domain.SideBuy {
		return market.GreaterThanOrEqual(stop)
	}
	return market.LessThanOrEqual(stop)
}

// takeProfitTriggered is the inverse: sells arm above the target, buys below.
func takeProfitTriggered(side domain.OrderSide, market, target decimal.Decimal) bool {
	if side == domain.SideSell {
		return market.GreaterThanOrEqual(target)
	}
	return market.LessThanOrEqual(target)
}

func (e *Engine) updateTrailingLocked(o *domain.Order, q domain.Quote) {
	detail, ok := o.Detail.(*domain.TrailingStopDetail)
	if !ok {
		return
	}

	// Ratchet the reference on favorable moves only.
	if detail.ReferencePrice.IsZero() ||
		(o.Side == domain.SideSell && q.Price.GreaterThan(detail.ReferencePrice)) ||
		(o.Side == domain.SideBuy && q.Price.LessThan(detail.ReferencePrice)) {
		detail.ReferencePrice = q.Price
		detail.TriggerPrice = trailingTrigger(o.Side, q.Price, detail)
		o.UpdatedAt = e.now()
	}

	if stopTriggered(o.Side, q.Price, detail.TriggerPrice) {
		o.Triggered = true
		e.executeMarketLocked(o, decimal.Zero)
	}
}

func trailingTrigger(side domain.OrderSide, ref decimal.Decimal, d *domain.TrailingStopDetail) decimal.Decimal {
	offset := d.TrailAmount
	if d.TrailPercent.IsPositive() {
		offset = ref.Mul(d.TrailPercent).Div(decimal.NewFromInt(100))
	}
	if side == domain.SideSell {
		return ref.Sub(offset)
	}
	return ref.Add(offset)
}

// executeMarketLocked fills the order at the current quote, bounded by
// visible liquidity. limit caps the acceptable execution price when
// positive; zero liquidity in the quote means depth is not modeled and the
// full remainder fills.
func (e *Engine) executeMarketLocked(o *domain.Order, limit decimal.Decimal) {
	q, ok := e.quotes.Quote(o.Asset)
	if !ok || !q.Price.IsPositive() {
		return
	}
	price := q.Price
	if limit.IsPositive() {
		if !marketable(o.Side, price, limit) {
			return
		}
	}

	owner := e.ownerLocked(o)
	if owner != o && owner.Status.IsTerminal() {
		// The parent closed after this slice was spawned; its hold is gone
		// and nothing may settle against it.
		e.terminalizeLocked(o, domain.StatusCancelled)
		return
	}

	fillAmount := o.Remaining
	if q.Liquidity.IsPositive() && q.Liquidity.LessThan(fillAmount) {
		fillAmount = q.Liquidity
	}
	if !fillAmount.IsPositive() {
		return
	}

	// A buy settles out of the owner's hold, which was sized from the
	// reference price at placement. When the quote gapped past that price
	// the fill would overdraw into funds other orders reserved; cancel
	// instead of overspending. Cross-multiplied to avoid division rounding.
	if o.Side == domain.SideBuy && owner.RequiredBalance.IsPositive() && owner.Remaining.IsPositive() {
		costWithFee := fillAmount.Mul(price).Mul(decimal.NewFromInt(1).Add(e.feeRate))
		if costWithFee.Mul(owner.Remaining).GreaterThan(owner.RequiredBalance.Mul(fillAmount)) {
			e.log.Warn("quote gapped past reserved funds, cancelling",
				slog.String("order_id", owner.ID),
				slog.String("price", price.String()),
				slog.String("required_balance", owner.RequiredBalance.String()))
			e.teardownChildrenLocked(owner, domain.StatusCancelled)
			e.terminalizeLocked(owner, domain.StatusCancelled)
			infra.GlobalMetrics.RecordOrderCancelled()
			return
		}
	}

	e.settleFillLocked(o, fillAmount, price)
}

// settleFillLocked records the fill, moves the funds, and keeps the backing
// reservation in step with the remaining exposure. Runs entirely under the
// engine lock so no caller can observe a half-settled state.
func (e *Engine) settleFillLocked(o *domain.Order, amount, price decimal.Decimal) {
	now := e.now()
	cost := amount.Mul(price)
	fee := cost.Mul(e.feeRate)

	fill := domain.OrderFill{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Timestamp: now,
		Amount:    amount,
		Price:     price,
		Fee:       fee,
		TxHash:    syntheticTxHash(o.ID, len(o.Fills)),
	}

	// Settlement: the reservation guaranteed the funds; release it, move
	// the money, and re-reserve whatever exposure still rests. The owner
	// of the reservation is the parent for sliced orders.
	owner := e.ownerLocked(o)
	if owner.ReservationID != "" {
		e.ledger.Release(owner.ReservationID)
		owner.ReservationID = ""
	}

	if o.Side == domain.SideBuy {
		must(e.ledger.Apply(o.Quote, cost.Add(fee).Neg()))
		must(e.ledger.Apply(o.Asset, amount))
	} else {
		must(e.ledger.Apply(o.Asset, amount.Neg()))
		must(e.ledger.Apply(o.Quote, cost.Sub(fee)))
	}

	o.RecordFill(fill)
	if o.Remaining.IsPositive() {
		o.Status = domain.StatusPartiallyFilled
	} else {
		o.Status = domain.StatusFilled
	}
	o.VerifyInvariant()

	// A terminal parent stays terminal; its fills are already accounted for
	// and it must not re-enter partially_filled.
	if owner != o && !owner.Status.IsTerminal() {
		owner.RecordFill(fill)
		if owner.Remaining.IsPositive() {
			owner.Status = domain.StatusPartiallyFilled
		}
		owner.VerifyInvariant()
	}

	// Re-reserve the remaining exposure for whichever order owns it.
	if owner.IsOpen() && owner.Remaining.IsPositive() {
		e.reReserveLocked(owner)
	}

	e.log.Info("order filled",
		slog.String("order_id", o.ID),
		slog.String("amount", amount.String()),
		slog.String("price", price.String()),
		slog.String("status", string(o.Status)))
	infra.GlobalMetrics.RecordOrderFilled()

	if e.journal != nil {
		if err := e.journal.SaveFill(domain.FillRecord{
			ID: fill.ID, OrderID: fill.OrderID, Amount: fill.Amount,
			Price: fill.Price, Fee: fill.Fee, TxHash: fill.TxHash, Timestamp: fill.Timestamp,
		}); err != nil {
			e.log.Warn("fill journal write failed", slog.Any("error", err))
		}
	}

	if o.Status == domain.StatusFilled {
		e.archiveLocked(o)
	}
	if o.ParentID != "" {
		e.afterChildFillLocked(o)
	}
}

// reReserveLocked re-establishes the hold for an order's remaining size.
// Failure here means the fill's own settlement consumed the margin the
// remainder needed (price drifted against a buy); the remainder cannot be
// guaranteed, so it is cancelled rather than left unreserved.
func (e *Engine) reReserveLocked(o *domain.Order) {
	if o.Status.IsTerminal() {
		return
	}
	spendAsset := o.Quote
	ref := oneFor(o)
	if !ref.IsPositive() {
		if q, ok := e.quotes.Quote(o.Asset); ok {
			ref = q.Price
		}
	}
	required := o.Remaining.Mul(ref).Mul(decimal.NewFromInt(1).Add(e.feeRate))
	if o.Side == domain.SideSell {
		spendAsset = o.Asset
		required = o.Remaining
	}

	id, err := e.ledger.Reserve(spendAsset, required, domain.ReservationOrder, o.ID)
	if err != nil {
		e.log.Warn("could not re-reserve remainder, cancelling",
			slog.String("order_id", o.ID), slog.Any("error", err))
		e.terminalizeLocked(o, domain.StatusCancelled)
		return
	}
	o.ReservationID = id
	o.RequiredBalance = required
}

// oneFor returns the price used to size a buy-side re-reservation: the
// limit price when the order has one, else the live quote.
func oneFor(o *domain.Order) decimal.Decimal {
	if o.Price.IsPositive() {
		return o.Price
	}
	if o.AverageFillPrice.IsPositive() {
		return o.AverageFillPrice
	}
	return o.StopPrice
}

// teardownChildrenLocked terminalizes every live child of a compound order,
// hidden pending slices included. Children carry no reservations of their
// own, so only status moves. Returns the number of transitions.
func (e *Engine) teardownChildrenLocked(o *domain.Order, status domain.OrderStatus) int {
	n := 0
	now := e.now()
	for _, child := range e.childrenLocked(o) {
		if child.IsOpen() {
			child.Status = status
			child.UpdatedAt = now
			e.archiveLocked(child)
			n++
		}
	}
	return n
}

// ownerLocked resolves the order holding the backing reservation: the parent
// for sliced orders, the order itself otherwise.
func (e *Engine) ownerLocked(o *domain.Order) *domain.Order {
	if o.ParentID != "" {
		if parent, ok := e.orders[o.ParentID]; ok {
			return parent
		}
	}
	return o
}

// terminalizeLocked moves an order to a terminal state and releases any
// hold it still has.
func (e *Engine) terminalizeLocked(o *domain.Order, status domain.OrderStatus) {
	if o.Status.IsTerminal() {
		return
	}
	if o.ReservationID != "" {
		e.ledger.Release(o.ReservationID)
		o.ReservationID = ""
	}
	o.Status = status
	o.UpdatedAt = e.now()
	e.archiveLocked(o)
}

func (e *Engine) archiveLocked(o *domain.Order) {
	if e.journal == nil || !o.Status.IsTerminal() {
		return
	}
	rec := domain.OrderRecord{
		ID:        o.ID,
		Type:      string(o.Type),
		Side:      string(o.Side),
		Status:    string(o.Status),
		Asset:     o.Asset,
		Quote:     o.Quote,
		Amount:    o.Amount,
		Filled:    o.Filled,
		AvgPrice:  o.AverageFillPrice,
		TotalFees: o.TotalFees,
		CreatedAt: o.CreatedAt,
		ClosedAt:  o.UpdatedAt,
	}
	if err := e.journal.ArchiveOrder(rec); err != nil {
		e.log.Warn("order journal write failed", slog.String("order_id", o.ID), slog.Any("error", err))
	}
}

func must(err error) {
	if err != nil {
		panic("SETTLEMENT_FAILURE: " + err.Error())
	}
}

// syntheticTxHash derives a deterministic pseudo transaction hash for a
// simulated fill.
func syntheticTxHash(orderID string, n int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", orderID, n)))
	return "0x" + hex.EncodeToString(sum[:])
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

func snapshot(o *domain.Order) *domain.Order {
	cp := *o
	cp.Fills = append([]domain.OrderFill(nil), o.Fills...)
	if o.Detail != nil {
		cp.Detail = o.Detail.Clone()
	}
	return &cp
}

// ---- Queries ----

// Order returns a snapshot by ID, or nil if unknown.
func (e *Engine) Order(id string) *domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(e.now())

	o, ok := e.orders[id]
	if !ok {
		return nil
	}
	return snapshot(o)
}

// Orders returns snapshots of every order in creation sequence.
func (e *Engine) Orders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(e.now())
	return e.collectLocked(func(*domain.Order) bool { return true })
}

// OrdersByAsset returns snapshots filtered by base symbol.
func (e *Engine) OrdersByAsset(asset string) []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(e.now())
	return e.collectLocked(func(o *domain.Order) bool { return o.Asset == asset })
}

// OrdersByStatus returns snapshots filtered by lifecycle state.
func (e *Engine) OrdersByStatus(status domain.OrderStatus) []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(e.now())
	return e.collectLocked(func(o *domain.Order) bool { return o.Status == status })
}

// OpenOrders returns snapshots of all working orders.
func (e *Engine) OpenOrders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(e.now())
	return e.collectLocked(func(o *domain.Order) bool { return o.IsOpen() })
}

// TodaysOrders returns snapshots of orders created since midnight UTC.
func (e *Engine) TodaysOrders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.sweepLocked(now)

	y, m, d := now.UTC().Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return e.collectLocked(func(o *domain.Order) bool { return !o.CreatedAt.Before(midnight) })
}

func (e *Engine) collectLocked(keep func(*domain.Order) bool) []domain.Order {
	result := make([]domain.Order, 0)
	for _, id := range e.created {
		if o := e.orders[id]; keep(o) {
			result = append(result, *snapshot(o))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (e *Engine) childrenLocked(o *domain.Order) []*domain.Order {
	var children []*domain.Order
	for _, id := range e.created {
		if c := e.orders[id]; c.ParentID == o.ID {
			children = append(children, c)
		}
	}
	return children
}

// ---- Quick-order constructors ----

// MarketBuy builds parameters for an immediate buy at market price.
func MarketBuy(asset string, amount decimal.Decimal) CreateOrderParams {
	return CreateOrderParams{Type: domain.OrderTypeMarket, Side: domain.SideBuy, Asset: asset, Amount: amount}
}

// MarketSell builds parameters for an immediate sell at market price.
func MarketSell(asset string, amount decimal.Decimal) CreateOrderParams {
	return CreateOrderParams{Type: domain.OrderTypeMarket, Side: domain.SideSell, Asset: asset, Amount: amount}
}

// Limit builds parameters for a resting limit order.
func Limit(side domain.OrderSide, asset string, amount, price decimal.Decimal) CreateOrderParams {
	return CreateOrderParams{Type: domain.OrderTypeLimit, Side: side, Asset: asset, Amount: amount, Price: price}
}

// Stop builds parameters for a stop-market order.
func Stop(side domain.OrderSide, asset string, amount, stopPrice decimal.Decimal) CreateOrderParams {
	return CreateOrderParams{Type: domain.OrderTypeStop, Side: side, Asset: asset, Amount: amount, StopPrice: stopPrice}
}
