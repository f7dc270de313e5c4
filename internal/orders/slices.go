package orders

import (
	"log/slog"
	"time"

	"etodesk/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Compound orders decompose into a parent that tracks the aggregate and N
// child slices that do the executing. Children carry no reservation of
// their own; the parent's hold backs the whole remaining exposure, and a
// child's fill always propagates upward.

func (e *Engine) newChildLocked(parent *domain.Order, typ domain.OrderType, amount, price, stop decimal.Decimal, released bool) *domain.Order {
	now := e.now()
	child := &domain.Order{
		ID:          uuid.NewString(),
		UserID:      parent.UserID,
		ParentID:    parent.ID,
		Type:        typ,
		Side:        parent.Side,
		Status:      domain.StatusPending,
		Asset:       parent.Asset,
		Quote:       parent.Quote,
		Amount:      amount,
		Remaining:   amount,
		Price:       price,
		StopPrice:   stop,
		TimeInForce: parent.TimeInForce,
		Priority:    parent.Priority,
		ExpiresAt:   parent.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if released {
		child.Status = domain.StatusOpen
	}
	e.insertLocked(child)
	return child
}

// buildOCOLegsLocked creates the two legs of a one-cancels-other order.
// Both rest immediately; the first leg to trade cancels its sibling.
func (e *Engine) buildOCOLegsLocked(parent *domain.Order, p CreateOrderParams) {
	limitLeg := e.newChildLocked(parent, domain.OrderTypeLimit, p.Amount, p.OCOLimitPrice, decimal.Zero, true)
	stopLeg := e.newChildLocked(parent, domain.OrderTypeStop, p.Amount, decimal.Zero, p.OCOStopPrice, true)

	parent.Detail = &domain.OCODetail{
		LimitLegID: limitLeg.ID,
		StopLegID:  stopLeg.ID,
		LimitPrice: p.OCOLimitPrice,
		StopPrice:  p.OCOStopPrice,
	}

	if q, ok := e.quotes.Quote(parent.Asset); ok {
		e.tryTriggerLocked(limitLeg, q)
		if stopLeg.IsOpen() {
			e.tryTriggerLocked(stopLeg, q)
		}
	}
}

// buildIcebergSlicesLocked splits the order into visible-size limit slices.
// Only one slice rests at a time; the next is released when the current one
// fills.
func (e *Engine) buildIcebergSlicesLocked(parent *domain.Order, p CreateOrderParams) {
	visible := p.VisibleSize
	if !visible.IsPositive() || visible.GreaterThan(p.Amount) {
		visible = p.Amount
	}

	detail := &domain.IcebergDetail{VisibleSize: visible}
	remaining := p.Amount
	first := true
	for remaining.IsPositive() {
		size := visible
		if size.GreaterThan(remaining) {
			size = remaining
		}
		child := e.newChildLocked(parent, domain.OrderTypeLimit, size, p.Price, decimal.Zero, first)
		detail.SliceIDs = append(detail.SliceIDs, child.ID)
		remaining = remaining.Sub(size)
		first = false
	}
	parent.Detail = detail

	if q, ok := e.quotes.Quote(parent.Asset); ok {
		if visibleSlice := e.orders[detail.SliceIDs[0]]; visibleSlice.IsOpen() {
			e.tryTriggerLocked(visibleSlice, q)
		}
	}
}

// buildTWAPSlicesLocked schedules equal market slices across the window.
func (e *Engine) buildTWAPSlicesLocked(parent *domain.Order, p CreateOrderParams) {
	parent.ExpiresAt = parent.CreatedAt.Add(p.Duration)
	interval := p.Duration / time.Duration(p.SliceCount)
	per := p.Amount.Div(decimal.NewFromInt(int64(p.SliceCount))).Truncate(12)

	detail := &domain.TWAPDetail{Duration: p.Duration, SliceCount: p.SliceCount}
	allocated := decimal.Zero
	for i := 0; i < p.SliceCount; i++ {
		size := per
		if i == p.SliceCount-1 {
			size = p.Amount.Sub(allocated) // Remainder absorbs truncation dust
		}
		allocated = allocated.Add(size)

		child := e.newChildLocked(parent, domain.OrderTypeMarket, size, decimal.Zero, decimal.Zero, false)
		detail.Slices = append(detail.Slices, domain.SliceState{
			OrderID:    child.ID,
			ScheduleAt: parent.CreatedAt.Add(time.Duration(i) * interval),
			Amount:     size,
		})
	}
	parent.Detail = detail

	// The first slice is due immediately.
	e.releaseDueSlicesLocked(parent, e.now())
}

// buildVWAPSlicesLocked schedules slices weighted by the expected volume
// curve, spaced evenly across the window.
func (e *Engine) buildVWAPSlicesLocked(parent *domain.Order, p CreateOrderParams) {
	parent.ExpiresAt = parent.CreatedAt.Add(p.Duration)
	interval := p.Duration / time.Duration(len(p.Weights))

	total := decimal.Zero
	for _, w := range p.Weights {
		total = total.Add(w)
	}
	if !total.IsPositive() {
		total = decimal.NewFromInt(1)
	}

	detail := &domain.VWAPDetail{Duration: p.Duration, Weights: p.Weights}
	allocated := decimal.Zero
	for i, w := range p.Weights {
		size := p.Amount.Mul(w).Div(total).Truncate(12)
		if i == len(p.Weights)-1 {
			size = p.Amount.Sub(allocated)
		}
		allocated = allocated.Add(size)

		child := e.newChildLocked(parent, domain.OrderTypeMarket, size, decimal.Zero, decimal.Zero, false)
		detail.Slices = append(detail.Slices, domain.SliceState{
			OrderID:    child.ID,
			ScheduleAt: parent.CreatedAt.Add(time.Duration(i) * interval),
			Amount:     size,
		})
	}
	parent.Detail = detail

	e.releaseDueSlicesLocked(parent, e.now())
}

// releaseDueSlicesLocked opens and executes every scheduled slice whose
// time has come. Returns the number of slices released.
func (e *Engine) releaseDueSlicesLocked(parent *domain.Order, now time.Time) int {
	var slices []domain.SliceState
	switch d := parent.Detail.(type) {
	case *domain.TWAPDetail:
		slices = d.Slices
	case *domain.VWAPDetail:
		slices = d.Slices
	default:
		return 0
	}

	released := 0
	for i := range slices {
		if slices[i].Released || now.Before(slices[i].ScheduleAt) {
			continue
		}
		child, ok := e.orders[slices[i].OrderID]
		if !ok || child.Status != domain.StatusPending {
			slices[i].Released = true
			continue
		}
		slices[i].Released = true
		child.Status = domain.StatusOpen
		child.UpdatedAt = now
		released++
		e.executeMarketLocked(child, decimal.Zero)
	}
	return released
}

// afterChildFillLocked runs the compound-order bookkeeping once a child has
// traded: OCO sibling cancellation, iceberg slice rotation, and parent
// finalization.
func (e *Engine) afterChildFillLocked(child *domain.Order) {
	parent, ok := e.orders[child.ParentID]
	if !ok {
		return
	}

	switch d := parent.Detail.(type) {
	case *domain.OCODetail:
		// First trade on either leg kills the sibling.
		siblingID := d.StopLegID
		if child.ID == siblingID {
			siblingID = d.LimitLegID
		}
		if sibling, ok := e.orders[siblingID]; ok && sibling.IsOpen() {
			sibling.Status = domain.StatusCancelled
			sibling.UpdatedAt = e.now()
			e.archiveLocked(sibling)
			e.log.Info("oco sibling cancelled",
				slog.String("parent_id", parent.ID), slog.String("leg_id", sibling.ID))
		}

	case *domain.IcebergDetail:
		// Rotate to the next hidden slice once the visible one is done.
		if child.Status == domain.StatusFilled {
			for _, id := range d.SliceIDs {
				next, ok := e.orders[id]
				if !ok || next.Status != domain.StatusPending {
					continue
				}
				next.Status = domain.StatusOpen
				next.UpdatedAt = e.now()
				if q, ok := e.quotes.Quote(next.Asset); ok {
					e.tryTriggerLocked(next, q)
				}
				break
			}
		}
	}

	e.finalizeParentLocked(parent.ID)
}

// finalizeParentLocked closes a compound parent once every child is
// terminal: fully traded parents finish filled; a remainder left by expired
// children finishes expired, by cancelled children cancelled.
func (e *Engine) finalizeParentLocked(parentID string) {
	parent, ok := e.orders[parentID]
	if !ok || parent.Status.IsTerminal() {
		return
	}

	sawExpired := false
	for _, child := range e.childrenLocked(parent) {
		if child.IsOpen() || child.Status == domain.StatusPending {
			return
		}
		if child.Status == domain.StatusExpired {
			sawExpired = true
		}
	}

	status := domain.StatusFilled
	if parent.Remaining.IsPositive() {
		status = domain.StatusCancelled
		if sawExpired {
			status = domain.StatusExpired
		}
	}
	e.terminalizeLocked(parent, status)
	e.log.Info("compound order finalized",
		slog.String("order_id", parent.ID), slog.String("status", string(parent.Status)))
}
