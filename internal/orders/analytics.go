package orders

import (
	"time"

	"etodesk/internal/domain"

	"github.com/shopspring/decimal"
)

// Efficiency summarizes how the session's orders performed.
type Efficiency struct {
	TotalOrders     int `json:"total_orders"`
	FilledOrders    int `json:"filled_orders"`
	CancelledOrders int `json:"cancelled_orders"`
	// SuccessRate is filled / (filled + cancelled), in percent. Zero when
	// no order has completed either way.
	SuccessRate     decimal.Decimal `json:"success_rate"`
	AverageFillTime time.Duration   `json:"average_fill_time"`
}

// Efficiency recomputes the success rate and mean fill time over the whole
// order table. Single O(n) pass, no state mutated.
func (e *Engine) Efficiency() Efficiency {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stats Efficiency
	var fillTimeSum time.Duration

	for _, id := range e.created {
		o := e.orders[id]
		if o.ParentID != "" {
			continue // Slices are accounted through their parents
		}
		stats.TotalOrders++
		switch o.Status {
		case domain.StatusFilled:
			stats.FilledOrders++
			fillTimeSum += o.UpdatedAt.Sub(o.CreatedAt)
		case domain.StatusCancelled:
			stats.CancelledOrders++
		}
	}

	completed := stats.FilledOrders + stats.CancelledOrders
	if completed > 0 {
		stats.SuccessRate = decimal.NewFromInt(int64(stats.FilledOrders)).
			Div(decimal.NewFromInt(int64(completed))).
			Mul(decimal.NewFromInt(100)).Round(2)
	}
	if stats.FilledOrders > 0 {
		stats.AverageFillTime = fillTimeSum / time.Duration(stats.FilledOrders)
	}
	return stats
}
