package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderDetail is the tagged union of type-specific order data. Each advanced
// order type carries its own variant instead of a loose metadata bag, so a
// trailing stop cannot accidentally hold iceberg fields.
type OrderDetail interface {
	// DetailType returns the order type the variant belongs to.
	DetailType() OrderType
	// Clone returns a deep copy, so snapshots never alias live state.
	Clone() OrderDetail
}

// OCODetail links the two legs of a one-cancels-other pair. Each leg is a
// full order; filling either leg cancels its sibling.
type OCODetail struct {
	LimitLegID string          `json:"limit_leg_id"`
	StopLegID  string          `json:"stop_leg_id"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	StopPrice  decimal.Decimal `json:"stop_price"`
}

func (OCODetail) DetailType() OrderType { return OrderTypeOCO }

func (d OCODetail) Clone() OrderDetail { cp := d; return &cp }

// TrailingStopDetail tracks the moving trigger of a trailing stop.
// Exactly one of TrailAmount/TrailPercent is non-zero.
type TrailingStopDetail struct {
	TrailAmount  decimal.Decimal `json:"trail_amount"`
	TrailPercent decimal.Decimal `json:"trail_percent"`
	// ReferencePrice is the best price seen since activation: the high-water
	// mark for sells, the low-water mark for buys.
	ReferencePrice decimal.Decimal `json:"reference_price"`
	TriggerPrice   decimal.Decimal `json:"trigger_price"`
}

func (TrailingStopDetail) DetailType() OrderType { return OrderTypeTrailingStop }

func (d TrailingStopDetail) Clone() OrderDetail { cp := d; return &cp }

// IcebergDetail holds the visible-slice configuration of an iceberg order.
type IcebergDetail struct {
	VisibleSize decimal.Decimal `json:"visible_size"`
	SliceIDs    []string        `json:"slice_ids"`
}

func (IcebergDetail) DetailType() OrderType { return OrderTypeIceberg }

func (d IcebergDetail) Clone() OrderDetail {
	cp := d
	cp.SliceIDs = append([]string(nil), d.SliceIDs...)
	return &cp
}

// SliceState tracks one scheduled child execution of a compound order.
type SliceState struct {
	OrderID    string          `json:"order_id"`
	ScheduleAt time.Time       `json:"schedule_at"`
	Amount     decimal.Decimal `json:"amount"`
	Released   bool            `json:"released"` // Submitted to the engine
}

// TWAPDetail schedules equal slices over a fixed window.
type TWAPDetail struct {
	Duration   time.Duration `json:"duration"`
	SliceCount int           `json:"slice_count"`
	Slices     []SliceState  `json:"slices"`
}

func (TWAPDetail) DetailType() OrderType { return OrderTypeTWAP }

func (d TWAPDetail) Clone() OrderDetail {
	cp := d
	cp.Slices = append([]SliceState(nil), d.Slices...)
	return &cp
}

// VWAPDetail schedules slices weighted by an expected volume curve.
// Weights are normalized fractions summing to 1.
type VWAPDetail struct {
	Duration time.Duration     `json:"duration"`
	Weights  []decimal.Decimal `json:"weights"`
	Slices   []SliceState      `json:"slices"`
}

func (VWAPDetail) DetailType() OrderType { return OrderTypeVWAP }

func (d VWAPDetail) Clone() OrderDetail {
	cp := d
	cp.Weights = append([]decimal.Decimal(nil), d.Weights...)
	cp.Slices = append([]SliceState(nil), d.Slices...)
	return &cp
}
