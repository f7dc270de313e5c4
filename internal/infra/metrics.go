package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ordersPlaced    atomic.Uint64
	ordersFilled    atomic.Uint64
	ordersCancelled atomic.Uint64
	ordersRejected  atomic.Uint64
	reservations    atomic.Uint64
	feedReconnects  atomic.Uint64
	errorsTotal     atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordOrderPlaced records an order accepted by the engine.
func (m *Metrics) RecordOrderPlaced() {
	m.ordersPlaced.Add(1)
}

// RecordOrderFilled records a fill event.
func (m *Metrics) RecordOrderFilled() {
	m.ordersFilled.Add(1)
}

// RecordOrderCancelled records a cancellation.
func (m *Metrics) RecordOrderCancelled() {
	m.ordersCancelled.Add(1)
}

// RecordOrderRejected records a validation or liquidity rejection.
func (m *Metrics) RecordOrderRejected() {
	m.ordersRejected.Add(1)
}

// RecordReservation records a balance hold being taken.
func (m *Metrics) RecordReservation() {
	m.reservations.Add(1)
}

// RecordFeedReconnect records a price-feed reconnection attempt.
func (m *Metrics) RecordFeedReconnect() {
	m.feedReconnects.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	OrdersPlaced      uint64
	OrdersFilled      uint64
	OrdersCancelled   uint64
	OrdersRejected    uint64
	Reservations      uint64
	FeedReconnects    uint64
	ErrorsTotal       uint64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		OrdersPlaced:      m.ordersPlaced.Load(),
		OrdersFilled:      m.ordersFilled.Load(),
		OrdersCancelled:   m.ordersCancelled.Load(),
		OrdersRejected:    m.ordersRejected.Load(),
		Reservations:      m.reservations.Load(),
		FeedReconnects:    m.feedReconnects.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.ordersPlaced.Store(0)
	m.ordersFilled.Store(0)
	m.ordersCancelled.Store(0)
	m.ordersRejected.Store(0)
	m.reservations.Store(0)
	m.feedReconnects.Store(0)
	m.errorsTotal.Store(0)
	m.activeConnections.Store(0)
}
