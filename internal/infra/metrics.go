package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	cacheHits    atomic.Uint64
	cacheMisses  atomic.Uint64
	rpcCalls     atomic.Uint64
	rpcErrors    atomic.Uint64
	wsReconnects atomic.Uint64
	ordersPlaced atomic.Uint64

	// Gauges
	activeSubscriptions atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() { m.cacheHits.Add(1) }

// RecordCacheMiss records a cache miss (a loader invocation).
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Add(1) }

// RecordRPCCall records a transport round-trip.
func (m *Metrics) RecordRPCCall() { m.rpcCalls.Add(1) }

// RecordRPCError records a failed transport call.
func (m *Metrics) RecordRPCError() { m.rpcErrors.Add(1) }

// RecordWSReconnect records a websocket reconnection attempt.
func (m *Metrics) RecordWSReconnect() { m.wsReconnects.Add(1) }

// RecordOrderPlaced records a successfully submitted order.
func (m *Metrics) RecordOrderPlaced() { m.ordersPlaced.Add(1) }

// SetActiveSubscriptions sets the current account subscription count.
func (m *Metrics) SetActiveSubscriptions(count int32) {
	m.activeSubscriptions.Store(count)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CacheHits           uint64
	CacheMisses         uint64
	RPCCalls            uint64
	RPCErrors           uint64
	WSReconnects        uint64
	OrdersPlaced        uint64
	ActiveSubscriptions int32
	Timestamp           time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		CacheHits:           m.cacheHits.Load(),
		CacheMisses:         m.cacheMisses.Load(),
		RPCCalls:            m.rpcCalls.Load(),
		RPCErrors:           m.rpcErrors.Load(),
		WSReconnects:        m.wsReconnects.Load(),
		OrdersPlaced:        m.ordersPlaced.Load(),
		ActiveSubscriptions: m.activeSubscriptions.Load(),
		Timestamp:           time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.rpcCalls.Store(0)
	m.rpcErrors.Store(0)
	m.wsReconnects.Store(0)
	m.ordersPlaced.Store(0)
	m.activeSubscriptions.Store(0)
}
