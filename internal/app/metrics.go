package app

import (
	"sync/atomic"
	"time"
)

// Metrics tracks north-side request timing. It is safe for concurrent use.
type Metrics struct {
	requests      atomic.Uint64
	notifications atomic.Uint64

	// Round trips of blocking requests.
	answered   atomic.Uint64
	abandoned  atomic.Uint64
	totalNs    atomic.Int64
	minNs      atomic.Int64
	maxNs      atomic.Int64
	lastNs     atomic.Int64
	emptyCount atomic.Uint64

	startTime time.Time
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Uptime        time.Duration
	Requests      uint64
	Notifications uint64
	Answered      uint64
	Abandoned     uint64
	Empty         uint64
	AvgLatency    time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
	LastLatency   time.Duration
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{startTime: time.Now()}
	// Initialize min to max int64 so the first sample is smaller.
	m.minNs.Store(1<<63 - 1)
	return m
}

// RecordRequest counts a dispatched request.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordNotification counts a notification.
func (m *Metrics) RecordNotification() {
	m.notifications.Add(1)
}

// RecordAnswer records a blocking request that received its response.
func (m *Metrics) RecordAnswer(d time.Duration, empty bool) {
	ns := d.Nanoseconds()
	m.answered.Add(1)
	m.totalNs.Add(ns)
	m.lastNs.Store(ns)
	if empty {
		m.emptyCount.Add(1)
	}

	for {
		old := m.minNs.Load()
		if ns >= old || m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordAbandoned records a blocking request whose caller gave up.
func (m *Metrics) RecordAbandoned() {
	m.abandoned.Add(1)
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	answered := m.answered.Load()
	var avg int64
	if answered > 0 {
		avg = m.totalNs.Load() / int64(answered)
	}
	minNs := m.minNs.Load()
	if minNs == 1<<63-1 {
		minNs = 0
	}
	return MetricsSnapshot{
		Uptime:        time.Since(m.startTime),
		Requests:      m.requests.Load(),
		Notifications: m.notifications.Load(),
		Answered:      answered,
		Abandoned:     m.abandoned.Load(),
		Empty:         m.emptyCount.Load(),
		AvgLatency:    time.Duration(avg),
		MinLatency:    time.Duration(minNs),
		MaxLatency:    time.Duration(m.maxNs.Load()),
		LastLatency:   time.Duration(m.lastNs.Load()),
	}
}
