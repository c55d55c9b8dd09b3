package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	zero := m.Snapshot()
	assert.Zero(t, zero.MinLatency)
	assert.Zero(t, zero.AvgLatency)

	m.RecordRequest()
	m.RecordRequest()
	m.RecordNotification()
	m.RecordAnswer(10*time.Millisecond, false)
	m.RecordAnswer(30*time.Millisecond, true)
	m.RecordAbandoned()

	s := m.Snapshot()
	assert.EqualValues(t, 2, s.Requests)
	assert.EqualValues(t, 1, s.Notifications)
	assert.EqualValues(t, 2, s.Answered)
	assert.EqualValues(t, 1, s.Abandoned)
	assert.EqualValues(t, 1, s.Empty)
	assert.Equal(t, 20*time.Millisecond, s.AvgLatency)
	assert.Equal(t, 10*time.Millisecond, s.MinLatency)
	assert.Equal(t, 30*time.Millisecond, s.MaxLatency)
	assert.Equal(t, 30*time.Millisecond, s.LastLatency)
}
