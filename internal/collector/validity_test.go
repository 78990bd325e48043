package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorFirstObservationSeedsBaseline(t *testing.T) {
	m := NewMonitor("")
	assert.Equal(t, DefaultReferenceCounter, m.Counter())
	assert.True(t, m.Valid())

	// No previous value: nothing to compare against, even a zero reading.
	m.Observe(1, 0)
	assert.True(t, m.Valid())
}

func TestMonitorMonotonicStaysValid(t *testing.T) {
	m := NewMonitor("GRBM_COUNT")
	m.Observe(1, 100)
	m.Observe(1, 250)
	m.Observe(1, 250) // equal is fine, only strict decreases invalidate
	m.Observe(1, 1000)
	assert.True(t, m.Valid())
}

func TestMonitorDecreaseIsTerminal(t *testing.T) {
	m := NewMonitor("GRBM_COUNT")
	m.Observe(1, 500)
	m.Observe(1, 120)
	require.False(t, m.Valid())

	// Counting forward again never restores validity within the run.
	m.Observe(1, 900)
	m.Observe(1, 1800)
	assert.False(t, m.Valid())
}

func TestMonitorTracksDevicesIndependently(t *testing.T) {
	m := NewMonitor("GRBM_COUNT")
	m.Observe(1, 100)
	m.Observe(2, 100)
	m.Observe(1, 200)
	assert.True(t, m.Valid())

	// Device 2 going backwards invalidates the whole run even though
	// device 1 is still monotonic.
	m.Observe(2, 50)
	assert.False(t, m.Valid())
}
