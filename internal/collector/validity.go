package collector

import (
	"github.com/AMDResearch/pmc-collector/internal/rocm"
	"github.com/AMDResearch/pmc-collector/pkg/logutil"
	"go.uber.org/zap"
)

// DefaultReferenceCounter is the free-running counter used to detect
// competing profiling sessions. GRBM_COUNT accumulates monotonically on
// every supported GPU family; it only moves backwards when another process
// resets or remultiplexes the hardware counters.
const DefaultReferenceCounter = "GRBM_COUNT"

// Monitor tracks session validity across repeated polls. Each device is
// accounted for independently: any device whose reference counter total
// strictly decreases between consecutive samples marks the whole run
// invalid, and invalidity is terminal for the run.
type Monitor struct {
	counter   string
	baselines map[rocm.AgentID]float64
	valid     bool
}

func NewMonitor(counter string) *Monitor {
	if counter == "" {
		counter = DefaultReferenceCounter
	}
	return &Monitor{
		counter:   counter,
		baselines: make(map[rocm.AgentID]float64),
		valid:     true,
	}
}

// Counter returns the reference counter name the monitor watches.
func (m *Monitor) Counter() string { return m.counter }

// Observe records the reference counter total from one device's latest
// sample. The first observation for a device seeds its baseline; afterwards
// a strict decrease flips the session to invalid.
func (m *Monitor) Observe(agent rocm.AgentID, total float64) {
	previous, seen := m.baselines[agent]
	m.baselines[agent] = total
	if !seen || total >= previous {
		return
	}
	if m.valid {
		logutil.GetLogger().Warn("invalid session: reference counter went backwards",
			zap.String("counter", m.counter),
			zap.Uint64("agent", uint64(agent)),
			zap.Float64("previous", previous),
			zap.Float64("current", total))
	}
	m.valid = false
}

// Valid reports whether the session is still trustworthy. Never recovers
// within a run.
func (m *Monitor) Valid() bool { return m.valid }
