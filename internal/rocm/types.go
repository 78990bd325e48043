// Package rocm defines the hardware counter query surface the collector
// consumes: agent enumeration, counter metadata, profile construction and
// synchronous device-counting samples. The production implementation binds
// librocprofiler-sdk at runtime; tests use the in-memory fake from rocmtest.
package rocm

// AgentID identifies one agent (device) for the lifetime of the process.
type AgentID uint64

// CounterID is an opaque handle for one hardware counter on one agent.
type CounterID uint64

// ContextID identifies a device counting context.
type ContextID uint64

// ProfileID identifies a materialized counter profile (the hardware
// configuration describing which counters are multiplexed together).
type ProfileID uint64

// DimensionID identifies one decomposition axis of a counter.
type DimensionID uint64

type AgentType int32

const (
	AgentTypeCPU AgentType = iota
	AgentTypeGPU
)

func (t AgentType) String() string {
	switch t {
	case AgentTypeCPU:
		return "cpu"
	case AgentTypeGPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// Agent describes one enumerated device. Index is the 0-based position among
// agents of the same type, used as the card number in reports and metrics.
type Agent struct {
	ID    AgentID
	Type  AgentType
	Index int
}

// Dimension is one decomposition axis of a counter, e.g. {Name: "SE",
// InstanceCount: 4}. A counter's total instance count is the product of all
// of its dimension instance counts.
type Dimension struct {
	ID            DimensionID
	Name          string
	InstanceCount uint64
}

// Record is one hardware-produced counter reading. ID encodes both the
// counter handle and the dimension instance; a zero ID marks an empty slot
// and must be skipped by consumers. Records are only meaningful within the
// sample call that produced them.
type Record struct {
	ID    uint64
	Value float64
}
