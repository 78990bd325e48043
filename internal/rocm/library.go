package rocm

// ProfileProvider supplies the profile currently attached to a counting
// context. The hardware layer pulls the active profile through this
// interface every time the context is (re)started; a collector registers
// itself once at construction and changes which profile is active before
// each sample.
type ProfileProvider interface {
	ActiveProfile() (ProfileID, bool)
}

// Library is the counter query and sampling surface of the profiling
// runtime. Implementations are not required to be safe for concurrent use
// of a single context; distinct contexts are independent.
type Library interface {
	// AvailableAgents enumerates every agent on the system, CPUs included.
	// Callers filter by Agent.Type.
	AvailableAgents() ([]Agent, error)

	// SupportedCounters lists the counters the agent can sample, keyed by
	// name. The query is expensive; callers should cache the result for the
	// lifetime of the agent.
	SupportedCounters(agent AgentID) (map[string]CounterID, error)

	// CounterDimensions returns the ordered decomposition axes of a counter.
	// Expensive; callers should cache per counter handle.
	CounterDimensions(counter CounterID) ([]Dimension, error)

	// RecordCounterID recovers the counter handle a record belongs to.
	RecordCounterID(recordID uint64) (CounterID, error)

	// RecordDimensionPosition returns a record's coordinate along one of its
	// counter's axes.
	RecordDimensionPosition(recordID uint64, dim DimensionID) (uint64, error)

	// CreateContext creates an inactive device counting context.
	CreateContext() (ContextID, error)

	// ConfigureDeviceCounting binds a context to an agent and registers the
	// provider the runtime will pull the active profile from.
	ConfigureDeviceCounting(ctx ContextID, agent AgentID, provider ProfileProvider) error

	// CreateProfile materializes a hardware profile from a set of counter
	// handles. Profiles live until the process exits.
	CreateProfile(agent AgentID, counters []CounterID) (ProfileID, error)

	// StartContext starts counting. Starting an already started context is
	// a no-op, which lets collectors re-assert the active profile on every
	// sample without tracking start state.
	StartContext(ctx ContextID) error

	// StopContext halts counting. Called once at teardown, not per sample.
	StopContext(ctx ContextID) error

	// SampleCounters synchronously reads the active profile's counters into
	// buf and returns the number of records written, which is at most
	// len(buf). Slots past the returned count are untouched.
	SampleCounters(ctx ContextID, buf []Record) (int, error)
}
