// Package rocmtest provides an in-memory rocm.Library for collector tests:
// a configurable set of agents and counters with deterministic, free-running
// values, plus hooks to inject hardware failures and simulate an external
// profiler resetting the counters.
package rocmtest

import (
	"sync"

	"github.com/AMDResearch/pmc-collector/internal/rocm"
)

// RecordID builds the record identifier the fake emits for one counter
// instance: the counter handle in the high 32 bits, the flattened instance
// index in the low 32 bits.
func RecordID(counter rocm.CounterID, instance uint64) uint64 {
	return uint64(counter)<<32 | (instance & 0xffffffff)
}

type fakeContext struct {
	agent    rocm.AgentID
	provider rocm.ProfileProvider
	started  bool
}

// Fake implements rocm.Library. All methods are safe for concurrent use so
// parallel multi-device polling can be exercised in tests.
type Fake struct {
	mu sync.Mutex

	agents       []rocm.Agent
	counters     map[rocm.AgentID]map[string]rocm.CounterID
	counterAgent map[rocm.CounterID]rocm.AgentID
	dims         map[rocm.CounterID][]rocm.Dimension

	totals map[rocm.CounterID]float64
	steps  map[rocm.CounterID]float64

	contexts map[rocm.ContextID]*fakeContext
	profiles map[rocm.ProfileID][]rocm.CounterID

	failOps   map[string]int32
	shortfall int

	nextAgent   uint64
	nextCounter uint64
	nextDim     uint64
	nextContext uint64
	nextProfile uint64
	gpuCount    int
}

func NewFake() *Fake {
	return &Fake{
		counters:     make(map[rocm.AgentID]map[string]rocm.CounterID),
		counterAgent: make(map[rocm.CounterID]rocm.AgentID),
		dims:         make(map[rocm.CounterID][]rocm.Dimension),
		totals:       make(map[rocm.CounterID]float64),
		steps:        make(map[rocm.CounterID]float64),
		contexts:     make(map[rocm.ContextID]*fakeContext),
		profiles:     make(map[rocm.ProfileID][]rocm.CounterID),
		failOps:      make(map[string]int32),
	}
}

// AddAgent registers one device. GPU agents get consecutive card indices.
func (f *Fake) AddAgent(typ rocm.AgentType) rocm.Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextAgent++
	agent := rocm.Agent{ID: rocm.AgentID(f.nextAgent), Type: typ}
	if typ == rocm.AgentTypeGPU {
		agent.Index = f.gpuCount
		f.gpuCount++
	}
	f.agents = append(f.agents, agent)
	f.counters[agent.ID] = make(map[string]rocm.CounterID)
	return agent
}

// AddCounter registers a counter on an agent. Dimension IDs are assigned by
// the fake; pass dimensions with Name and InstanceCount set.
func (f *Fake) AddCounter(agent rocm.AgentID, name string, dims ...rocm.Dimension) rocm.CounterID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCounter++
	id := rocm.CounterID(f.nextCounter)
	f.counters[agent][name] = id
	f.counterAgent[id] = agent
	out := make([]rocm.Dimension, len(dims))
	for i, d := range dims {
		f.nextDim++
		out[i] = rocm.Dimension{ID: rocm.DimensionID(f.nextDim), Name: d.Name, InstanceCount: d.InstanceCount}
	}
	f.dims[id] = out
	return id
}

// SetStep makes a counter free-running: every sample advances its
// accumulated total by step before reporting.
func (f *Fake) SetStep(agent rocm.AgentID, name string, step float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[f.counters[agent][name]] = step
}

// SetTotal overwrites a counter's accumulated total.
func (f *Fake) SetTotal(agent rocm.AgentID, name string, total float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totals[f.counters[agent][name]] = total
}

// ResetCounters zeroes every accumulated total on the agent, the way a
// competing profiling session resets the hardware counters.
func (f *Fake) ResetCounters(agent rocm.AgentID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.counters[agent] {
		f.totals[id] = 0
	}
}

// FailOp makes every subsequent call to the named operation return a
// StatusError with the given code.
func (f *Fake) FailOp(op string, code int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps[op] = code
}

// SetShortfall drops n records from the tail of every sample, so samples
// return fewer records than the profile's expected count.
func (f *Fake) SetShortfall(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shortfall = n
}

func (f *Fake) fail(op string) error {
	if code, ok := f.failOps[op]; ok {
		return &rocm.StatusError{Op: op, Code: code, Status: "injected failure"}
	}
	return nil
}

func (f *Fake) AvailableAgents() ([]rocm.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("AvailableAgents"); err != nil {
		return nil, err
	}
	out := make([]rocm.Agent, len(f.agents))
	copy(out, f.agents)
	return out, nil
}

func (f *Fake) SupportedCounters(agent rocm.AgentID) (map[string]rocm.CounterID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("SupportedCounters"); err != nil {
		return nil, err
	}
	byName, ok := f.counters[agent]
	if !ok {
		return nil, rocm.ErrNotFound
	}
	out := make(map[string]rocm.CounterID, len(byName))
	for name, id := range byName {
		out[name] = id
	}
	return out, nil
}

func (f *Fake) CounterDimensions(counter rocm.CounterID) ([]rocm.Dimension, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CounterDimensions"); err != nil {
		return nil, err
	}
	dims, ok := f.dims[counter]
	if !ok {
		return nil, rocm.ErrNotFound
	}
	out := make([]rocm.Dimension, len(dims))
	copy(out, dims)
	return out, nil
}

func (f *Fake) RecordCounterID(recordID uint64) (rocm.CounterID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counter := rocm.CounterID(recordID >> 32)
	if _, ok := f.dims[counter]; !ok {
		return 0, rocm.ErrNotFound
	}
	return counter, nil
}

func (f *Fake) RecordDimensionPosition(recordID uint64, dim rocm.DimensionID) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counter := rocm.CounterID(recordID >> 32)
	dims, ok := f.dims[counter]
	if !ok {
		return 0, rocm.ErrNotFound
	}
	instance := recordID & 0xffffffff
	// Row-major decomposition, last axis fastest.
	stride := uint64(1)
	for i := len(dims) - 1; i >= 0; i-- {
		if dims[i].ID == dim {
			return (instance / stride) % dims[i].InstanceCount, nil
		}
		stride *= dims[i].InstanceCount
	}
	return 0, rocm.ErrNotFound
}

func (f *Fake) CreateContext() (rocm.ContextID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateContext"); err != nil {
		return 0, err
	}
	f.nextContext++
	ctx := rocm.ContextID(f.nextContext)
	f.contexts[ctx] = &fakeContext{}
	return ctx, nil
}

func (f *Fake) ConfigureDeviceCounting(ctx rocm.ContextID, agent rocm.AgentID, provider rocm.ProfileProvider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ConfigureDeviceCounting"); err != nil {
		return err
	}
	fc, ok := f.contexts[ctx]
	if !ok {
		return rocm.ErrNotFound
	}
	fc.agent = agent
	fc.provider = provider
	return nil
}

func (f *Fake) CreateProfile(agent rocm.AgentID, counters []rocm.CounterID) (rocm.ProfileID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateProfile"); err != nil {
		return 0, err
	}
	for _, c := range counters {
		if f.counterAgent[c] != agent {
			return 0, &rocm.StatusError{Op: "CreateProfile", Code: 1, Status: "counter does not belong to agent"}
		}
	}
	f.nextProfile++
	id := rocm.ProfileID(f.nextProfile)
	f.profiles[id] = append([]rocm.CounterID(nil), counters...)
	return id, nil
}

func (f *Fake) StartContext(ctx rocm.ContextID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("StartContext"); err != nil {
		return err
	}
	fc, ok := f.contexts[ctx]
	if !ok {
		return rocm.ErrNotFound
	}
	fc.started = true
	return nil
}

func (f *Fake) StopContext(ctx rocm.ContextID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("StopContext"); err != nil {
		return err
	}
	fc, ok := f.contexts[ctx]
	if !ok {
		return rocm.ErrNotFound
	}
	fc.started = false
	return nil
}

// Started reports whether the context is currently counting.
func (f *Fake) Started(ctx rocm.ContextID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	fc, ok := f.contexts[ctx]
	return ok && fc.started
}

func (f *Fake) SampleCounters(ctx rocm.ContextID, buf []rocm.Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("SampleCounters"); err != nil {
		return 0, err
	}
	fc, ok := f.contexts[ctx]
	if !ok {
		return 0, rocm.ErrNotFound
	}
	if !fc.started || fc.provider == nil {
		return 0, &rocm.StatusError{Op: "SampleCounters", Code: 2, Status: "context not started"}
	}
	profile, active := fc.provider.ActiveProfile()
	if !active {
		return 0, &rocm.StatusError{Op: "SampleCounters", Code: 3, Status: "no active profile"}
	}

	n := 0
	for _, counter := range f.profiles[profile] {
		f.totals[counter] += f.steps[counter]
		total := f.totals[counter]
		instances := uint64(1)
		for _, d := range f.dims[counter] {
			instances *= d.InstanceCount
		}
		// The accumulated total is reported on instance 0; the remaining
		// instances read zero so that per-name sums equal the total.
		for i := uint64(0); i < instances && n < len(buf); i++ {
			value := 0.0
			if i == 0 {
				value = total
			}
			buf[n] = rocm.Record{ID: RecordID(counter, i), Value: value}
			n++
		}
	}
	if f.shortfall > 0 {
		n -= f.shortfall
		if n < 0 {
			n = 0
		}
	}
	return n, nil
}
