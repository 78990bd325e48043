//go:build linux

package rocm

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

// DefaultLibrary is the soname of the rocprofiler-sdk runtime. Resolved
// through the regular dynamic loader search path; override with an absolute
// path when ROCm is installed outside the default locations.
const DefaultLibrary = "librocprofiler-sdk.so"

const (
	statusSuccess = 0

	agentInfoVersion0   = 0
	counterInfoVersion0 = 0
	counterFlagNone     = 0
)

// rocprofiler binds the subset of librocprofiler-sdk the collector needs.
// All handles cross the boundary as plain uint64 values; versioned structs
// are mirrored only as far as the fields we consume.
type rocprofiler struct {
	getStatusString func(int32) string

	queryAvailableAgents          func(uint32, uintptr, uintptr, uintptr) int32
	iterateAgentSupportedCounters func(uint64, uintptr, uintptr) int32
	queryCounterInfo              func(uint64, uint32, unsafe.Pointer) int32
	iterateCounterDimensions      func(uint64, uintptr, uintptr) int32
	queryRecordCounterID          func(uint64, *uint64) int32
	queryRecordDimensionPosition  func(uint64, uint64, *uint64) int32

	createContext                 func(*uint64) int32
	configureDeviceCountingSvc    func(uint64, uint64, uint64, uintptr, uintptr) int32
	createProfileConfig           func(uint64, *uint64, uintptr, *uint64) int32
	startContext                  func(uint64) int32
	stopContext                   func(uint64) int32
	sampleDeviceCountingSvc       func(uint64, uint64, int32, unsafe.Pointer, *uint64) int32
	forceConfigure                func(uintptr) int32

	started map[ContextID]bool
}

// Leading fields of rocprofiler_agent_v0_t. The full struct carries dozens
// of topology fields; only the versioned header is consumed here.
type agentHeader struct {
	size uint64
	id   uint64
	typ  int32
	_    int32
}

// Mirror of rocprofiler_counter_info_v0_t up through the name pointer.
type counterInfoV0 struct {
	id          uint64
	name        *byte
	description *byte
	block       *byte
	expression  *byte
}

// Mirror of rocprofiler_record_dimension_info_t.
type dimensionInfo struct {
	name         *byte
	instanceSize uint64
	id           uint64
}

// Mirror of rocprofiler_record_counter_t.
type counterRecord struct {
	id         uint64
	value      float64
	dispatchID uint64
	agentID    uint64
}

// toolConfigureResult mirrors rocprofiler_tool_configure_result_t. Kept in a
// package variable so the pointer handed to the runtime stays valid for the
// process lifetime.
type toolConfigureResult struct {
	size       uint64
	initialize uintptr
	finalize   uintptr
	toolData   uintptr
}

var (
	clientName      = []byte("pmc-collector\x00")
	configureResult toolConfigureResult
)

// Open loads the rocprofiler runtime, binds its symbols and forces tool
// configuration so that counting services can be set up outside the usual
// ROCP_TOOL_LIBRARIES injection path. A load or configuration failure is
// fatal for the process: without the runtime no sampling can proceed.
func Open(path string) (Library, error) {
	if path == "" {
		path = DefaultLibrary
	}
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("rocm: loading %s: %w", path, err)
	}

	lib := &rocprofiler{
		started: make(map[ContextID]bool),
	}
	for _, sym := range []struct {
		name string
		fptr any
	}{
		{"rocprofiler_get_status_string", &lib.getStatusString},
		{"rocprofiler_query_available_agents", &lib.queryAvailableAgents},
		{"rocprofiler_iterate_agent_supported_counters", &lib.iterateAgentSupportedCounters},
		{"rocprofiler_query_counter_info", &lib.queryCounterInfo},
		{"rocprofiler_iterate_counter_dimensions", &lib.iterateCounterDimensions},
		{"rocprofiler_query_record_counter_id", &lib.queryRecordCounterID},
		{"rocprofiler_query_record_dimension_position", &lib.queryRecordDimensionPosition},
		{"rocprofiler_create_context", &lib.createContext},
		{"rocprofiler_configure_device_counting_service", &lib.configureDeviceCountingSvc},
		{"rocprofiler_create_profile_config", &lib.createProfileConfig},
		{"rocprofiler_start_context", &lib.startContext},
		{"rocprofiler_stop_context", &lib.stopContext},
		{"rocprofiler_sample_device_counting_service", &lib.sampleDeviceCountingSvc},
		{"rocprofiler_force_configure", &lib.forceConfigure},
	} {
		purego.RegisterLibFunc(sym.fptr, handle, sym.name)
	}

	if err := lib.configure(); err != nil {
		return nil, err
	}
	return lib, nil
}

func (l *rocprofiler) check(op string, status int32) error {
	if status == statusSuccess {
		return nil
	}
	return &StatusError{Op: op, Code: status, Status: l.getStatusString(status)}
}

func (l *rocprofiler) configure() error {
	initCb := purego.NewCallback(func(fini uintptr, toolData uintptr) int32 {
		return 0
	})
	finiCb := purego.NewCallback(func(toolData uintptr) {})

	configureCb := purego.NewCallback(func(version uint32, runtimeVersion uintptr, priority uint32, clientID uintptr) uintptr {
		// rocprofiler_client_id_t: {const char* name; uint32_t handle}
		*(*uintptr)(unsafe.Pointer(clientID)) = uintptr(unsafe.Pointer(&clientName[0]))
		configureResult = toolConfigureResult{
			size:       uint64(unsafe.Sizeof(configureResult)),
			initialize: initCb,
			finalize:   finiCb,
		}
		return uintptr(unsafe.Pointer(&configureResult))
	})

	return l.check("rocprofiler_force_configure", l.forceConfigure(configureCb))
}

func (l *rocprofiler) AvailableAgents() ([]Agent, error) {
	var agents []Agent
	var badVersion bool
	gpuIndex := 0

	cb := purego.NewCallback(func(version uint32, agentsArr uintptr, numAgents uintptr, userData uintptr) int32 {
		if version != agentInfoVersion0 {
			badVersion = true
			return 0
		}
		ptrs := unsafe.Slice((*unsafe.Pointer)(unsafe.Pointer(agentsArr)), int(numAgents))
		for _, p := range ptrs {
			hdr := (*agentHeader)(p)
			agent := Agent{ID: AgentID(hdr.id), Type: AgentType(hdr.typ)}
			if agent.Type == AgentTypeGPU {
				agent.Index = gpuIndex
				gpuIndex++
			}
			agents = append(agents, agent)
		}
		return 0
	})

	status := l.queryAvailableAgents(agentInfoVersion0, cb, unsafe.Sizeof(agentHeader{}), 0)
	if err := l.check("rocprofiler_query_available_agents", status); err != nil {
		return nil, err
	}
	if badVersion {
		return nil, fmt.Errorf("rocm: unexpected rocprofiler agent info version")
	}
	return agents, nil
}

func (l *rocprofiler) SupportedCounters(agent AgentID) (map[string]CounterID, error) {
	var ids []uint64
	cb := purego.NewCallback(func(agentID uint64, counters uintptr, numCounters uintptr, userData uintptr) int32 {
		ids = append(ids, unsafe.Slice((*uint64)(unsafe.Pointer(counters)), int(numCounters))...)
		return 0
	})
	status := l.iterateAgentSupportedCounters(uint64(agent), cb, 0)
	if err := l.check("rocprofiler_iterate_agent_supported_counters", status); err != nil {
		return nil, err
	}

	out := make(map[string]CounterID, len(ids))
	for _, id := range ids {
		var info counterInfoV0
		status := l.queryCounterInfo(id, counterInfoVersion0, unsafe.Pointer(&info))
		if err := l.check("rocprofiler_query_counter_info", status); err != nil {
			return nil, err
		}
		out[unix.BytePtrToString(info.name)] = CounterID(id)
	}
	return out, nil
}

func (l *rocprofiler) CounterDimensions(counter CounterID) ([]Dimension, error) {
	var dims []Dimension
	cb := purego.NewCallback(func(counterID uint64, dimInfo uintptr, numDims uintptr, userData uintptr) int32 {
		for _, d := range unsafe.Slice((*dimensionInfo)(unsafe.Pointer(dimInfo)), int(numDims)) {
			dims = append(dims, Dimension{
				ID:            DimensionID(d.id),
				Name:          unix.BytePtrToString(d.name),
				InstanceCount: d.instanceSize,
			})
		}
		return 0
	})
	status := l.iterateCounterDimensions(uint64(counter), cb, 0)
	if err := l.check("rocprofiler_iterate_counter_dimensions", status); err != nil {
		return nil, err
	}
	return dims, nil
}

func (l *rocprofiler) RecordCounterID(recordID uint64) (CounterID, error) {
	var counter uint64
	status := l.queryRecordCounterID(recordID, &counter)
	if err := l.check("rocprofiler_query_record_counter_id", status); err != nil {
		return 0, err
	}
	return CounterID(counter), nil
}

func (l *rocprofiler) RecordDimensionPosition(recordID uint64, dim DimensionID) (uint64, error) {
	var pos uint64
	status := l.queryRecordDimensionPosition(recordID, uint64(dim), &pos)
	if err := l.check("rocprofiler_query_record_dimension_position", status); err != nil {
		return 0, err
	}
	return pos, nil
}

func (l *rocprofiler) CreateContext() (ContextID, error) {
	var ctx uint64
	if err := l.check("rocprofiler_create_context", l.createContext(&ctx)); err != nil {
		return 0, err
	}
	return ContextID(ctx), nil
}

func (l *rocprofiler) ConfigureDeviceCounting(ctx ContextID, agent AgentID, provider ProfileProvider) error {
	// The runtime pulls the active profile through this callback each time
	// the context starts. setConfig is a C function pointer supplied by the
	// runtime for the duration of the call. The callback closure keeps the
	// provider reachable for the process lifetime; purego never releases
	// registered callbacks.
	cb := purego.NewCallback(func(contextID uint64, agentID uint64, setConfig uintptr, userData uintptr) {
		if profile, ok := provider.ActiveProfile(); ok {
			purego.SyscallN(setConfig, uintptr(contextID), uintptr(profile))
		}
	})

	status := l.configureDeviceCountingSvc(uint64(ctx), 0, uint64(agent), cb, 0)
	return l.check("rocprofiler_configure_device_counting_service", status)
}

func (l *rocprofiler) CreateProfile(agent AgentID, counters []CounterID) (ProfileID, error) {
	ids := make([]uint64, len(counters))
	for i, c := range counters {
		ids[i] = uint64(c)
	}
	var base *uint64
	if len(ids) > 0 {
		base = &ids[0]
	}
	var profile uint64
	status := l.createProfileConfig(uint64(agent), base, uintptr(len(ids)), &profile)
	if err := l.check("rocprofiler_create_profile_config", status); err != nil {
		return 0, err
	}
	return ProfileID(profile), nil
}

func (l *rocprofiler) StartContext(ctx ContextID) error {
	if l.started[ctx] {
		return nil
	}
	if err := l.check("rocprofiler_start_context", l.startContext(uint64(ctx))); err != nil {
		return err
	}
	l.started[ctx] = true
	return nil
}

func (l *rocprofiler) StopContext(ctx ContextID) error {
	if err := l.check("rocprofiler_stop_context", l.stopContext(uint64(ctx))); err != nil {
		return err
	}
	delete(l.started, ctx)
	return nil
}

func (l *rocprofiler) SampleCounters(ctx ContextID, buf []Record) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	raw := make([]counterRecord, len(buf))
	count := uint64(len(raw))
	status := l.sampleDeviceCountingSvc(uint64(ctx), 0, counterFlagNone, unsafe.Pointer(&raw[0]), &count)
	if err := l.check("rocprofiler_sample_device_counting_service", status); err != nil {
		return 0, err
	}
	if int(count) > len(buf) {
		count = uint64(len(buf))
	}
	for i := 0; i < int(count); i++ {
		buf[i] = Record{ID: raw[i].id, Value: raw[i].value}
	}
	return int(count), nil
}
