package collector

import (
	"fmt"

	"github.com/AMDResearch/pmc-collector/internal/rocm"
	"github.com/AMDResearch/pmc-collector/pkg/logutil"
	"go.uber.org/zap"
)

// DeviceCollector owns one device's counting context and its caches. It is
// registered with the hardware layer as the profile provider for its context
// at construction; each Sample call changes which cached profile is active
// before the runtime pulls it.
//
// A collector is not safe for concurrent use. Distinct collectors own
// independent contexts and caches and may run in parallel.
type DeviceCollector struct {
	lib      rocm.Library
	agent    rocm.Agent
	ctx      rocm.ContextID
	catalog  *Catalog
	profiles *profileCache

	active    rocm.ProfileID
	hasActive bool
}

// NewDeviceCollector creates the counting context for one device and wires
// the collector in as its profile provider. Any hardware failure here is
// fatal for the device.
func NewDeviceCollector(lib rocm.Library, agent rocm.Agent) (*DeviceCollector, error) {
	ctx, err := lib.CreateContext()
	if err != nil {
		return nil, fmt.Errorf("agent %d: %w", agent.ID, err)
	}
	catalog := NewCatalog(lib, agent.ID)
	dc := &DeviceCollector{
		lib:      lib,
		agent:    agent,
		ctx:      ctx,
		catalog:  catalog,
		profiles: newProfileCache(lib, agent.ID, catalog),
	}
	if err := lib.ConfigureDeviceCounting(ctx, agent.ID, dc); err != nil {
		return nil, fmt.Errorf("agent %d: %w", agent.ID, err)
	}
	return dc, nil
}

// Agent returns the device this collector samples.
func (dc *DeviceCollector) Agent() rocm.Agent { return dc.agent }

// ActiveProfile implements rocm.ProfileProvider. The runtime pulls the
// profile selected by the most recent Sample call.
func (dc *DeviceCollector) ActiveProfile() (rocm.ProfileID, bool) {
	return dc.active, dc.hasActive
}

// Sample synchronously reads the named counters and returns one record per
// counter instance. The context is started on first use and left running
// between samples; only Stop halts it. The returned slice is sized to the
// actual record count, which may be smaller than the profile's expected
// count but never larger.
func (dc *DeviceCollector) Sample(names []string) ([]rocm.Record, error) {
	profile, err := dc.profiles.resolve(names)
	if err != nil {
		return nil, err
	}

	dc.active = profile.id
	dc.hasActive = true

	if err := dc.lib.StartContext(dc.ctx); err != nil {
		return nil, fmt.Errorf("agent %d: %w", dc.agent.ID, err)
	}

	buf := make([]rocm.Record, profile.records)
	n, err := dc.lib.SampleCounters(dc.ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("agent %d: %w", dc.agent.ID, err)
	}
	return buf[:n], nil
}

// DecodeRecordName maps a sampled record back to its counter's name.
func (dc *DeviceCollector) DecodeRecordName(rec rocm.Record) (string, error) {
	return dc.catalog.DecodeName(rec)
}

// DecodeDimensions returns a record's coordinate on each of its counter's
// axes. High cost; callers decoding many records should expect one position
// query per axis per record.
func (dc *DeviceCollector) DecodeDimensions(rec rocm.Record) (map[string]uint64, error) {
	return dc.catalog.DecodeDimensions(rec)
}

// Accumulate sums sampled records by counter name, collapsing all dimension
// instances of a counter into a single value. Empty record slots are
// skipped; records whose counter cannot be decoded are dropped with a
// warning rather than failing the poll.
func (dc *DeviceCollector) Accumulate(records []rocm.Record) map[string]float64 {
	values := make(map[string]float64)
	for _, rec := range records {
		if rec.ID == 0 {
			continue
		}
		name, err := dc.DecodeRecordName(rec)
		if err != nil {
			logutil.GetLogger().Warn("dropping undecodable record",
				zap.Uint64("record", rec.ID), zap.Error(err))
			continue
		}
		values[name] += rec.Value
	}
	return values
}

// Stop halts the device's counting context. Final teardown only: samples do
// not stop the context, so one Stop call at shutdown balances however many
// samples ran.
func (dc *DeviceCollector) Stop() error {
	if err := dc.lib.StopContext(dc.ctx); err != nil {
		return fmt.Errorf("agent %d: %w", dc.agent.ID, err)
	}
	return nil
}
