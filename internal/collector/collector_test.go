package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AMDResearch/pmc-collector/internal/rocm"
	"github.com/AMDResearch/pmc-collector/internal/rocm/rocmtest"
	"github.com/AMDResearch/pmc-collector/pkg/logutil"
)

// captureLogs routes the process logger to an observer for the duration of
// the test.
func captureLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, observed := observer.New(zap.WarnLevel)
	logutil.SetLogger(zap.New(core))
	t.Cleanup(func() { logutil.SetLogger(zap.NewNop()) })
	return observed
}

func TestProfileCacheSequenceKeyed(t *testing.T) {
	fake, gpu := newTestDevice(t)
	dc, err := NewDeviceCollector(fake, gpu)
	require.NoError(t, err)

	request := []string{"GRBM_COUNT", "SQ_WAVES"}
	first, err := dc.profiles.resolve(request)
	require.NoError(t, err)
	second, err := dc.profiles.resolve(request)
	require.NoError(t, err)
	assert.Equal(t, first.id, second.id, "identical request sequences share a profile")
	assert.Len(t, dc.profiles.entries, 1)

	// The cache key is the verbatim sequence: same names in a different
	// order build a distinct profile.
	reversed, err := dc.profiles.resolve([]string{"SQ_WAVES", "GRBM_COUNT"})
	require.NoError(t, err)
	assert.NotEqual(t, first.id, reversed.id)
	assert.Len(t, dc.profiles.entries, 2)
}

func TestProfileExpectedRecordCount(t *testing.T) {
	fake, gpu := newTestDevice(t)
	dc, err := NewDeviceCollector(fake, gpu)
	require.NoError(t, err)

	entry, err := dc.profiles.resolve([]string{"GRBM_COUNT", "SQ_WAVES"})
	require.NoError(t, err)
	assert.Equal(t, 65, entry.records, "1 GRBM instance + 64 SQ_WAVES instances")

	records, err := dc.Sample([]string{"GRBM_COUNT", "SQ_WAVES"})
	require.NoError(t, err)
	assert.Len(t, records, 65)
}

func TestSampleShrinksToActualCount(t *testing.T) {
	fake, gpu := newTestDevice(t)
	dc, err := NewDeviceCollector(fake, gpu)
	require.NoError(t, err)

	fake.SetShortfall(5)
	records, err := dc.Sample([]string{"GRBM_COUNT", "SQ_WAVES"})
	require.NoError(t, err)
	assert.Len(t, records, 60, "buffer shrinks to the actual count, never grows")
}

func TestUnknownCounterDroppedWithWarning(t *testing.T) {
	logs := captureLogs(t)
	fake, gpu := newTestDevice(t)
	dc, err := NewDeviceCollector(fake, gpu)
	require.NoError(t, err)

	records, err := dc.Sample([]string{"GRBM_COUNT", "BOGUS_COUNTER_NAME"})
	require.NoError(t, err, "unknown counters never fail the sample")

	values := dc.Accumulate(records)
	assert.Contains(t, values, "GRBM_COUNT")
	assert.NotContains(t, values, "BOGUS_COUNTER_NAME")

	entries := logs.FilterMessage("counter not found, dropping from profile").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "BOGUS_COUNTER_NAME", entries[0].ContextMap()["counter"])
}

func TestAllUnknownCountersYieldEmptySample(t *testing.T) {
	captureLogs(t)
	fake, gpu := newTestDevice(t)
	dc, err := NewDeviceCollector(fake, gpu)
	require.NoError(t, err)

	records, err := dc.Sample([]string{"BOGUS_COUNTER_NAME", "ANOTHER_BOGUS"})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, dc.Accumulate(records))
}

func TestAccumulateSumsInstancesByName(t *testing.T) {
	fake, gpu := newTestDevice(t)
	dc, err := NewDeviceCollector(fake, gpu)
	require.NoError(t, err)

	fake.SetTotal(gpu.ID, "SQ_WAVES", 640)
	records, err := dc.Sample([]string{"GRBM_COUNT", "SQ_WAVES"})
	require.NoError(t, err)

	values := dc.Accumulate(records)
	assert.Equal(t, float64(100), values["GRBM_COUNT"])
	assert.Equal(t, float64(640), values["SQ_WAVES"])
}

func TestAccumulateSkipsEmptySlots(t *testing.T) {
	fake, gpu := newTestDevice(t)
	dc, err := NewDeviceCollector(fake, gpu)
	require.NoError(t, err)
	supported, err := dc.catalog.SupportedCounters()
	require.NoError(t, err)

	records := []rocm.Record{
		{ID: 0, Value: 9999},
		{ID: rocmtest.RecordID(supported["GRBM_COUNT"], 0), Value: 42},
	}
	values := dc.Accumulate(records)
	assert.Equal(t, map[string]float64{"GRBM_COUNT": 42}, values)
}

func TestContextLeftStartedBetweenSamples(t *testing.T) {
	fake, gpu := newTestDevice(t)
	dc, err := NewDeviceCollector(fake, gpu)
	require.NoError(t, err)

	_, err = dc.Sample([]string{"GRBM_COUNT"})
	require.NoError(t, err)
	assert.True(t, fake.Started(dc.ctx), "context stays started after a sample")

	_, err = dc.Sample([]string{"GRBM_COUNT"})
	require.NoError(t, err)
	assert.True(t, fake.Started(dc.ctx))

	require.NoError(t, dc.Stop())
	assert.False(t, fake.Started(dc.ctx), "stop is final teardown")
}

func TestSampleHardwareErrorCarriesOperation(t *testing.T) {
	fake, gpu := newTestDevice(t)
	dc, err := NewDeviceCollector(fake, gpu)
	require.NoError(t, err)

	fake.FailOp("SampleCounters", 7)
	_, err = dc.Sample([]string{"GRBM_COUNT"})
	require.Error(t, err)

	var status *rocm.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, "SampleCounters", status.Op)
	assert.Equal(t, int32(7), status.Code)
}

func TestCollectorConstructionFailure(t *testing.T) {
	fake, gpu := newTestDevice(t)
	fake.FailOp("CreateContext", 3)

	_, err := NewDeviceCollector(fake, gpu)
	require.Error(t, err)

	var status *rocm.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, "CreateContext", status.Op)
}
