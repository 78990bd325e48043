package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AMDResearch/pmc-collector/internal/metrics"
	"github.com/AMDResearch/pmc-collector/internal/report"
	"github.com/AMDResearch/pmc-collector/internal/rocm"
	"github.com/AMDResearch/pmc-collector/pkg/logutil"
)

// RunnerOptions configures the multi-device sampling loop.
type RunnerOptions struct {
	// Counters to sample on every device, in request order. The reference
	// counter is prepended automatically when absent.
	Counters []string

	// ReferenceCounter overrides the validity monitor's reference counter.
	// Empty selects DefaultReferenceCounter.
	ReferenceCounter string

	// Interval between polls.
	Interval time.Duration

	// Parallel samples devices concurrently on each poll. Collectors own
	// independent contexts and caches, so this is safe; it is an
	// optimization, not a requirement.
	Parallel bool

	// Report receives the start and end blocks and the validity line.
	Report *report.Writer

	// Metrics optionally publishes per-poll values; nil disables it.
	Metrics *metrics.Exporter
}

// Runner fans sampling out across every GPU on the system and merges the
// results: per-device accumulated values go to the report and the metrics
// exporter, reference counter totals go to the validity monitor.
type Runner struct {
	collectors []*DeviceCollector
	counters   []string
	monitor    *Monitor
	interval   time.Duration
	parallel   bool
	report     *report.Writer
	metrics    *metrics.Exporter
}

// NewRunner enumerates the system's GPU agents and builds one collector per
// device. A device whose collector fails to initialize is logged and
// skipped; zero usable devices is a fatal startup error.
func NewRunner(lib rocm.Library, opts RunnerOptions) (*Runner, error) {
	logger := logutil.GetLogger()

	agents, err := lib.AvailableAgents()
	if err != nil {
		return nil, fmt.Errorf("enumerating agents: %w", err)
	}

	monitor := NewMonitor(opts.ReferenceCounter)
	counters := opts.Counters
	if !contains(counters, monitor.Counter()) {
		counters = append([]string{monitor.Counter()}, counters...)
	}

	var collectors []*DeviceCollector
	for _, agent := range agents {
		if agent.Type != rocm.AgentTypeGPU {
			continue
		}
		dc, err := NewDeviceCollector(lib, agent)
		if err != nil {
			logger.Error("skipping device: collector initialization failed",
				zap.Int("card", agent.Index), zap.Error(err))
			continue
		}
		collectors = append(collectors, dc)
		logger.Info("device collector ready", zap.Int("card", agent.Index))
	}
	if len(collectors) == 0 {
		return nil, errors.New("no usable GPU agents found")
	}

	return &Runner{
		collectors: collectors,
		counters:   counters,
		monitor:    monitor,
		interval:   opts.Interval,
		parallel:   opts.Parallel,
		report:     opts.Report,
		metrics:    opts.Metrics,
	}, nil
}

// Valid reports the session validity monitor's current state.
func (r *Runner) Valid() bool { return r.monitor.Valid() }

// SampleDevice samples one device by card index and returns its accumulated
// per-counter values. Not safe to call while Run is polling the same device.
func (r *Runner) SampleDevice(card int, names []string) (map[string]float64, error) {
	for _, dc := range r.collectors {
		if dc.Agent().Index != card {
			continue
		}
		records, err := dc.Sample(names)
		if err != nil {
			return nil, err
		}
		return dc.Accumulate(records), nil
	}
	return nil, fmt.Errorf("no collector for card %d", card)
}

// Counters returns the effective request sequence, reference counter
// included.
func (r *Runner) Counters() []string { return r.counters }

type pollResult struct {
	dc     *DeviceCollector
	values map[string]float64
	err    error
}

// poll samples every remaining device once. A device whose sample fails is
// torn down and dropped so the rest of the run continues without it.
func (r *Runner) poll(ctx context.Context) []pollResult {
	results := make([]pollResult, len(r.collectors))
	sample := func(i int, dc *DeviceCollector) {
		records, err := dc.Sample(r.counters)
		if err != nil {
			results[i] = pollResult{dc: dc, err: err}
			return
		}
		results[i] = pollResult{dc: dc, values: dc.Accumulate(records)}
	}

	if r.parallel {
		g, _ := errgroup.WithContext(ctx)
		for i, dc := range r.collectors {
			i, dc := i, dc
			g.Go(func() error {
				sample(i, dc)
				return nil
			})
		}
		g.Wait()
	} else {
		for i, dc := range r.collectors {
			sample(i, dc)
		}
	}

	logger := logutil.GetLogger()
	kept := r.collectors[:0]
	ok := results[:0]
	for _, res := range results {
		if res.err != nil {
			logger.Error("dropping device after sampling failure",
				zap.Int("card", res.dc.Agent().Index), zap.Error(res.err))
			if stopErr := res.dc.Stop(); stopErr != nil {
				logger.Warn("stopping failed device", zap.Error(stopErr))
			}
			continue
		}
		kept = append(kept, res.dc)
		ok = append(ok, res)
	}
	r.collectors = kept
	return ok
}

// observe feeds one poll's results to the validity monitor and the metrics
// exporter.
func (r *Runner) observe(results []pollResult) {
	for _, res := range results {
		agent := res.dc.Agent()
		r.monitor.Observe(agent.ID, res.values[r.monitor.Counter()])
		if r.metrics != nil {
			for name, value := range res.values {
				r.metrics.SetCounter(agent.Index, name, value)
			}
		}
	}
	if r.metrics != nil {
		r.metrics.SetValid(r.monitor.Valid())
	}
}

// Run samples all devices at the configured interval until ctx is
// cancelled, then emits the final report block and stops every collector.
// Session invalidity is reported, never returned as an error; Run fails only
// when every device has been lost.
func (r *Runner) Run(ctx context.Context) error {
	results := r.poll(ctx)
	r.report.Start()
	for _, res := range results {
		r.report.Device(res.values)
	}
	r.observe(results)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			r.observe(r.poll(ctx))
			if len(r.collectors) == 0 {
				r.report.End()
				r.report.Valid(r.monitor.Valid())
				return errors.New("all devices failed")
			}
		}
	}

	results = r.poll(context.Background())
	r.report.End()
	for _, res := range results {
		r.report.Device(res.values)
	}
	r.observe(results)
	r.report.Valid(r.monitor.Valid())

	var err error
	for _, dc := range r.collectors {
		err = multierr.Append(err, dc.Stop())
	}
	return err
}

func contains(names []string, want string) bool {
	for _, name := range names {
		if name == want {
			return true
		}
	}
	return false
}
