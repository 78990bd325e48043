// Package metrics exposes sampled counter values as Prometheus gauges, the
// same exposition shape omnistat uses:
//
//	omnistat_rocprofiler{card="0",counter="SQ_WAVES"} 81236
//	omnistat_rocprofiler_valid 1
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AMDResearch/pmc-collector/pkg/logutil"
	"go.uber.org/zap"
)

type Exporter struct {
	registry *prometheus.Registry
	values   *prometheus.GaugeVec
	valid    prometheus.Gauge
}

func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()
	values := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "omnistat_rocprofiler",
		Help: "Performance counter data from rocprofiler",
	}, []string{"card", "counter"})
	valid := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "omnistat_rocprofiler_valid",
		Help: "1 while no competing profiling session has invalidated the sampled counters",
	})
	registry.MustRegister(values, valid)
	valid.Set(1)
	return &Exporter{registry: registry, values: values, valid: valid}
}

// SetCounter publishes one device's accumulated value for a counter.
func (e *Exporter) SetCounter(card int, counter string, value float64) {
	e.values.WithLabelValues(strconv.Itoa(card), counter).Set(value)
}

// SetValid publishes the session validity state.
func (e *Exporter) SetValid(valid bool) {
	if valid {
		e.valid.Set(1)
	} else {
		e.valid.Set(0)
	}
}

// Handler returns the exposition handler for e's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve runs the exposition endpoint until ctx is cancelled, then shuts the
// server down with a short grace period. Returns nil on clean shutdown.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	logutil.GetLogger().Info("metrics endpoint listening", zap.String("address", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
