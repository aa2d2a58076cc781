package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "powerwatch"

// Metrics implements the Observer interfaces of probe, schedule, dispatcher
// and monitor. A nil *Metrics is a valid no-op observer.
type Metrics struct {
	reg *prometheus.Registry

	checks        *prometheus.CounterVec
	probes        *prometheus.CounterVec
	probeAttempts prometheus.Histogram
	probeDuration prometheus.Histogram
	transitions   *prometheus.CounterVec
	dispatches    *prometheus.CounterVec
	ticks         prometheus.Counter
	skippedTicks  prometheus.Counter
	tickDuration  prometheus.Histogram
	locations     prometheus.Gauge
	refreshes     *prometheus.CounterVec
	gridFetchedAt prometheus.Gauge
	restarts      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "check_results_total",
			Help: "Reachability sub-check results by check and outcome.",
		}, []string{"check", "outcome"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "probe_results_total",
			Help: "Combined probe verdicts after retries.",
		}, []string{"available"}),
		probeAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "probe_attempts",
			Help:    "Attempts used per probe.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "probe_duration_seconds",
			Help:    "Wall time of one probe including retries.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 90, 120},
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transitions_total",
			Help: "Detected availability transitions by direction.",
		}, []string{"direction"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatch_total",
			Help: "Per-recipient dispatch outcomes.",
		}, []string{"outcome"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Completed availability ticks.",
		}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_skipped_total",
			Help: "Ticks skipped because the previous one was still running.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time of one availability tick.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9),
		}),
		locations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "locations_checked",
			Help: "Enabled locations in the last tick.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "schedule_refresh_total",
			Help: "Schedule grid refresh outcomes.",
		}, []string{"outcome"}),
		gridFetchedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "schedule_grid_fetched_timestamp_seconds",
			Help: "Unix time of the grid currently in use.",
		}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "goroutine_restarts_total",
			Help: "Supervised goroutine restarts by name.",
		}, []string{"name"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.checks, m.probes, m.probeAttempts, m.probeDuration,
		m.transitions, m.dispatches,
		m.ticks, m.skippedTicks, m.tickDuration, m.locations,
		m.refreshes, m.gridFetchedAt, m.restarts,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

func (m *Metrics) ObserveCheck(check string, ok bool, err error) {
	if m == nil {
		return
	}
	o := outcome(ok)
	if err != nil {
		o = "error"
	}
	m.checks.WithLabelValues(check, o).Inc()
}

func (m *Metrics) ObserveProbe(ok bool, attempts int, took time.Duration) {
	if m == nil {
		return
	}
	avail := "false"
	if ok {
		avail = "true"
	}
	m.probes.WithLabelValues(avail).Inc()
	m.probeAttempts.Observe(float64(attempts))
	m.probeDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveRefresh(ok bool, fetchedAt time.Time) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome(ok)).Inc()
	if ok && !fetchedAt.IsZero() {
		m.gridFetchedAt.Set(float64(fetchedAt.Unix()))
	}
}

func (m *Metrics) ObserveDispatch(o string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(o).Inc()
}

func (m *Metrics) ObserveTick(took time.Duration, locations int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(took.Seconds())
	m.locations.Set(float64(locations))
}

func (m *Metrics) ObserveSkippedTick() {
	if m == nil {
		return
	}
	m.skippedTicks.Inc()
}

func (m *Metrics) ObserveTransition(direction string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(direction).Inc()
}

func (m *Metrics) ObserveRestart(name string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(name).Inc()
}
