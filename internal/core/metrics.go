package core

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Attach outcomes recorded in the attach_total counter.
const (
	attachSpawned   = "spawned"
	attachShared    = "shared"
	attachReclaimed = "reclaimed"
	attachFailed    = "error"
)

// Release outcomes recorded in the release_total counter.
const (
	releaseDropped = "dropped"
	releaseStopped = "stopped"
	releaseFailed  = "error"
)

// metrics holds the manager's Prometheus collectors. All methods are
// nil-safe: calls on a nil *metrics are no-ops.
type metrics struct {
	attaches      *prometheus.CounterVec
	releases      *prometheus.CounterVec
	openHandles   prometheus.Gauge
	startDuration prometheus.Histogram
	sweepFailures prometheus.Counter
}

// newMetrics creates the collectors and registers them with reg. It returns
// nil when reg is nil.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		attaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redislite",
			Name:      "attach_total",
			Help:      "Attaches to a server instance, by outcome.",
		}, []string{"result"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redislite",
			Name:      "release_total",
			Help:      "Handle releases, by outcome.",
		}, []string{"result"}),
		openHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "redislite",
			Name:      "open_handles",
			Help:      "Handles held by this process.",
		}),
		startDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "redislite",
			Name:      "attach_spawn_duration_seconds",
			Help:      "Time taken by attaches that spawned a server.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "redislite",
			Name:      "shutdown_release_failures_total",
			Help:      "Handles that could not be released by Shutdown.",
		}),
	}

	m.attaches = registerOrReuse(reg, m.attaches).(*prometheus.CounterVec)
	m.releases = registerOrReuse(reg, m.releases).(*prometheus.CounterVec)
	m.openHandles = registerOrReuse(reg, m.openHandles).(prometheus.Gauge)
	m.startDuration = registerOrReuse(reg, m.startDuration).(prometheus.Histogram)
	m.sweepFailures = registerOrReuse(reg, m.sweepFailures).(prometheus.Counter)
	return m
}

// registerOrReuse registers c with reg. If an identical collector is already
// registered the existing one is returned so that counts continue across
// managers sharing a registry. Panics on any other registration failure.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *metrics) recordAttach(result string, spawnTime time.Duration) {
	if m == nil {
		return
	}
	m.attaches.WithLabelValues(result).Inc()
	if result == attachFailed {
		return
	}
	m.openHandles.Inc()
	if result != attachShared {
		m.startDuration.Observe(spawnTime.Seconds())
	}
}

func (m *metrics) recordRelease(result string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(result).Inc()
	if result != releaseFailed {
		m.openHandles.Dec()
	}
}

func (m *metrics) recordSweepFailure() {
	if m == nil {
		return
	}
	m.sweepFailures.Inc()
}
