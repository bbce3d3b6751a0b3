// Package metrics provides bridge metrics collection.
// It wraps Prometheus collectors to provide structured telemetry for
// object resolution, deferred calls, invocations and signal relays.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector provides bridge metrics collection in its own registry.
type Collector struct {
	registry *prometheus.Registry

	// Resolution
	resolveAttempts *prometheus.CounterVec
	resolveOutcomes *prometheus.CounterVec
	resolveLatency  *prometheus.HistogramVec
	objectStatus    *prometheus.GaugeVec

	// Calls
	queueDepth    *prometheus.GaugeVec
	invokeTotal   *prometheus.CounterVec
	invokeLatency *prometheus.HistogramVec

	// Signals
	relayTotal      *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec

	uptime    prometheus.Gauge
	startTime time.Time
}

// NewCollector creates a new bridge metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "hostbridge"
	}

	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	c.resolveAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "probes_total",
			Help:      "Total number of namespace lookups made while resolving remote objects",
		},
		[]string{"object"},
	)

	c.resolveOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "resolutions_total",
			Help:      "Remote object resolutions by result",
		},
		[]string{"object", "result"},
	)

	c.resolveLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "resolve_duration_seconds",
			Help:      "Time from first lookup to resolution or failure",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"object", "result"},
	)

	c.objectStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "object_status",
			Help:      "Current status of remote object handle (0=unresolved, 1=resolved, 2=failed)",
		},
		[]string{"object"},
	)

	c.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Calls waiting for their remote object to resolve",
		},
		[]string{"object"},
	)

	c.invokeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "invocations_total",
			Help:      "Total number of remote method invocations",
		},
		[]string{"object", "method", "result"},
	)

	c.invokeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "invocation_duration_seconds",
			Help:      "Remote method invocation latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"object", "method"},
	)

	c.relayTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "relays_total",
			Help:      "Host signals relayed onto the page bus",
		},
		[]string{"signal", "result"},
	)

	c.handlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "handler_failures_total",
			Help:      "Bus handlers that panicked or returned an error",
		},
		[]string{"signal"},
	)

	c.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Bridge uptime in seconds",
		},
	)

	c.registry.MustRegister(
		c.resolveAttempts,
		c.resolveOutcomes,
		c.resolveLatency,
		c.objectStatus,
		c.queueDepth,
		c.invokeTotal,
		c.invokeLatency,
		c.relayTotal,
		c.handlerFailures,
		c.uptime,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordProbe counts one namespace lookup.
func (c *Collector) RecordProbe(object string) {
	c.resolveAttempts.WithLabelValues(object).Inc()
}

// RecordResolution records how a handle settled and how long it took.
func (c *Collector) RecordResolution(object string, duration time.Duration, err error) {
	result := resultLabel(err)
	c.resolveOutcomes.WithLabelValues(object, result).Inc()
	c.resolveLatency.WithLabelValues(object, result).Observe(duration.Seconds())
}

// RecordObjectStatus records the handle status as its numeric value.
func (c *Collector) RecordObjectStatus(object string, status int) {
	c.objectStatus.WithLabelValues(object).Set(float64(status))
}

// RecordQueueDepth records calls waiting on object.
func (c *Collector) RecordQueueDepth(object string, depth int) {
	c.queueDepth.WithLabelValues(object).Set(float64(depth))
}

// RecordInvoke records one remote invocation.
func (c *Collector) RecordInvoke(object, method string, duration time.Duration, err error) {
	c.invokeTotal.WithLabelValues(object, method, resultLabel(err)).Inc()
	c.invokeLatency.WithLabelValues(object, method).Observe(duration.Seconds())
}

// RecordRelay records a relayed or dropped signal.
func (c *Collector) RecordRelay(signal string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "dropped"
	}
	c.relayTotal.WithLabelValues(signal, result).Inc()
}

// RecordHandlerFailure counts an isolated bus handler failure.
func (c *Collector) RecordHandlerFailure(signal string) {
	c.handlerFailures.WithLabelValues(signal).Inc()
}

// UpdateUptime updates the uptime metric.
func (c *Collector) UpdateUptime() {
	c.uptime.Set(time.Since(c.startTime).Seconds())
}

// Reset clears gauges.
func (c *Collector) Reset() {
	c.objectStatus.Reset()
	c.queueDepth.Reset()
	c.startTime = time.Now()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// NoOpCollector discards all metrics.
type NoOpCollector struct{}

// NewNoOpCollector creates a collector that records nothing.
func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (*NoOpCollector) RecordProbe(object string)                                      {}
func (*NoOpCollector) RecordResolution(object string, d time.Duration, err error)     {}
func (*NoOpCollector) RecordObjectStatus(object string, status int)                   {}
func (*NoOpCollector) RecordQueueDepth(object string, depth int)                      {}
func (*NoOpCollector) RecordInvoke(object, method string, d time.Duration, err error) {}
func (*NoOpCollector) RecordRelay(signal string, delivered bool)                      {}
func (*NoOpCollector) RecordHandlerFailure(signal string)                             {}
func (*NoOpCollector) UpdateUptime()                                                  {}
func (*NoOpCollector) Reset()                                                         {}

// MetricsCollector is the interface for metrics collection.
type MetricsCollector interface {
	RecordProbe(object string)
	RecordResolution(object string, duration time.Duration, err error)
	RecordObjectStatus(object string, status int)
	RecordQueueDepth(object string, depth int)
	RecordInvoke(object, method string, duration time.Duration, err error)
	RecordRelay(signal string, delivered bool)
	RecordHandlerFailure(signal string)
	UpdateUptime()
	Reset()
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = (*NoOpCollector)(nil)
)
