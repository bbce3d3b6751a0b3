// Package bridge ties the engine pieces into one page session: a Runtime
// owns the scheduler, bus and registry, hands out one Proxy per remote
// object, and keeps the facade singletons.
package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/hostbridge/internal/engine/bus"
	"github.com/R3E-Network/hostbridge/internal/engine/events"
	"github.com/R3E-Network/hostbridge/internal/engine/loop"
	enginemetrics "github.com/R3E-Network/hostbridge/internal/engine/metrics"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
	"github.com/R3E-Network/hostbridge/internal/engine/state"
	"github.com/R3E-Network/hostbridge/pkg/logger"
)

// ErrHostNotAvailable is the cause of every failure when the runtime has
// no host environment.
var ErrHostNotAvailable = remote.ErrHostNotAvailable

// RuntimeConfig holds configuration for the bridge runtime.
type RuntimeConfig struct {
	PollInterval     time.Duration
	MaxAttempts      int
	EventBufferSize  int
	MetricsNamespace string

	// PollMultiplier above 1 grows the delay between lookups, up to
	// MaxPollInterval. Otherwise lookups run every PollInterval.
	PollMultiplier  float64
	MaxPollInterval time.Duration
}

// DefaultRuntimeConfig returns sensible defaults.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		PollInterval:     remote.DefaultPollInterval,
		MaxAttempts:      remote.DefaultMaxAttempts,
		EventBufferSize:  512,
		MetricsNamespace: "hostbridge",
	}
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.Log = l
	}
}

// WithEventLogger sets the event logger.
func WithEventLogger(el events.EventLogger) RuntimeOption {
	return func(r *Runtime) {
		r.Events = el
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc enginemetrics.MetricsCollector) RuntimeOption {
	return func(r *Runtime) {
		r.Metrics = mc
	}
}

// Runtime bundles the engine components for one page session.
type Runtime struct {
	Scheduler loop.Scheduler
	Bus       *bus.Bus
	Registry  *remote.Registry
	Events    events.EventLogger
	Metrics   enginemetrics.MetricsCollector
	Log       *logger.Logger
	Facades   *Facades

	mu      sync.Mutex
	proxies map[string]*Proxy
}

// NewRuntime creates a runtime resolving objects from env on sched.
// A nil env is allowed: every object fails with ErrHostNotAvailable.
func NewRuntime(env remote.Environment, sched loop.Scheduler, cfg RuntimeConfig, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		Scheduler: sched,
		Facades:   NewFacades(),
		proxies:   make(map[string]*Proxy),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Log == nil {
		r.Log = logger.NewDefault("bridge")
	}
	if r.Events == nil {
		r.Events = events.NewRingBuffer(cfg.EventBufferSize)
	}
	if r.Metrics == nil {
		r.Metrics = enginemetrics.NewCollector(cfg.MetricsNamespace)
	}

	r.Bus = bus.New(
		bus.WithLogger(r.Log.Named("bus")),
		bus.WithFailureHook(r.handlerFailed),
	)
	regOpts := []remote.Option{
		remote.WithLogger(r.Log.Named("registry")),
		remote.WithEventLogger(r.Events),
		remote.WithMetricsCollector(r.Metrics),
		remote.WithPollInterval(cfg.PollInterval),
		remote.WithMaxAttempts(cfg.MaxAttempts),
	}
	if cfg.PollMultiplier > 1 {
		regOpts = append(regOpts, remote.WithBackOff(remote.ExponentialPolicy(
			cfg.PollInterval, cfg.PollMultiplier, cfg.MaxPollInterval, cfg.MaxAttempts)))
	}
	r.Registry = remote.NewRegistry(env, sched, r.Bus, regOpts...)
	return r
}

// NewNoOpRuntime creates a runtime with no-op diagnostics.
func NewNoOpRuntime(env remote.Environment, sched loop.Scheduler, cfg RuntimeConfig) *Runtime {
	return NewRuntime(env, sched, cfg,
		WithLogger(logger.Discard()),
		WithEventLogger(events.NoOpLogger{}),
		WithMetricsCollector(enginemetrics.NewNoOpCollector()),
	)
}

func (r *Runtime) handlerFailed(herr *bus.HandlerError) {
	r.Metrics.RecordHandlerFailure(herr.Signal)
	events.NewEvent(events.EventHandlerFailed).
		Signal(herr.Signal).
		ErrorFrom(herr).
		LogTo(r.Events)
}

// Proxy returns the proxy for the named remote object, creating it and
// starting resolution on first use.
func (r *Runtime) Proxy(name string) *Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.proxies[name]; ok {
		return p
	}
	p := newProxy(name, r)
	r.proxies[name] = p
	return p
}

// Snapshot reports every proxied object, sorted by name.
func (r *Runtime) Snapshot() []state.Snapshot {
	r.mu.Lock()
	proxies := make([]*Proxy, 0, len(r.proxies))
	for _, p := range r.proxies {
		proxies = append(proxies, p)
	}
	r.mu.Unlock()

	sort.Slice(proxies, func(i, j int) bool { return proxies[i].name < proxies[j].name })
	out := make([]state.Snapshot, 0, len(proxies))
	for _, p := range proxies {
		out = append(out, p.Snapshot())
	}
	return out
}

// Close fails every object still resolving with remote.ErrClosed, which
// rejects its queued calls, and disconnects every signal binding. Calls on
// resolved objects keep working.
func (r *Runtime) Close() {
	if n := r.Registry.Close(); n > 0 {
		r.Log.WithField("objects", n).Info("failed unresolved objects on close")
	}

	r.mu.Lock()
	proxies := make([]*Proxy, 0, len(r.proxies))
	for _, p := range r.proxies {
		proxies = append(proxies, p)
	}
	r.mu.Unlock()

	for _, p := range proxies {
		p.Close()
	}
}
