package remote

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/bus"
	"github.com/R3E-Network/hostbridge/internal/engine/events"
	"github.com/R3E-Network/hostbridge/internal/engine/loop"
	"github.com/R3E-Network/hostbridge/internal/engine/state"
)

type handle struct {
	name    string
	machine state.Machine
	future  *async.Future[*Wrapper]
	policy  backoff.BackOff
	started time.Time

	probes  int
	wrapper *Wrapper
	err     error
}

// Registry resolves each name at most once and shares the result.
type Registry struct {
	env   Environment
	sched loop.Scheduler
	bus   *bus.Bus
	*settings

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
}

// NewRegistry creates a registry over env. A nil env fails every
// resolution with ErrHostNotAvailable.
func NewRegistry(env Environment, sched loop.Scheduler, b *bus.Bus, opts ...Option) *Registry {
	return &Registry{
		env:      env,
		sched:    sched,
		bus:      b,
		settings: newSettings(opts),
		handles:  make(map[string]*handle),
	}
}

// Resolve returns the future for name, starting to poll on the first call.
// Every later call returns the same future.
func (r *Registry) Resolve(name string) *async.Future[*Wrapper] {
	r.mu.Lock()
	if h, ok := r.handles[name]; ok {
		r.mu.Unlock()
		return h.future
	}
	h := &handle{
		name:    name,
		future:  async.New[*Wrapper](),
		policy:  r.policy(),
		started: time.Now(),
	}
	r.handles[name] = h
	closed := r.closed
	r.mu.Unlock()

	r.metrics.RecordObjectStatus(name, int(state.StatusUnresolved))
	events.NewEvent(events.EventObjectResolving).
		Object(name).
		Status(state.StatusUnresolved).
		LogTo(r.events)

	switch {
	case r.env == nil:
		r.fail(h, &UnavailableError{Name: name, Cause: ErrHostNotAvailable})
	case closed:
		r.fail(h, &UnavailableError{Name: name, Cause: ErrClosed})
	case !r.sched.Post(func() { r.probe(h) }):
		r.fail(h, &UnavailableError{Name: name, Cause: ErrClosed})
	}
	return h.future
}

func (r *Registry) probe(h *handle) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}

	obj, found := r.lookup(h.name)

	r.mu.Lock()
	h.probes++
	attempts := h.probes
	r.mu.Unlock()
	r.metrics.RecordProbe(h.name)

	if found {
		r.resolve(h, obj)
		return
	}

	next := h.policy.NextBackOff()
	if next == backoff.Stop {
		r.fail(h, &UnavailableError{Name: h.name, Attempts: attempts})
		return
	}
	r.sched.AfterFunc(next, func() { r.probe(h) })
}

func (r *Registry) lookup(name string) (obj Object, found bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("object", name).WithField("panic", fmt.Sprint(rec)).Warn("namespace lookup panicked")
			obj, found = nil, false
		}
	}()
	obj, found = r.env.Lookup(name)
	return obj, found && obj != nil
}

func (r *Registry) resolve(h *handle, obj Object) {
	if err := h.machine.Transition(state.StatusResolved); err != nil {
		r.log.WithField("object", h.name).WithError(err).Debug("resolve on settled handle")
		return
	}
	w := newWrapper(h.name, obj, r.sched, r.bus, r.settings)

	r.mu.Lock()
	h.wrapper = w
	attempts := h.probes
	r.mu.Unlock()

	elapsed := time.Since(h.started)
	r.metrics.RecordObjectStatus(h.name, int(state.StatusResolved))
	r.metrics.RecordResolution(h.name, elapsed, nil)
	r.log.WithField("object", h.name).WithField("probes", attempts).Info("remote object resolved")
	events.NewEvent(events.EventObjectResolved).
		Object(h.name).
		Status(state.StatusResolved).
		Duration(elapsed).
		Metadata("probes", fmt.Sprint(attempts)).
		LogTo(r.events)

	h.future.Resolve(w)
}

func (r *Registry) fail(h *handle, err error) bool {
	if terr := h.machine.Transition(state.StatusFailed); terr != nil {
		r.log.WithField("object", h.name).WithError(terr).Debug("fail on settled handle")
		return false
	}

	r.mu.Lock()
	h.err = err
	r.mu.Unlock()

	elapsed := time.Since(h.started)
	r.metrics.RecordObjectStatus(h.name, int(state.StatusFailed))
	r.metrics.RecordResolution(h.name, elapsed, err)
	r.log.WithField("object", h.name).WithError(err).Warn("remote object unavailable")
	events.NewEvent(events.EventObjectUnavailable).
		Object(h.name).
		Status(state.StatusFailed).
		Duration(elapsed).
		ErrorFrom(err).
		LogTo(r.events)

	h.future.Reject(err)
	return true
}

// Close fails every handle that is still unresolved with ErrClosed and makes
// later resolutions fail the same way. Resolved handles are untouched.
func (r *Registry) Close() int {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0
	}
	r.closed = true
	var pending []*handle
	for _, h := range r.handles {
		if h.machine.Status() == state.StatusUnresolved {
			pending = append(pending, h)
		}
	}
	r.mu.Unlock()

	failed := 0
	for _, h := range pending {
		r.mu.Lock()
		attempts := h.probes
		r.mu.Unlock()
		if r.fail(h, &UnavailableError{Name: h.name, Attempts: attempts, Cause: ErrClosed}) {
			failed++
		}
	}
	return failed
}

// Status returns the status of name; names never resolved are unresolved.
func (r *Registry) Status(name string) state.Status {
	r.mu.Lock()
	h, ok := r.handles[name]
	r.mu.Unlock()
	if !ok {
		return state.StatusUnresolved
	}
	return h.machine.Status()
}

// Probes returns how many lookups were made for name.
func (r *Registry) Probes(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[name]; ok {
		return h.probes
	}
	return 0
}

// Wrapper returns the wrapper for name once resolved.
func (r *Registry) Wrapper(name string) (*Wrapper, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	if !ok || h.wrapper == nil {
		return nil, false
	}
	return h.wrapper, true
}

// Names returns every name Resolve has been called with, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot reports on one handle.
func (r *Registry) Snapshot(name string) state.Snapshot {
	r.mu.Lock()
	h, ok := r.handles[name]
	if !ok {
		r.mu.Unlock()
		return state.Snapshot{Name: name, Status: state.StatusUnresolved}
	}
	snap := state.Snapshot{Name: name, Probes: h.probes}
	if h.err != nil {
		snap.Error = h.err.Error()
	}
	w := h.wrapper
	r.mu.Unlock()

	snap.Status = h.machine.Status()
	if w != nil {
		snap.Bindings = w.Bindings()
	}
	return snap
}
