package bridge

import (
	"fmt"
	"sync"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/events"
	"github.com/R3E-Network/hostbridge/internal/engine/queue"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
	"github.com/R3E-Network/hostbridge/internal/engine/state"
)

type binding struct {
	remote    string
	local     string
	transform remote.Transform
}

// Proxy stands in for one remote object whatever its resolution status.
// Before resolution calls are queued; once resolved they go straight to the
// wrapper; after failure they are rejected with the resolution error.
type Proxy struct {
	name  string
	rt    *Runtime
	queue *queue.Queue
	ready *async.Future[*remote.Wrapper]

	mu          sync.Mutex
	wrapper     *remote.Wrapper
	bindings    []binding
	disconnects []remote.Disconnect
	closed      bool
}

func newProxy(name string, rt *Runtime) *Proxy {
	p := &Proxy{
		name:  name,
		rt:    rt,
		queue: queue.New(),
	}
	p.ready = rt.Registry.Resolve(name)
	p.ready.OnSettle(p.settle)
	return p
}

// Name returns the remote object name.
func (p *Proxy) Name() string { return p.name }

// Status returns the resolution status.
func (p *Proxy) Status() state.Status {
	return p.rt.Registry.Status(p.name)
}

// Ready settles once the object resolves or fails.
func (p *Proxy) Ready() *async.Future[*remote.Wrapper] {
	return p.ready
}

// Err returns the resolution error after failure.
func (p *Proxy) Err() error {
	return p.queue.Err()
}

// Snapshot reports the proxy's handle and backlog.
func (p *Proxy) Snapshot() state.Snapshot {
	snap := p.rt.Registry.Snapshot(p.name)
	snap.Queued = p.queue.Len()
	p.mu.Lock()
	snap.PendingBindings = len(p.bindings)
	p.mu.Unlock()
	return snap
}

func (p *Proxy) settle(w *remote.Wrapper, err error) {
	log := p.rt.Log.WithField("object", p.name)

	if err != nil {
		n := p.queue.Fail(err)
		p.mu.Lock()
		p.bindings = nil
		p.mu.Unlock()
		p.rt.Metrics.RecordQueueDepth(p.name, 0)
		if n > 0 {
			log.WithField("calls", n).WithError(err).Warn("rejecting queued calls")
			events.NewEvent(events.EventCallRejected).
				Object(p.name).
				Status(state.StatusFailed).
				Metadata("calls", fmt.Sprint(n)).
				ErrorFrom(err).
				LogTo(p.rt.Events)
		}
		return
	}

	p.mu.Lock()
	p.wrapper = w
	pending := p.bindings
	p.bindings = nil
	closed := p.closed
	p.mu.Unlock()

	if !closed {
		for _, b := range pending {
			p.apply(w, b)
		}
	}

	n := p.queue.Flush(w.Execute)
	p.rt.Metrics.RecordQueueDepth(p.name, 0)
	if n > 0 {
		log.WithField("calls", n).Debug("flushed queued calls")
		events.NewEvent(events.EventCallFlushed).
			Object(p.name).
			Status(state.StatusResolved).
			Metadata("calls", fmt.Sprint(n)).
			LogTo(p.rt.Events)
	}
}

// Invoke calls method on the remote object, queueing it until resolution.
func (p *Proxy) Invoke(method string, args ...interface{}) *async.Future[interface{}] {
	return p.submit(queue.Call{Kind: queue.KindMethod, Name: method, Args: args})
}

// Read reads a property, deferring the read until resolution.
func (p *Proxy) Read(property string) *async.Future[interface{}] {
	return p.submit(queue.Call{Kind: queue.KindProperty, Name: property})
}

func (p *Proxy) submit(call queue.Call) *async.Future[interface{}] {
	if fut, queued := p.queue.Enqueue(call); queued {
		if p.queue.State() == queue.StateFailed {
			return fut
		}
		depth := p.queue.Len()
		p.rt.Metrics.RecordQueueDepth(p.name, depth)
		events.NewEvent(events.EventCallQueued).
			Object(p.name).
			Method(call.String()).
			Severity(events.SeverityDebug).
			LogTo(p.rt.Events)
		return fut
	}

	p.mu.Lock()
	w := p.wrapper
	p.mu.Unlock()
	return w.Execute(call)
}

// Property reads a property synchronously. It fails with
// remote.ErrNotResolved before resolution and with the resolution error
// after failure.
func (p *Proxy) Property(name string) (interface{}, error) {
	p.mu.Lock()
	w := p.wrapper
	p.mu.Unlock()
	if w != nil {
		return w.Property(name)
	}
	if err := p.queue.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%s.%s: %w", p.name, name, remote.ErrNotResolved)
}

// BindSignal relays remoteSignal to localSignal on the runtime bus. Bindings
// made before resolution are applied when the object resolves; on a failed
// object they are dropped.
func (p *Proxy) BindSignal(remoteSignal, localSignal string, transform remote.Transform) {
	b := binding{remote: remoteSignal, local: localSignal, transform: transform}

	p.mu.Lock()
	if p.closed || p.queue.State() == queue.StateFailed {
		p.mu.Unlock()
		return
	}
	w := p.wrapper
	if w == nil {
		p.bindings = append(p.bindings, b)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.apply(w, b)
}

func (p *Proxy) apply(w *remote.Wrapper, b binding) {
	disconnect, err := w.BindSignal(b.remote, b.local, b.transform)
	if err != nil {
		p.rt.Log.WithField("object", p.name).WithField("signal", b.remote).WithError(err).Warn("signal binding failed")
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		disconnect()
		return
	}
	p.disconnects = append(p.disconnects, disconnect)
	p.mu.Unlock()
}

// Close disconnects this proxy's signal bindings. Calls are unaffected.
func (p *Proxy) Close() {
	p.mu.Lock()
	p.closed = true
	disconnects := p.disconnects
	p.disconnects = nil
	p.bindings = nil
	p.mu.Unlock()

	for _, d := range disconnects {
		d()
	}
}
