package remote

import (
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/bus"
	"github.com/R3E-Network/hostbridge/internal/engine/events"
	"github.com/R3E-Network/hostbridge/internal/engine/loop"
	"github.com/R3E-Network/hostbridge/internal/engine/queue"
)

// Wrapper is the page-side face of one resolved host object.
type Wrapper struct {
	name  string
	obj   Object
	sched loop.Scheduler
	bus   *bus.Bus
	*settings

	mu       sync.Mutex
	bindings int
}

// NewWrapper wraps obj. Relays are posted to sched and fired on b.
func NewWrapper(name string, obj Object, sched loop.Scheduler, b *bus.Bus, opts ...Option) *Wrapper {
	return newWrapper(name, obj, sched, b, newSettings(opts))
}

func newWrapper(name string, obj Object, sched loop.Scheduler, b *bus.Bus, s *settings) *Wrapper {
	return &Wrapper{
		name:     name,
		obj:      obj,
		sched:    sched,
		bus:      b,
		settings: s,
	}
}

// Name returns the namespace name the object was published under.
func (w *Wrapper) Name() string { return w.name }

// Object returns the underlying host object.
func (w *Wrapper) Object() Object { return w.obj }

// Bindings returns the number of live signal bindings.
func (w *Wrapper) Bindings() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bindings
}

// Invoke calls method on the host object. Synchronous results and errors are
// normalized into the returned future; host errors become *InvocationError
// and only affect this call.
func (w *Wrapper) Invoke(method string, args ...interface{}) *async.Future[interface{}] {
	start := time.Now()
	out := async.New[interface{}]()

	w.call(method, args).OnSettle(func(v interface{}, err error) {
		w.metrics.RecordInvoke(w.name, method, time.Since(start), err)
		if err != nil {
			ierr := &InvocationError{Object: w.name, Method: method, Err: err}
			w.log.WithField("object", w.name).WithField("method", method).WithError(err).Warn("remote call failed")
			events.NewEvent(events.EventCallFailed).
				Object(w.name).
				Method(method).
				ErrorFrom(err).
				Duration(time.Since(start)).
				LogTo(w.events)
			out.Reject(ierr)
			return
		}
		out.Resolve(v)
	})
	return out
}

func (w *Wrapper) call(method string, args []interface{}) (f *async.Future[interface{}]) {
	defer func() {
		if r := recover(); r != nil {
			f = async.Rejected[interface{}](fmt.Errorf("host panicked: %v", r))
		}
	}()
	f = w.obj.Call(method, args)
	if f == nil {
		f = async.Resolved[interface{}](nil)
	}
	return f
}

// Property reads a property synchronously.
func (w *Wrapper) Property(name string) (interface{}, error) {
	v, err := w.obj.Property(name)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", w.name, name, err)
	}
	return v, nil
}

// Execute runs a deferred call; it is the flush executor for a queue.
func (w *Wrapper) Execute(call queue.Call) *async.Future[interface{}] {
	if call.Kind == queue.KindProperty {
		v, err := w.Property(call.Name)
		if err != nil {
			return async.Rejected[interface{}](err)
		}
		return async.Resolved(v)
	}
	return w.Invoke(call.Name, call.Args...)
}

// BindSignal relays remoteSignal to localSignal on the bus. The relay is
// posted to the scheduler, so bus handlers run on a later turn and never
// inside the host's signal emission. transform may rewrite or drop the
// payload; nil relays it unchanged.
func (w *Wrapper) BindSignal(remoteSignal, localSignal string, transform Transform) (Disconnect, error) {
	disconnect, err := w.obj.Connect(remoteSignal, func(args ...interface{}) {
		payload := append([]interface{}(nil), args...)
		if !w.sched.Post(func() { w.relay(remoteSignal, localSignal, transform, payload) }) {
			w.log.WithField("signal", localSignal).Debug("scheduler closed, dropping relay")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("bind %s.%s: %w", w.name, remoteSignal, err)
	}

	w.mu.Lock()
	w.bindings++
	w.mu.Unlock()

	events.NewEvent(events.EventSignalBound).
		Object(w.name).
		Signal(localSignal).
		Metadata("remote", remoteSignal).
		LogTo(w.events)

	var once sync.Once
	return func() {
		once.Do(func() {
			if disconnect != nil {
				disconnect()
			}
			w.mu.Lock()
			w.bindings--
			w.mu.Unlock()
		})
	}, nil
}

func (w *Wrapper) relay(remoteSignal, localSignal string, transform Transform, payload []interface{}) {
	if transform != nil {
		out, ok := w.transform(transform, payload)
		if !ok {
			w.metrics.RecordRelay(localSignal, false)
			events.NewEvent(events.EventSignalDropped).
				Object(w.name).
				Signal(localSignal).
				Severity(events.SeverityDebug).
				LogTo(w.events)
			return
		}
		payload = out
	}

	w.bus.Fire(localSignal, payload...)
	w.metrics.RecordRelay(localSignal, true)
	events.NewEvent(events.EventSignalRelayed).
		Object(w.name).
		Signal(localSignal).
		Severity(events.SeverityDebug).
		Metadata("remote", remoteSignal).
		LogTo(w.events)
}

func (w *Wrapper) transform(fn Transform, payload []interface{}) (out []interface{}, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("object", w.name).WithField("panic", fmt.Sprint(r)).Error("signal transform panicked")
			out, ok = nil, false
		}
	}()
	return fn(payload)
}
