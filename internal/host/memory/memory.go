// Package memory is an in-process host: a namespace of Go objects with
// methods, properties and signals. Tests use it as the native client, and Go
// programs embedding the bridge can publish their own objects through it.
package memory

import (
	"fmt"
	"sync"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
)

// Namespace is a remote.Environment backed by a map.
type Namespace struct {
	mu      sync.RWMutex
	objects map[string]remote.Object
	lookups map[string]int
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{
		objects: make(map[string]remote.Object),
		lookups: make(map[string]int),
	}
}

// Publish makes obj visible under name, replacing any previous object.
func (n *Namespace) Publish(name string, obj remote.Object) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.objects[name] = obj
}

// Unpublish removes name.
func (n *Namespace) Unpublish(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.objects, name)
}

// Lookup implements remote.Environment.
func (n *Namespace) Lookup(name string) (remote.Object, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lookups[name]++
	obj, ok := n.objects[name]
	return obj, ok
}

// Lookups returns how many times name was looked up.
func (n *Namespace) Lookups(name string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lookups[name]
}

// Method is a synchronous host method.
type Method func(args ...interface{}) (interface{}, error)

// AsyncMethod is a host method that completes later.
type AsyncMethod func(args ...interface{}) *async.Future[interface{}]

// Object is a host object assembled with the builder methods.
type Object struct {
	mu      sync.RWMutex
	methods map[string]AsyncMethod
	props   map[string]interface{}
	signals map[string]*signal
	calls   []string
}

type slot struct {
	id uint64
	fn remote.SignalFunc
}

type signal struct {
	slots  []slot
	nextID uint64
}

// NewObject returns an object with no members.
func NewObject() *Object {
	return &Object{
		methods: make(map[string]AsyncMethod),
		props:   make(map[string]interface{}),
		signals: make(map[string]*signal),
	}
}

// WithMethod adds a synchronous method.
func (o *Object) WithMethod(name string, fn Method) *Object {
	return o.WithAsyncMethod(name, func(args ...interface{}) *async.Future[interface{}] {
		v, err := fn(args...)
		if err != nil {
			return async.Rejected[interface{}](err)
		}
		return async.Resolved(v)
	})
}

// WithAsyncMethod adds a method returning a future.
func (o *Object) WithAsyncMethod(name string, fn AsyncMethod) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.methods[name] = fn
	return o
}

// WithProperty sets a property value.
func (o *Object) WithProperty(name string, value interface{}) *Object {
	o.SetProperty(name, value)
	return o
}

// WithSignal declares a signal page code may connect to.
func (o *Object) WithSignal(names ...string) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, name := range names {
		if _, ok := o.signals[name]; !ok {
			o.signals[name] = &signal{}
		}
	}
	return o
}

// SetProperty updates a property value.
func (o *Object) SetProperty(name string, value interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.props[name] = value
}

// Call implements remote.Object.
func (o *Object) Call(method string, args []interface{}) *async.Future[interface{}] {
	o.mu.Lock()
	fn, ok := o.methods[method]
	o.calls = append(o.calls, method)
	o.mu.Unlock()

	if !ok {
		return async.Rejected[interface{}](fmt.Errorf("%w: %s", remote.ErrNoSuchMethod, method))
	}
	return fn(args...)
}

// Property implements remote.Object.
func (o *Object) Property(name string) (interface{}, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.props[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNoSuchProperty, name)
	}
	return v, nil
}

// Connect implements remote.Object.
func (o *Object) Connect(name string, fn remote.SignalFunc) (remote.Disconnect, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sig, ok := o.signals[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNoSuchSignal, name)
	}
	sig.nextID++
	id := sig.nextID
	sig.slots = append(sig.slots, slot{id: id, fn: fn})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range sig.slots {
			if s.id == id {
				sig.slots = append(sig.slots[:i:i], sig.slots[i+1:]...)
				return
			}
		}
	}, nil
}

// Emit fires a signal, calling connected functions synchronously on the
// calling goroutine, the way a native host would.
func (o *Object) Emit(name string, args ...interface{}) error {
	o.mu.RLock()
	sig, ok := o.signals[name]
	var slots []slot
	if ok {
		slots = append(slots, sig.slots...)
	}
	o.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", remote.ErrNoSuchSignal, name)
	}
	for _, s := range slots {
		s.fn(args...)
	}
	return nil
}

// Connections returns the number of functions connected to a signal.
func (o *Object) Connections(name string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if sig, ok := o.signals[name]; ok {
		return len(sig.slots)
	}
	return 0
}

// Calls returns invoked method names in call order.
func (o *Object) Calls() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.calls...)
}

var (
	_ remote.Environment = (*Namespace)(nil)
	_ remote.Object      = (*Object)(nil)
)
