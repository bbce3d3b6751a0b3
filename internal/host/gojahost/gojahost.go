// Package gojahost simulates the native client with a JavaScript runtime.
// Host scripts publish objects on the global object, e.g.
//
//	setTimeout(function () {
//	    globalThis.OriginOnlineStatus = {
//	        onlineState: true,
//	        onlineStateChanged: new Signal(),
//	        goOnline: function () { return Promise.resolve(true); }
//	    };
//	}, 250);
//
// The VM is only touched on its event loop goroutine. Page code must be
// scheduled on a different loop: synchronous host operations block until
// the VM loop has run them.
package gojahost

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
	"github.com/R3E-Network/hostbridge/pkg/logger"
)

// DefaultTimeout bounds synchronous host operations.
const DefaultTimeout = 5 * time.Second

var (
	// ErrStopped is returned once the host loop has been stopped.
	ErrStopped = errors.New("goja host stopped")

	// ErrTimeout is returned when the host loop does not run a synchronous
	// operation in time.
	ErrTimeout = errors.New("goja host timed out")
)

const prelude = `
function Signal() { this._slots = []; }
Signal.prototype.connect = function (fn) { this._slots.push(fn); };
Signal.prototype.disconnect = function (fn) {
	var i = this._slots.indexOf(fn);
	if (i >= 0) { this._slots.splice(i, 1); }
};
Signal.prototype.emit = function () {
	var args = arguments;
	this._slots.slice().forEach(function (fn) { fn.apply(null, args); });
};
`

// Option configures a Host.
type Option func(*Host)

// WithTimeout sets the bound on synchronous operations.
func WithTimeout(d time.Duration) Option {
	return func(h *Host) {
		h.timeout = d
	}
}

// WithLogger sets the logger used by the script's log() function.
func WithLogger(l *logger.Logger) Option {
	return func(h *Host) {
		h.log = l
	}
}

// Host is a remote.Environment whose namespace is a goja global object.
type Host struct {
	loop    *eventloop.EventLoop
	timeout time.Duration
	log     *logger.Logger
	stopped atomic.Bool
}

// New creates a host and installs the Signal constructor and log().
// Call Start before use.
func New(opts ...Option) *Host {
	h := &Host{
		loop:    eventloop.NewEventLoop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.NewDefault("gojahost")
	}

	h.loop.Run(func(vm *goja.Runtime) {
		if _, err := vm.RunString(prelude); err != nil {
			panic(err)
		}
		_ = vm.Set("log", func(call goja.FunctionCall) goja.Value {
			parts := make([]interface{}, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				parts = append(parts, a.String())
			}
			h.log.Info(parts...)
			return goja.Undefined()
		})
	})
	return h
}

// Start runs the VM loop in the background.
func (h *Host) Start() {
	h.loop.Start()
}

// Stop terminates the VM loop. Pending timers are discarded.
func (h *Host) Stop() {
	if h.stopped.CompareAndSwap(false, true) {
		h.loop.Stop()
	}
}

func (h *Host) post(fn func(vm *goja.Runtime)) bool {
	if h.stopped.Load() {
		return false
	}
	h.loop.RunOnLoop(fn)
	return true
}

// RunScript evaluates src on the VM loop.
func (h *Host) RunScript(name, src string) error {
	return h.run(func(vm *goja.Runtime) error {
		_, err := vm.RunScript(name, src)
		return scriptError(err)
	})
}

// LoadFile evaluates the script at path.
func (h *Host) LoadFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load host script: %w", err)
	}
	return h.RunScript(path, string(src))
}

// Lookup implements remote.Environment. Lookup failures count as absence.
func (h *Host) Lookup(name string) (remote.Object, bool) {
	var found *object
	err := h.run(func(vm *goja.Runtime) error {
		v := vm.GlobalObject().Get(name)
		if !present(v) {
			return nil
		}
		found = &object{host: h, name: name, obj: v.ToObject(vm)}
		return nil
	})
	if err != nil {
		h.log.WithField("object", name).WithError(err).Debug("lookup failed")
		return nil, false
	}
	if found == nil {
		return nil, false
	}
	return found, true
}

// run executes fn on the VM loop and waits for it.
func (h *Host) run(fn func(vm *goja.Runtime) error) error {
	done := make(chan error, 1)
	ok := h.post(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("goja host panicked: %v", r)
			}
		}()
		done <- fn(vm)
	})
	if !ok {
		return ErrStopped
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrTimeout
	}
}

type object struct {
	host *Host
	name string
	obj  *goja.Object
}

// Call implements remote.Object. Returned promises are followed until they
// settle.
func (o *object) Call(method string, args []interface{}) *async.Future[interface{}] {
	fut := async.New[interface{}]()
	ok := o.host.post(func(vm *goja.Runtime) {
		fn, ok := goja.AssertFunction(o.obj.Get(method))
		if !ok {
			fut.Reject(fmt.Errorf("%w: %s", remote.ErrNoSuchMethod, method))
			return
		}
		vals := make([]goja.Value, len(args))
		for i, a := range args {
			vals[i] = vm.ToValue(a)
		}
		res, err := fn(o.obj, vals...)
		if err != nil {
			fut.Reject(scriptError(err))
			return
		}
		settle(vm, res, fut)
	})
	if !ok {
		fut.Reject(ErrStopped)
	}
	return fut
}

func settle(vm *goja.Runtime, res goja.Value, fut *async.Future[interface{}]) {
	p, ok := res.Export().(*goja.Promise)
	if !ok {
		fut.Resolve(export(res))
		return
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		fut.Resolve(export(p.Result()))
	case goja.PromiseStateRejected:
		fut.Reject(jsError(p.Result()))
	default:
		then, _ := goja.AssertFunction(res.ToObject(vm).Get("then"))
		onFulfilled := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			fut.Resolve(export(call.Argument(0)))
			return goja.Undefined()
		})
		onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			fut.Reject(jsError(call.Argument(0)))
			return goja.Undefined()
		})
		if _, err := then(res, onFulfilled, onRejected); err != nil {
			fut.Reject(scriptError(err))
		}
	}
}

// Property implements remote.Object.
func (o *object) Property(name string) (interface{}, error) {
	var out interface{}
	err := o.host.run(func(vm *goja.Runtime) error {
		v := o.obj.Get(name)
		if v == nil {
			return fmt.Errorf("%w: %s", remote.ErrNoSuchProperty, name)
		}
		out = export(v)
		return nil
	})
	return out, err
}

// Connect implements remote.Object. signal must be an object with
// connect/disconnect functions, such as a Signal from the prelude. fn runs
// on the VM loop goroutine.
func (o *object) Connect(signal string, fn remote.SignalFunc) (remote.Disconnect, error) {
	var (
		sig *goja.Object
		cb  goja.Value
	)
	err := o.host.run(func(vm *goja.Runtime) error {
		v := o.obj.Get(signal)
		if !present(v) {
			return fmt.Errorf("%w: %s", remote.ErrNoSuchSignal, signal)
		}
		sig = v.ToObject(vm)
		connect, ok := goja.AssertFunction(sig.Get("connect"))
		if !ok {
			return fmt.Errorf("%w: %s has no connect", remote.ErrNoSuchSignal, signal)
		}
		cb = vm.ToValue(func(call goja.FunctionCall) goja.Value {
			args := make([]interface{}, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = export(a)
			}
			fn(args...)
			return goja.Undefined()
		})
		_, err := connect(sig, cb)
		return scriptError(err)
	})
	if err != nil {
		return nil, err
	}

	return func() {
		o.host.post(func(vm *goja.Runtime) {
			if disconnect, ok := goja.AssertFunction(sig.Get("disconnect")); ok {
				_, _ = disconnect(sig, cb)
			}
		})
	}, nil
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

func export(v goja.Value) interface{} {
	if v == nil {
		return nil
	}
	return v.Export()
}

func jsError(v goja.Value) error {
	if v == nil {
		return errors.New("promise rejected")
	}
	return errors.New(v.String())
}

func scriptError(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return jsError(ex.Value())
	}
	return err
}

var (
	_ remote.Environment = (*Host)(nil)
	_ remote.Object      = (*object)(nil)
)
