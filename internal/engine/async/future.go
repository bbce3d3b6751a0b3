// Package async provides the single-assignment future used for every
// deferred result crossing the bridge.
package async

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPending is returned by Result while the future is unsettled.
	ErrPending = errors.New("async: future not settled")

	// ErrNilRejection replaces a nil error passed to Reject.
	ErrNilRejection = errors.New("async: rejected with nil error")
)

// Future holds a value or error that becomes available later.
// It settles exactly once; later Resolve/Reject calls are ignored.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []func(T, error)
}

// New returns an unsettled future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve settles the future with v. Reports whether this call settled it.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err. Reports whether this call settled it.
func (f *Future[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether a value or error is available.
func (f *Future[T]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Result returns the settled value, or ErrPending.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.settled {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnSettle registers fn to run when the future settles. fn runs on the
// settling goroutine, or immediately if the future is already settled.
func (f *Future[T]) OnSettle(fn func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	fn(v, err)
}

// Forward settles dst with the outcome of src.
func Forward[T any](src, dst *Future[T]) {
	src.OnSettle(func(v T, err error) {
		if err != nil {
			dst.Reject(err)
			return
		}
		dst.Resolve(v)
	})
}

// Then derives a future by applying fn to a successful result.
// Errors from src skip fn and propagate unchanged.
func Then[T, U any](src *Future[T], fn func(T) (U, error)) *Future[U] {
	out := New[U]()
	src.OnSettle(func(v T, err error) {
		if err != nil {
			out.Reject(err)
			return
		}
		u, err := fn(v)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(u)
	})
	return out
}

// Recover derives a future whose errors are passed through fn.
// fn may return a replacement value with a nil error.
func Recover[T any](src *Future[T], fn func(error) (T, error)) *Future[T] {
	out := New[T]()
	src.OnSettle(func(v T, err error) {
		if err == nil {
			out.Resolve(v)
			return
		}
		v, err = fn(err)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(v)
	})
	return out
}
