// Package remote resolves named objects published by the native host and
// wraps them so page code can call methods and observe signals without
// running inside the host's call stack.
package remote

import (
	"errors"
	"fmt"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
)

// SignalFunc receives the arguments of a host signal.
type SignalFunc func(args ...interface{})

// Disconnect removes a signal connection. Calling it more than once is harmless.
type Disconnect func()

// Object is a capability published by the host.
type Object interface {
	// Call invokes method. The future may already be settled on return.
	Call(method string, args []interface{}) *async.Future[interface{}]

	// Property reads a property synchronously.
	Property(name string) (interface{}, error)

	// Connect subscribes fn to signal. The host may call fn from any
	// goroutine, including inside Call.
	Connect(signal string, fn SignalFunc) (Disconnect, error)
}

// Environment is the host namespace objects are looked up in.
type Environment interface {
	// Lookup reports the object published under name. Absence means
	// "not yet", not "never".
	Lookup(name string) (Object, bool)
}

// EnvironmentFunc adapts a function to Environment.
type EnvironmentFunc func(name string) (Object, bool)

// Lookup implements Environment.
func (f EnvironmentFunc) Lookup(name string) (Object, bool) {
	return f(name)
}

// Transform rewrites a signal payload before it is relayed. Returning false
// drops the relay.
type Transform func(args []interface{}) ([]interface{}, bool)

var (
	// ErrRemoteObjectUnavailable means the object never appeared. Terminal.
	ErrRemoteObjectUnavailable = errors.New("remote object unavailable")

	// ErrHostNotAvailable means there is no host environment at all.
	ErrHostNotAvailable = errors.New("host not available")

	// ErrInvocationFailed matches every *InvocationError.
	ErrInvocationFailed = errors.New("remote invocation failed")

	// ErrNoSuchMethod is returned by hosts for unknown methods.
	ErrNoSuchMethod = errors.New("no such method")

	// ErrNoSuchProperty is returned by hosts for unknown properties.
	ErrNoSuchProperty = errors.New("no such property")

	// ErrNoSuchSignal is returned by hosts for unknown signals.
	ErrNoSuchSignal = errors.New("no such signal")

	// ErrNotResolved is returned by synchronous reads before resolution.
	ErrNotResolved = errors.New("remote object not resolved")

	// ErrClosed is the cause for handles still unresolved when the registry
	// is closed or its scheduler stops accepting probes.
	ErrClosed = errors.New("registry closed")
)

// UnavailableError reports a handle that failed to resolve.
type UnavailableError struct {
	Name     string
	Attempts int
	Cause    error
}

// Error implements error.
func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("remote object %q unavailable: %v", e.Name, e.Cause)
	}
	return fmt.Sprintf("remote object %q unavailable after %d probes", e.Name, e.Attempts)
}

// Is matches ErrRemoteObjectUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrRemoteObjectUnavailable
}

// Unwrap returns the cause, if any.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// InvocationError wraps an error raised by the host for one call.
type InvocationError struct {
	Object string
	Method string
	Err    error
}

// Error implements error.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Object, e.Method, e.Err)
}

// Is matches ErrInvocationFailed.
func (e *InvocationError) Is(target error) bool {
	return target == ErrInvocationFailed
}

// Unwrap returns the host error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}
