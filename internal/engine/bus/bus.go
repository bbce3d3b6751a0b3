// Package bus is the page-side publish/subscribe hub keyed by signal name.
// Delivery is synchronous and in registration order; a failing handler is
// isolated from the firer and from the handlers after it.
package bus

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/R3E-Network/hostbridge/pkg/logger"
)

// ErrHandlerFailed matches every *HandlerError.
var ErrHandlerFailed = errors.New("bus: handler failed")

// Handler receives the payload of a fired signal.
type Handler func(args ...interface{})

// ErrorHandler is a Handler that can report failure by returning an error.
type ErrorHandler func(args ...interface{}) error

// Token identifies one registration. Tokens are never reused within a Bus.
type Token uint64

// HandlerError reports a handler that panicked or returned an error during Fire.
type HandlerError struct {
	Signal string
	Token  Token
	Value  interface{}
}

// Error implements error.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("bus: handler %d for %q failed: %v", e.Token, e.Signal, e.Value)
}

// Is matches ErrHandlerFailed.
func (e *HandlerError) Is(target error) bool {
	return target == ErrHandlerFailed
}

// Unwrap returns the returned error, or the panic value when it was an error.
func (e *HandlerError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// FailureFunc observes isolated handler failures.
type FailureFunc func(*HandlerError)

type subscription struct {
	token   Token
	handler ErrorHandler
	once    bool
	fired   atomic.Bool
}

// Bus maps signal names to ordered handler lists.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]*subscription
	nextToken uint64

	log       *logger.Logger
	onFailure FailureFunc
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger handler failures are reported to.
func WithLogger(l *logger.Logger) Option {
	return func(b *Bus) {
		b.log = l
	}
}

// WithFailureHook registers fn to observe handler failures.
func WithFailureHook(fn FailureFunc) Option {
	return func(b *Bus) {
		b.onFailure = fn
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[string][]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.NewDefault("bus")
	}
	return b
}

// On registers handler for signal. Registering the same handler twice
// yields two independent registrations.
func (b *Bus) On(signal string, handler Handler) Token {
	return b.add(signal, plain(handler), false)
}

// OnError registers a handler whose returned error is reported like a panic.
func (b *Bus) OnError(signal string, handler ErrorHandler) Token {
	return b.add(signal, handler, false)
}

// Once registers handler to run on the next fire of signal only.
func (b *Bus) Once(signal string, handler Handler) Token {
	return b.add(signal, plain(handler), true)
}

func plain(h Handler) ErrorHandler {
	return func(args ...interface{}) error {
		h(args...)
		return nil
	}
}

func (b *Bus) add(signal string, handler ErrorHandler, once bool) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextToken++
	sub := &subscription{
		token:   Token(b.nextToken),
		handler: handler,
		once:    once,
	}
	b.subs[signal] = append(b.subs[signal], sub)
	return sub.token
}

// Off removes the registration identified by token. Removing an unknown
// or already removed token is a no-op. Reports whether a registration was removed.
func (b *Bus) Off(signal string, token Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remove(signal, token)
}

func (b *Bus) remove(signal string, token Token) bool {
	subs := b.subs[signal]
	for i, s := range subs {
		if s.token != token {
			continue
		}
		next := make([]*subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, signal)
		} else {
			b.subs[signal] = next
		}
		return true
	}
	return false
}

// Fire calls every handler registered for signal when Fire starts, in
// registration order. Handlers added or removed during the fire take effect
// on later fires. Fire never panics because of a handler.
func (b *Bus) Fire(signal string, args ...interface{}) {
	b.mu.RLock()
	snapshot := b.subs[signal]
	b.mu.RUnlock()

	for _, s := range snapshot {
		if s.once {
			if !s.fired.CompareAndSwap(false, true) {
				continue
			}
			b.Off(signal, s.token)
		}
		b.invoke(signal, s, args)
	}
}

func (b *Bus) invoke(signal string, s *subscription, args []interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.report(&HandlerError{Signal: signal, Token: s.token, Value: r})
		}
	}()
	if err := s.handler(args...); err != nil {
		b.report(&HandlerError{Signal: signal, Token: s.token, Value: err})
	}
}

func (b *Bus) report(herr *HandlerError) {
	b.log.WithField("signal", herr.Signal).WithError(herr).Error("signal handler failed")
	if b.onFailure != nil {
		b.onFailure(herr)
	}
}

// Count returns the number of handlers registered for signal.
func (b *Bus) Count(signal string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[signal])
}

// Signals returns the names with at least one handler, sorted.
func (b *Bus) Signals() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.subs))
	for name := range b.subs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes every registration.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]*subscription)
}
