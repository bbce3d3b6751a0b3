package bridge

import (
	"errors"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/events"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
)

// Facades holds one instance per facade name for the page lifetime, so
// every window shares the same facade and its signal bindings.
type Facades struct {
	mu      sync.Mutex
	entries map[string]*facadeEntry
}

type facadeEntry struct {
	once  sync.Once
	value interface{}
}

// NewFacades returns an empty registry.
func NewFacades() *Facades {
	return &Facades{entries: make(map[string]*facadeEntry)}
}

// GetOrCreate returns the facade registered under name, building it on
// first use. build runs at most once per name.
func (f *Facades) GetOrCreate(name string, build func() interface{}) interface{} {
	f.mu.Lock()
	e, ok := f.entries[name]
	if !ok {
		e = &facadeEntry{}
		f.entries[name] = e
	}
	f.mu.Unlock()

	e.once.Do(func() {
		e.value = build()
	})
	return e.value
}

// Names returns the facade names created so far.
func (f *Facades) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Facade returns the runtime's singleton facade of type T.
func Facade[T any](rt *Runtime, name string, build func(*Runtime) T) T {
	return rt.Facades.GetOrCreate(name, func() interface{} {
		events.NewEvent(events.EventFacadeCreated).Object(name).LogTo(rt.Events)
		return build(rt)
	}).(T)
}

// Decode converts a host value into T. Values already of type T pass
// through; maps and loosely typed scalars are decoded with mapstructure.
func Decode[T any](v interface{}) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(v); err != nil {
		return out, err
	}
	return out, nil
}

// Call invokes method through p and decodes the result into T.
func Call[T any](p *Proxy, method string, args ...interface{}) *async.Future[T] {
	return async.Then(p.Invoke(method, args...), Decode[T])
}

// Read reads property through p and decodes it into T.
func Read[T any](p *Proxy, property string) *async.Future[T] {
	return async.Then(p.Read(property), Decode[T])
}

// Fallback replaces an unavailable-object failure with value. Other errors
// pass through.
func Fallback[T any](f *async.Future[T], value T) *async.Future[T] {
	return async.Recover(f, func(err error) (T, error) {
		if errors.Is(err, remote.ErrRemoteObjectUnavailable) {
			return value, nil
		}
		var zero T
		return zero, err
	})
}

// Discard drops the result of a fire-and-forget call, keeping the error.
func Discard(f *async.Future[interface{}]) *async.Future[struct{}] {
	return async.Then(f, func(interface{}) (struct{}, error) {
		return struct{}{}, nil
	})
}
