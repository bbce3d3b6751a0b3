// Package dirtybits is the facade over the client's change notification
// channel. The client pushes one "update" signal for every context; the
// facade relays it as DIRTYBITS_UPDATE and fans it out again as
// DIRTYBITS_<CONTEXT> so pages can listen to just the contexts they render.
package dirtybits

import (
	"strings"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
	"github.com/R3E-Network/hostbridge/internal/engine/bus"
)

const (
	ObjectName = "OriginDirtyBits"

	// EventUpdate fires with (context string, data).
	EventUpdate = "DIRTYBITS_UPDATE"

	eventPrefix = "DIRTYBITS_"
)

// Update is one change notification.
type Update struct {
	Context string      `mapstructure:"context"`
	Data    interface{} `mapstructure:"data"`
}

// DirtyBits subscribes pages to change notifications.
type DirtyBits struct {
	proxy *bridge.Proxy
	bus   *bus.Bus
}

// Get returns the runtime's shared DirtyBits.
func Get(rt *bridge.Runtime) *DirtyBits {
	return bridge.Facade(rt, ObjectName, New)
}

// New builds the facade, relays "update" and installs the per-context
// fan-out on the runtime bus.
func New(rt *bridge.Runtime) *DirtyBits {
	p := rt.Proxy(ObjectName)
	p.BindSignal("update", EventUpdate, normalize)

	d := &DirtyBits{proxy: p, bus: rt.Bus}
	rt.Bus.On(EventUpdate, d.fanOut)
	return d
}

// EventName returns the bus event fired for context.
func EventName(context string) string {
	return eventPrefix + strings.ToUpper(context)
}

// The client sends either ("context", data) or ({context, data}).
func normalize(args []interface{}) ([]interface{}, bool) {
	if len(args) == 0 {
		return nil, false
	}
	if ctx, ok := args[0].(string); ok {
		if ctx == "" {
			return nil, false
		}
		var data interface{}
		if len(args) > 1 {
			data = args[1]
		}
		return []interface{}{ctx, data}, true
	}
	u, err := bridge.Decode[Update](args[0])
	if err != nil || u.Context == "" {
		return nil, false
	}
	return []interface{}{u.Context, u.Data}, true
}

func (d *DirtyBits) fanOut(args ...interface{}) {
	if len(args) < 2 {
		return
	}
	ctx, _ := args[0].(string)
	d.bus.Fire(EventName(ctx), args[1])
}

// Subscribe calls fn with the data of every update for context. The returned
// function unsubscribes.
func (d *DirtyBits) Subscribe(context string, fn func(data interface{})) func() {
	name := EventName(context)
	tok := d.bus.On(name, func(args ...interface{}) {
		var data interface{}
		if len(args) > 0 {
			data = args[0]
		}
		fn(data)
	})
	return func() { d.bus.Off(name, tok) }
}

// Connect asks the client to start pushing updates.
func (d *DirtyBits) Connect() *async.Future[struct{}] {
	return bridge.Discard(d.proxy.Invoke("connect"))
}

// Contexts returns the contexts the client publishes updates for. Empty
// without a client.
func (d *DirtyBits) Contexts() *async.Future[[]string] {
	return bridge.Fallback(bridge.Read[[]string](d.proxy, "contexts"), nil)
}
