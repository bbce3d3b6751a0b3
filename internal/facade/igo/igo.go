// Package igo is the facade over the in-game overlay.
package igo

import (
	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
)

const (
	ObjectName = "OriginIGO"

	// EventStateChanged fires with a bool: true when the overlay is visible.
	EventStateChanged = "CLIENT_IGOSTATECHANGED"
)

// Cursor names accepted by SetCursor.
const (
	CursorArrow   = "arrow"
	CursorPointer = "pointer"
	CursorText    = "ibeam"
)

// IGO controls the overlay shown on top of running games.
type IGO struct {
	proxy *bridge.Proxy
}

// Get returns the runtime's shared IGO.
func Get(rt *bridge.Runtime) *IGO {
	return bridge.Facade(rt, ObjectName, New)
}

// New builds the facade and registers its signal relay.
func New(rt *bridge.Runtime) *IGO {
	p := rt.Proxy(ObjectName)
	p.BindSignal("stateChanged", EventStateChanged, visible)
	return &IGO{proxy: p}
}

// The client reports either a bool or {"visible": bool}.
func visible(args []interface{}) ([]interface{}, bool) {
	if len(args) == 0 {
		return nil, false
	}
	if m, ok := args[0].(map[string]interface{}); ok {
		v, err := bridge.Decode[bool](m["visible"])
		return []interface{}{v}, err == nil
	}
	v, err := bridge.Decode[bool](args[0])
	return []interface{}{v}, err == nil
}

// IsAvailable reports whether the overlay can be used. False without a client.
func (i *IGO) IsAvailable() *async.Future[bool] {
	return bridge.Fallback(bridge.Call[bool](i.proxy, "isAvailable"), false)
}

// OpenWebBrowser opens the overlay browser at url.
func (i *IGO) OpenWebBrowser(url string) *async.Future[struct{}] {
	return bridge.Discard(i.proxy.Invoke("openIGOWebBrowser", url))
}

// SetCursor changes the overlay cursor.
func (i *IGO) SetCursor(cursor string) *async.Future[struct{}] {
	return bridge.Discard(i.proxy.Invoke("setCursor", cursor))
}
