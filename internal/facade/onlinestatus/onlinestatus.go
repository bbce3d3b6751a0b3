// Package onlinestatus is the facade over the client's connectivity object.
package onlinestatus

import (
	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
)

const (
	// ObjectName is the host namespace name of the remote object.
	ObjectName = "OriginOnlineStatus"

	// EventOnlineStateChanged fires with a bool: true when the client is online.
	EventOnlineStateChanged = "CLIENT_ONLINESTATECHANGED"
)

// OnlineStatus reports and changes the client's online state.
type OnlineStatus struct {
	proxy *bridge.Proxy
}

// Get returns the runtime's shared OnlineStatus.
func Get(rt *bridge.Runtime) *OnlineStatus {
	return bridge.Facade(rt, ObjectName, New)
}

// New builds the facade and registers its signal relay.
func New(rt *bridge.Runtime) *OnlineStatus {
	p := rt.Proxy(ObjectName)
	p.BindSignal("onlineStateChanged", EventOnlineStateChanged, toBool)
	return &OnlineStatus{proxy: p}
}

func toBool(args []interface{}) ([]interface{}, bool) {
	if len(args) == 0 {
		return nil, false
	}
	online, err := bridge.Decode[bool](args[0])
	if err != nil {
		return nil, false
	}
	return []interface{}{online}, true
}

// IsOnline reports whether the client is online. Without a client the page
// is treated as offline.
func (s *OnlineStatus) IsOnline() *async.Future[bool] {
	return bridge.Fallback(bridge.Read[bool](s.proxy, "onlineState"), false)
}

// GoOnline asks the client to reconnect; resolves to whether it succeeded.
func (s *OnlineStatus) GoOnline() *async.Future[bool] {
	return bridge.Call[bool](s.proxy, "goOnline")
}

// RequestOfflineMode asks the client to switch to offline mode.
func (s *OnlineStatus) RequestOfflineMode() *async.Future[struct{}] {
	return bridge.Discard(s.proxy.Invoke("requestOfflineMode"))
}
