// Package desktopservices is the facade over OS integration offered by the
// client: external browser, taskbar flashing and the dock badge.
package desktopservices

import (
	"fmt"
	"net/url"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
)

const (
	ObjectName = "OriginDesktopServices"

	// EventDockIconClicked fires with no payload.
	EventDockIconClicked = "CLIENT_DOCKICONCLICKED"
)

// DesktopServices wraps the client's OS integration.
type DesktopServices struct {
	proxy *bridge.Proxy
}

// Get returns the runtime's shared DesktopServices.
func Get(rt *bridge.Runtime) *DesktopServices {
	return bridge.Facade(rt, ObjectName, New)
}

// New builds the facade and registers its signal relay.
func New(rt *bridge.Runtime) *DesktopServices {
	p := rt.Proxy(ObjectName)
	p.BindSignal("dockIconClicked", EventDockIconClicked, nil)
	return &DesktopServices{proxy: p}
}

// OpenExternalURL opens rawURL in the system browser. Only http and https
// URLs are passed to the client.
func (d *DesktopServices) OpenExternalURL(rawURL string) *async.Future[struct{}] {
	u, err := url.Parse(rawURL)
	if err != nil {
		return async.Rejected[struct{}](fmt.Errorf("open external url: %w", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return async.Rejected[struct{}](fmt.Errorf("open external url: unsupported scheme %q", u.Scheme))
	}
	return bridge.Discard(d.proxy.Invoke("asyncOpenUrl", u.String()))
}

// FlashIcon flashes the taskbar icon count times.
func (d *DesktopServices) FlashIcon(count int) *async.Future[struct{}] {
	return bridge.Discard(d.proxy.Invoke("flashIcon", count))
}

// SetDockBadge sets the dock tile text; an empty string clears it.
func (d *DesktopServices) SetDockBadge(text string) *async.Future[struct{}] {
	return bridge.Discard(d.proxy.Invoke("setDockTile", text))
}
