// Package user is the facade over the signed-in account.
package user

import (
	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
)

const (
	ObjectName = "OriginUser"

	// EventAuthChanged fires with a bool: true when a user is signed in.
	EventAuthChanged = "CLIENT_AUTHCHANGED"
)

// Info is the account summary returned by the client.
type Info struct {
	UserID      string `mapstructure:"userId"`
	PersonaID   string `mapstructure:"personaId"`
	DisplayName string `mapstructure:"originId"`
	Country     string `mapstructure:"country"`
	Underage    bool   `mapstructure:"isUnderage"`
}

// User exposes the signed-in account.
type User struct {
	proxy *bridge.Proxy
}

// Get returns the runtime's shared User.
func Get(rt *bridge.Runtime) *User {
	return bridge.Facade(rt, ObjectName, New)
}

// New builds the facade and registers its signal relay.
func New(rt *bridge.Runtime) *User {
	p := rt.Proxy(ObjectName)
	p.BindSignal("authenticationChanged", EventAuthChanged, nil)
	return &User{proxy: p}
}

// UserID returns the numeric account id as a string.
func (u *User) UserID() *async.Future[string] {
	return bridge.Read[string](u.proxy, "userId")
}

// Persona returns the active persona id.
func (u *User) Persona() *async.Future[string] {
	return bridge.Read[string](u.proxy, "personaId")
}

// Info fetches the account summary.
func (u *User) Info() *async.Future[Info] {
	return bridge.Call[Info](u.proxy, "userInfo")
}

// RequestLogout asks the client to sign the user out.
func (u *User) RequestLogout() *async.Future[struct{}] {
	return bridge.Discard(u.proxy.Invoke("requestLogout"))
}
