package main

import (
	"time"

	"github.com/R3E-Network/hostbridge/internal/facade/desktopservices"
	"github.com/R3E-Network/hostbridge/internal/facade/dirtybits"
	"github.com/R3E-Network/hostbridge/internal/facade/igo"
	"github.com/R3E-Network/hostbridge/internal/facade/onlinestatus"
	"github.com/R3E-Network/hostbridge/internal/facade/user"
	"github.com/R3E-Network/hostbridge/internal/host/memory"
	"github.com/R3E-Network/hostbridge/pkg/logger"
)

// demoNamespace returns an in-process client that publishes its objects
// after delay, the way the native client does once its own startup is done.
func demoNamespace(delay time.Duration, log *logger.Logger) *memory.Namespace {
	ns := memory.NewNamespace()
	objects := demoObjects(log)
	time.AfterFunc(delay, func() {
		for name, obj := range objects {
			ns.Publish(name, obj)
		}
		log.WithField("objects", len(objects)).Info("demo client published objects")
	})
	return ns
}

func demoObjects(log *logger.Logger) map[string]*memory.Object {
	status := memory.NewObject().
		WithProperty("onlineState", true).
		WithSignal("onlineStateChanged")
	setOnline := func(v bool) {
		status.SetProperty("onlineState", v)
		_ = status.Emit("onlineStateChanged", v)
	}
	status.
		WithMethod("goOnline", func(args ...interface{}) (interface{}, error) {
			setOnline(true)
			return true, nil
		}).
		WithMethod("requestOfflineMode", func(args ...interface{}) (interface{}, error) {
			setOnline(false)
			return nil, nil
		})

	usr := memory.NewObject().
		WithProperty("userId", "1000123").
		WithProperty("personaId", "p-1000123").
		WithSignal("authenticationChanged")
	usr.
		WithMethod("userInfo", func(args ...interface{}) (interface{}, error) {
			return map[string]interface{}{
				"userId":     "1000123",
				"personaId":  "p-1000123",
				"originId":   "demo_player",
				"country":    "US",
				"isUnderage": false,
			}, nil
		}).
		WithMethod("requestLogout", func(args ...interface{}) (interface{}, error) {
			_ = usr.Emit("authenticationChanged", false)
			return nil, nil
		})

	logCall := func(object string) memory.Method {
		return func(args ...interface{}) (interface{}, error) {
			log.WithField("object", object).WithField("args", args).Info("demo client call")
			return nil, nil
		}
	}

	desktop := memory.NewObject().
		WithSignal("dockIconClicked").
		WithMethod("asyncOpenUrl", logCall(desktopservices.ObjectName)).
		WithMethod("flashIcon", logCall(desktopservices.ObjectName)).
		WithMethod("setDockTile", logCall(desktopservices.ObjectName))

	overlay := memory.NewObject().
		WithSignal("stateChanged").
		WithMethod("isAvailable", func(args ...interface{}) (interface{}, error) { return false, nil }).
		WithMethod("openIGOWebBrowser", logCall(igo.ObjectName)).
		WithMethod("setCursor", logCall(igo.ObjectName))

	bits := memory.NewObject().
		WithSignal("update").
		WithProperty("contexts", []string{"entitlement", "friends", "settings"})
	bits.WithMethod("connect", func(args ...interface{}) (interface{}, error) {
		_ = bits.Emit("update", "settings", map[string]interface{}{"reason": "connected"})
		return nil, nil
	})

	return map[string]*memory.Object{
		onlinestatus.ObjectName:    status,
		user.ObjectName:            usr,
		desktopservices.ObjectName: desktop,
		igo.ObjectName:             overlay,
		dirtybits.ObjectName:       bits,
	}
}
