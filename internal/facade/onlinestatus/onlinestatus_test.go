package onlinestatus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
	"github.com/R3E-Network/hostbridge/internal/engine/loop"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
	"github.com/R3E-Network/hostbridge/internal/host/memory"
)

const poll = 100 * time.Millisecond

func newRuntime(env remote.Environment) (*bridge.Runtime, *loop.Manual) {
	sched := loop.NewManual()
	cfg := bridge.DefaultRuntimeConfig()
	cfg.PollInterval = poll
	cfg.MaxAttempts = 10
	return bridge.NewNoOpRuntime(env, sched, cfg), sched
}

func TestOnlineStatus_QueuedCallAndDeferredRelay(t *testing.T) {
	ns := memory.NewNamespace()
	rt, sched := newRuntime(ns)
	status := Get(rt)

	online := status.IsOnline()
	assert.False(t, online.Settled())

	sched.Advance(3 * poll)
	assert.False(t, online.Settled())

	obj := memory.NewObject().
		WithProperty("onlineState", true).
		WithSignal("onlineStateChanged")
	ns.Publish(ObjectName, obj)
	sched.Advance(poll)

	v, err := online.Result()
	require.NoError(t, err)
	assert.True(t, v)

	var got []interface{}
	rt.Bus.On(EventOnlineStateChanged, func(args ...interface{}) { got = append(got, args...) })

	require.NoError(t, obj.Emit("onlineStateChanged", false))
	assert.Empty(t, got, "subscriber must not run inside the host emission")

	sched.Tick()
	assert.Equal(t, []interface{}{false}, got)
}

func TestOnlineStatus_Calls(t *testing.T) {
	ns := memory.NewNamespace()
	obj := memory.NewObject().
		WithSignal("onlineStateChanged").
		WithMethod("goOnline", func(args ...interface{}) (interface{}, error) { return true, nil }).
		WithMethod("requestOfflineMode", func(args ...interface{}) (interface{}, error) { return nil, nil })
	ns.Publish(ObjectName, obj)

	rt, sched := newRuntime(ns)
	status := Get(rt)
	offline := status.RequestOfflineMode()
	sched.Drain()

	_, err := offline.Result()
	require.NoError(t, err)

	ok, err := status.GoOnline().Result()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"requestOfflineMode", "goOnline"}, obj.Calls())
}

func TestOnlineStatus_NoHostFallsBackToOffline(t *testing.T) {
	rt, _ := newRuntime(nil)

	online, err := Get(rt).IsOnline().Result()
	require.NoError(t, err)
	assert.False(t, online)

	_, err = Get(rt).GoOnline().Result()
	assert.ErrorIs(t, err, bridge.ErrHostNotAvailable)
}

func TestOnlineStatus_SharedAcrossWindows(t *testing.T) {
	rt, _ := newRuntime(memory.NewNamespace())
	assert.Same(t, Get(rt), Get(rt))
}

func TestToBool(t *testing.T) {
	out, ok := toBool([]interface{}{"false"})
	require.True(t, ok)
	assert.Equal(t, []interface{}{false}, out)

	_, ok = toBool(nil)
	assert.False(t, ok)
}
