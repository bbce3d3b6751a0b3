package gojahost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
	"github.com/R3E-Network/hostbridge/internal/engine/loop"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
	"github.com/R3E-Network/hostbridge/pkg/logger"
)

const statusScript = `
globalThis.OriginOnlineStatus = {
	onlineState: true,
	onlineStateChanged: new Signal(),
	goOnline: function () {
		return new Promise(function (resolve) {
			setTimeout(function () { resolve(true); }, 10);
		});
	},
	add: function (a, b) { return a + b; },
	fail: function () { throw new Error("offline mode locked"); },
	reject: function () { return Promise.reject(new Error("denied")); }
};
`

func newHost(t *testing.T) *Host {
	t.Helper()
	h := New(WithLogger(logger.Discard()), WithTimeout(time.Second))
	h.Start()
	t.Cleanup(h.Stop)
	return h
}

func await(t *testing.T, f interface {
	Await(context.Context) (interface{}, error)
}) (interface{}, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestHost_LookupAfterPublish(t *testing.T) {
	h := newHost(t)

	_, ok := h.Lookup("OriginOnlineStatus")
	assert.False(t, ok)

	require.NoError(t, h.RunScript("status.js", statusScript))
	obj, ok := h.Lookup("OriginOnlineStatus")
	require.True(t, ok)

	v, err := obj.Property("onlineState")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = obj.Property("missing")
	assert.ErrorIs(t, err, remote.ErrNoSuchProperty)
}

func TestHost_Call(t *testing.T) {
	h := newHost(t)
	require.NoError(t, h.RunScript("status.js", statusScript))
	obj, ok := h.Lookup("OriginOnlineStatus")
	require.True(t, ok)

	v, err := await(t, obj.Call("add", []interface{}{2, 3}))
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)

	v, err = await(t, obj.Call("goOnline", nil))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = await(t, obj.Call("fail", nil))
	assert.ErrorContains(t, err, "offline mode locked")

	_, err = await(t, obj.Call("reject", nil))
	assert.ErrorContains(t, err, "denied")

	_, err = await(t, obj.Call("nope", nil))
	assert.ErrorIs(t, err, remote.ErrNoSuchMethod)
}

func TestHost_Signals(t *testing.T) {
	h := newHost(t)
	require.NoError(t, h.RunScript("status.js", statusScript))
	obj, ok := h.Lookup("OriginOnlineStatus")
	require.True(t, ok)

	got := make(chan []interface{}, 4)
	disconnect, err := obj.Connect("onlineStateChanged", func(args ...interface{}) { got <- args })
	require.NoError(t, err)

	require.NoError(t, h.RunScript("emit.js", `OriginOnlineStatus.onlineStateChanged.emit(false)`))
	select {
	case args := <-got:
		assert.Equal(t, []interface{}{false}, args)
	case <-time.After(time.Second):
		t.Fatal("signal not delivered")
	}

	disconnect()
	require.NoError(t, h.RunScript("emit.js", `OriginOnlineStatus.onlineStateChanged.emit(true)`))
	assert.Empty(t, got)

	_, err = obj.Connect("goOnline", func(...interface{}) {})
	assert.ErrorIs(t, err, remote.ErrNoSuchSignal)
	_, err = obj.Connect("missing", func(...interface{}) {})
	assert.ErrorIs(t, err, remote.ErrNoSuchSignal)
}

func TestHost_Stopped(t *testing.T) {
	h := New(WithLogger(logger.Discard()))
	h.Start()
	require.NoError(t, h.RunScript("status.js", statusScript))
	obj, ok := h.Lookup("OriginOnlineStatus")
	require.True(t, ok)
	h.Stop()

	_, ok = h.Lookup("OriginOnlineStatus")
	assert.False(t, ok)
	assert.ErrorIs(t, h.RunScript("x.js", "1"), ErrStopped)
	_, err := await(t, obj.Call("add", []interface{}{1, 1}))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestHost_BridgeResolvesDelayedPublish(t *testing.T) {
	h := newHost(t)
	require.NoError(t, h.RunScript("delayed.js", `setTimeout(function () {`+statusScript+`}, 50);`))

	sched := loop.New(logger.Discard())
	sched.Start()
	t.Cleanup(func() { _ = sched.Stop() })

	cfg := bridge.DefaultRuntimeConfig()
	cfg.PollInterval = 20 * time.Millisecond
	rt := bridge.NewNoOpRuntime(h, sched, cfg)

	v, err := await(t, rt.Proxy("OriginOnlineStatus").Invoke("add", 40, 2))
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)
}
