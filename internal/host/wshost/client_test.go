package wshost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
	"github.com/R3E-Network/hostbridge/internal/engine/loop"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
	"github.com/R3E-Network/hostbridge/internal/facade/user"
	"github.com/R3E-Network/hostbridge/pkg/logger"
)

// fakeHost plays the native client: it publishes OriginUser, answers calls
// and emits authenticationChanged as soon as the page connects to it.
type fakeHost struct {
	mu       sync.Mutex
	received []string
}

func (f *fakeHost) record(e *Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, e.Type+":"+e.Signal+e.Method)
}

func (f *fakeHost) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	write := func(e *Envelope) {
		data, _ := Encode(e)
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}

	write(&Envelope{Type: "hello"})
	write(&Envelope{
		Type:       TypePublish,
		Object:     user.ObjectName,
		Properties: map[string]interface{}{"userId": "1000123", "personaId": "p-77"},
		Signals:    []string{"authenticationChanged"},
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		e, err := Decode(data)
		if err != nil {
			return
		}
		f.record(e)

		switch e.Type {
		case TypeCall:
			switch e.Method {
			case "hang":
			case "unpublish":
				write(&Envelope{Type: TypeUnpublish, Object: e.Object})
				write(&Envelope{Type: TypeResult, ID: e.ID})
			case "republish":
				write(&Envelope{
					Type:       TypePublish,
					Object:     e.Object,
					Properties: map[string]interface{}{"country": "SE"},
					Signals:    []string{"authenticationChanged", "personaChanged"},
				})
				write(&Envelope{Type: TypeSignal, Object: e.Object, Signal: "authenticationChanged", Args: []interface{}{false}})
				write(&Envelope{Type: TypeResult, ID: e.ID})
			case "requestLogout":
				write(&Envelope{Type: TypeResult, ID: e.ID, Error: "logout blocked"})
			default:
				write(&Envelope{Type: TypeResult, ID: e.ID, Result: e.Args})
			}
		case TypeConnect:
			write(&Envelope{Type: TypeProperty, Object: e.Object, Properties: map[string]interface{}{"personaId": "p-78"}})
			write(&Envelope{Type: TypeSignal, Object: e.Object, Signal: e.Signal, Args: []interface{}{true}})
		}
	}
}

func dial(t *testing.T) (*Client, *fakeHost) {
	t.Helper()
	host := &fakeHost{}
	srv := httptest.NewServer(host)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), WithLogger(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool {
		_, ok := c.Lookup(user.ObjectName)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	return c, host
}

func await(t *testing.T, f *async.Future[interface{}]) (interface{}, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestClient_CallsAndProperties(t *testing.T) {
	c, _ := dial(t)
	obj, ok := c.Lookup(user.ObjectName)
	require.True(t, ok)

	v, err := await(t, obj.Call("echo", []interface{}{"a", 1}))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", float64(1)}, v)

	_, err = await(t, obj.Call("requestLogout", nil))
	assert.ErrorContains(t, err, "logout blocked")

	id, err := obj.Property("userId")
	require.NoError(t, err)
	assert.Equal(t, "1000123", id)

	_, err = obj.Property("missing")
	assert.ErrorIs(t, err, remote.ErrNoSuchProperty)

	_, err = obj.Connect("missing", func(...interface{}) {})
	assert.ErrorIs(t, err, remote.ErrNoSuchSignal)

	_, ok = c.Lookup("OriginIGO")
	assert.False(t, ok)
}

func TestClient_SignalsAndDisconnect(t *testing.T) {
	c, host := dial(t)
	obj, _ := c.Lookup(user.ObjectName)

	got := make(chan []interface{}, 1)
	disconnect, err := obj.Connect("authenticationChanged", func(args ...interface{}) { got <- args })
	require.NoError(t, err)

	select {
	case args := <-got:
		assert.Equal(t, []interface{}{true}, args)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}

	persona, err := obj.Property("personaId")
	require.NoError(t, err)
	assert.Equal(t, "p-78", persona)

	disconnect()
	disconnect()
	require.Eventually(t, func() bool {
		seen := host.seen()
		return len(seen) > 0 && seen[len(seen)-1] == "disconnect:authenticationChanged"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"connect:authenticationChanged", "disconnect:authenticationChanged"}, host.seen())
}

func TestClient_RepublishKeepsConnections(t *testing.T) {
	c, host := dial(t)
	obj, _ := c.Lookup(user.ObjectName)

	got := make(chan interface{}, 8)
	_, err := obj.Connect("authenticationChanged", func(args ...interface{}) { got <- args[0] })
	require.NoError(t, err)

	next := func() interface{} {
		select {
		case v := <-got:
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("signal not delivered")
			return nil
		}
	}
	assert.Equal(t, true, next())

	_, err = await(t, obj.Call("unpublish", nil))
	require.NoError(t, err)
	_, ok := c.Lookup(user.ObjectName)
	assert.False(t, ok)
	assert.Empty(t, c.Names())

	_, err = await(t, obj.Call("republish", nil))
	require.NoError(t, err)
	assert.Equal(t, false, next())

	again, ok := c.Lookup(user.ObjectName)
	require.True(t, ok)
	assert.Same(t, obj, again)

	country, err := obj.Property("country")
	require.NoError(t, err)
	assert.Equal(t, "SE", country)
	id, err := obj.Property("userId")
	require.NoError(t, err)
	assert.Equal(t, "1000123", id)

	_, err = obj.Connect("personaChanged", func(...interface{}) {})
	assert.NoError(t, err)

	require.Eventually(t, func() bool {
		n := 0
		for _, e := range host.seen() {
			if e == "connect:authenticationChanged" {
				n++
			}
		}
		return n == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_CloseRejectsPending(t *testing.T) {
	c, _ := dial(t)
	obj, _ := c.Lookup(user.ObjectName)

	hung := obj.Call("hang", nil)
	require.NoError(t, c.Close())

	_, err := await(t, hung)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = await(t, obj.Call("echo", nil))
	assert.Error(t, err)

	select {
	case <-c.Dead():
	default:
		t.Fatal("reader still running")
	}
}

func TestClient_UserFacade(t *testing.T) {
	c, _ := dial(t)

	sched := loop.New(logger.Discard())
	sched.Start()
	t.Cleanup(func() { _ = sched.Stop() })
	rt := bridge.NewNoOpRuntime(c, sched, bridge.DefaultRuntimeConfig())

	changed := make(chan interface{}, 1)
	rt.Bus.On(user.EventAuthChanged, func(args ...interface{}) { changed <- args[0] })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, err := user.Get(rt).UserID().Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1000123", id)

	select {
	case v := <-changed:
		assert.Equal(t, true, v)
	case <-ctx.Done():
		t.Fatal("auth change not relayed")
	}
}

func TestPeekType(t *testing.T) {
	assert.Equal(t, TypeSignal, PeekType([]byte(`{"signal":"x","type":"signal"}`)))
	assert.Equal(t, "", PeekType([]byte(`not json`)))
}
