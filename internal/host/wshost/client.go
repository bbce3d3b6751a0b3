// Package wshost reaches the native client over a websocket. The client
// announces its objects with publish messages; calls and signal
// subscriptions travel as envelopes correlated by id.
package wshost

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gopkg.in/tomb.v2"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
	"github.com/R3E-Network/hostbridge/pkg/logger"
)

// DefaultHandshakeTimeout bounds the websocket handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// ErrClosed rejects calls once the connection is gone.
var ErrClosed = errors.New("host connection closed")

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithHandshakeTimeout sets the handshake timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.handshake = d
	}
}

// Client is a remote.Environment backed by a websocket peer.
type Client struct {
	conn      *websocket.Conn
	log       *logger.Logger
	handshake time.Duration
	t         tomb.Tomb

	writeMu sync.Mutex

	mu      sync.Mutex
	objects map[string]*object
	pending map[string]*async.Future[interface{}]
	closed  bool
}

// Dial connects to the host at url and starts reading.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		handshake: DefaultHandshakeTimeout,
		objects:   make(map[string]*object),
		pending:   make(map[string]*async.Future[interface{}]),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewDefault("wshost")
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.handshake}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	c.t.Go(c.readLoop)
	return c, nil
}

// Close sends a close frame, stops the reader and rejects outstanding calls.
func (c *Client) Close() error {
	c.t.Kill(nil)

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = c.conn.Close()

	return c.t.Wait()
}

// Dead is closed once the reader has stopped.
func (c *Client) Dead() <-chan struct{} {
	return c.t.Dead()
}

// Err returns why the reader stopped, if it has.
func (c *Client) Err() error {
	return c.t.Err()
}

// Lookup implements remote.Environment.
func (c *Client) Lookup(name string) (remote.Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[name]
	if !ok || !obj.live {
		return nil, false
	}
	return obj, true
}

// Names returns the currently published object names.
func (c *Client) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.objects))
	for name, obj := range c.objects {
		if obj.live {
			names = append(names, name)
		}
	}
	return names
}

func (c *Client) readLoop() error {
	defer c.shutdown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.t.Dying():
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read host message: %w", err)
		}
		c.dispatch(data)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*async.Future[interface{}])
	c.mu.Unlock()

	for _, fut := range pending {
		fut.Reject(ErrClosed)
	}
}

func (c *Client) dispatch(data []byte) {
	typ := PeekType(data)
	switch typ {
	case TypePublish, TypeUnpublish, TypeProperty, TypeResult, TypeSignal:
	default:
		c.log.WithField("type", typ).Debug("ignoring host message")
		return
	}

	env, err := Decode(data)
	if err != nil {
		c.log.WithError(err).Warn("malformed host message")
		return
	}

	switch typ {
	case TypePublish:
		c.publish(env)
	case TypeUnpublish:
		c.mu.Lock()
		if obj, ok := c.objects[env.Object]; ok {
			obj.live = false
		}
		c.mu.Unlock()
	case TypeProperty:
		if obj, ok := c.object(env.Object); ok {
			obj.setProperties(env.Properties)
		}
	case TypeResult:
		c.result(env)
	case TypeSignal:
		if obj, ok := c.object(env.Object); ok {
			obj.emit(env.Signal, env.Args)
		}
	}
}

func (c *Client) object(name string) (*object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[name]
	if !ok || !obj.live {
		return nil, false
	}
	return obj, true
}

// publish announces an object. A name seen before keeps its object so
// wrappers already holding it stay connected; the snapshot is merged in and
// forwarding is requested again for signals that still have slots.
func (c *Client) publish(env *Envelope) {
	c.mu.Lock()
	obj, seen := c.objects[env.Object]
	if !seen {
		obj = &object{
			client:  c,
			name:    env.Object,
			props:   make(map[string]interface{}, len(env.Properties)),
			signals: make(map[string][]*slot, len(env.Signals)),
		}
		c.objects[env.Object] = obj
	}
	obj.live = true
	c.mu.Unlock()

	connected := obj.merge(env.Properties, env.Signals)
	for _, signal := range connected {
		if err := c.send(&Envelope{Type: TypeConnect, Object: obj.name, Signal: signal}); err != nil {
			c.log.WithField("object", obj.name).WithField("signal", signal).WithError(err).Warn("reconnect signal failed")
		}
	}
	c.log.WithField("object", env.Object).WithField("republished", seen).Debug("object published")
}

func (c *Client) result(env *Envelope) {
	c.mu.Lock()
	fut, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()
	if !ok {
		c.log.WithField("id", env.ID).Debug("result for unknown call")
		return
	}
	if env.Error != "" {
		fut.Reject(errors.New(env.Error))
		return
	}
	fut.Resolve(env.Result)
}

func (c *Client) send(env *Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) call(object, method string, args []interface{}) *async.Future[interface{}] {
	fut := async.New[interface{}]()
	id := uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fut.Reject(ErrClosed)
		return fut
	}
	c.pending[id] = fut
	c.mu.Unlock()

	err := c.send(&Envelope{Type: TypeCall, ID: id, Object: object, Method: method, Args: args})
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		fut.Reject(fmt.Errorf("send call: %w", err))
	}
	return fut
}

type slot struct {
	fn remote.SignalFunc
}

type object struct {
	client *Client
	name   string

	// live is guarded by client.mu.
	live bool

	mu      sync.Mutex
	props   map[string]interface{}
	signals map[string][]*slot
}

// Call implements remote.Object.
func (o *object) Call(method string, args []interface{}) *async.Future[interface{}] {
	return o.client.call(o.name, method, args)
}

// Property implements remote.Object. Values come from the publish snapshot
// and later property messages.
func (o *object) Property(name string) (interface{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.props[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNoSuchProperty, name)
	}
	return v, nil
}

// merge applies a publish snapshot and returns the signals that already
// have slots connected.
func (o *object) merge(props map[string]interface{}, signals []string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range props {
		o.props[k] = v
	}
	for _, s := range signals {
		if _, ok := o.signals[s]; !ok {
			o.signals[s] = nil
		}
	}
	var connected []string
	for s, slots := range o.signals {
		if len(slots) > 0 {
			connected = append(connected, s)
		}
	}
	sort.Strings(connected)
	return connected
}

func (o *object) setProperties(props map[string]interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range props {
		o.props[k] = v
	}
}

// Connect implements remote.Object. The host is asked to forward the signal
// when its first slot is connected and told to stop after the last one
// disconnects.
func (o *object) Connect(signal string, fn remote.SignalFunc) (remote.Disconnect, error) {
	s := &slot{fn: fn}

	o.mu.Lock()
	slots, ok := o.signals[signal]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", remote.ErrNoSuchSignal, signal)
	}
	first := len(slots) == 0
	o.signals[signal] = append(slots, s)
	o.mu.Unlock()

	if first {
		if err := o.client.send(&Envelope{Type: TypeConnect, Object: o.name, Signal: signal}); err != nil {
			o.remove(signal, s)
			return nil, fmt.Errorf("send connect: %w", err)
		}
	}

	return func() {
		if o.remove(signal, s) {
			if err := o.client.send(&Envelope{Type: TypeDisconnect, Object: o.name, Signal: signal}); err != nil {
				o.client.log.WithField("signal", signal).WithError(err).Debug("send disconnect failed")
			}
		}
	}, nil
}

// remove drops s and reports whether the signal has no slots left.
func (o *object) remove(signal string, s *slot) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	slots := o.signals[signal]
	for i, cur := range slots {
		if cur == s {
			o.signals[signal] = append(slots[:i:i], slots[i+1:]...)
			return len(o.signals[signal]) == 0
		}
	}
	return false
}

func (o *object) emit(signal string, args []interface{}) {
	o.mu.Lock()
	slots := append([]*slot(nil), o.signals[signal]...)
	o.mu.Unlock()

	for _, s := range slots {
		s.fn(args...)
	}
}

var (
	_ remote.Environment = (*Client)(nil)
	_ remote.Object      = (*object)(nil)
)
