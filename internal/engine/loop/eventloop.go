package loop

import (
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

// EventLoop schedules page tasks on a goja_nodejs event loop, for pages
// whose own logic is scripted on that loop.
type EventLoop struct {
	loop    *eventloop.EventLoop
	stopped atomic.Bool
}

// FromEventLoop adapts loop. Start and Stop it through the adapter: the
// underlying loop accepts jobs after it stops and never runs them.
func FromEventLoop(loop *eventloop.EventLoop) *EventLoop {
	return &EventLoop{loop: loop}
}

// Start runs the loop in the background.
func (e *EventLoop) Start() {
	e.loop.Start()
}

// Stop terminates the loop. Later posts are refused.
func (e *EventLoop) Stop() {
	if e.stopped.CompareAndSwap(false, true) {
		e.loop.Stop()
	}
}

// Post implements Scheduler.
func (e *EventLoop) Post(task func()) bool {
	if e.stopped.Load() {
		return false
	}
	e.loop.RunOnLoop(func(*goja.Runtime) {
		task()
	})
	return true
}

// AfterFunc implements Scheduler. After Stop the returned timer is inert.
func (e *EventLoop) AfterFunc(d time.Duration, task func()) Timer {
	t := &jsTimer{loop: e.loop}
	if e.stopped.Load() {
		t.state.Store(timerStopped)
		return t
	}
	t.timer = e.loop.SetTimeout(func(*goja.Runtime) {
		if t.state.CompareAndSwap(timerArmed, timerFired) {
			task()
		}
	}, d)
	return t
}

const (
	timerArmed int32 = iota
	timerFired
	timerStopped
)

type jsTimer struct {
	loop  *eventloop.EventLoop
	timer *eventloop.Timer
	state atomic.Int32
}

func (t *jsTimer) Stop() bool {
	if !t.state.CompareAndSwap(timerArmed, timerStopped) {
		return false
	}
	t.loop.ClearTimeout(t.timer)
	return true
}
