// Package queue holds calls made against a remote object before it has
// resolved, and replays them in order once it does.
package queue

import (
	"fmt"
	"sync"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
)

// State is the lifecycle of a Queue.
type State int32

const (
	// StatePending accepts calls and waits for Flush or Fail.
	StatePending State = iota
	// StateFlushing is draining; new calls are appended behind the backlog.
	StateFlushing
	// StateOpen means the backlog is gone and callers invoke directly.
	StateOpen
	// StateFailed rejects every call.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFlushing:
		return "flushing"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

// Kind distinguishes method calls from deferred property reads.
type Kind int

const (
	KindMethod Kind = iota
	KindProperty
)

// Call is one deferred operation.
type Call struct {
	Kind Kind
	Name string
	Args []interface{}
}

func (c Call) String() string {
	if c.Kind == KindProperty {
		return "." + c.Name
	}
	return c.Name + "()"
}

// Executor performs a call against the resolved object.
type Executor func(Call) *async.Future[interface{}]

type entry struct {
	call   Call
	result *async.Future[interface{}]
}

// Queue is a FIFO of calls with placeholder futures.
type Queue struct {
	mu      sync.Mutex
	state   State
	pending []entry
	err     error
}

// New returns an empty queue in StatePending.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends call and returns its placeholder. The second result is
// false once the queue is open, in which case nothing was queued and the
// caller must invoke directly. A failed queue returns an already rejected
// future.
func (q *Queue) Enqueue(call Call) (*async.Future[interface{}], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.state {
	case StateOpen:
		return nil, false
	case StateFailed:
		return async.Rejected[interface{}](q.err), true
	}

	e := entry{call: call, result: async.New[interface{}]()}
	q.pending = append(q.pending, e)
	return e.result, true
}

// Flush executes queued calls in order and opens the queue. Calls enqueued
// while flushing run in the same flush, so nothing overtakes an earlier call.
// Flush on a queue that is not pending does nothing.
func (q *Queue) Flush(exec Executor) int {
	q.mu.Lock()
	if q.state != StatePending {
		q.mu.Unlock()
		return 0
	}
	q.state = StateFlushing
	q.mu.Unlock()

	n := 0
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.state = StateOpen
			q.pending = nil
			q.mu.Unlock()
			return n
		}
		e := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		async.Forward(run(exec, e.call), e.result)
		n++
	}
}

func run(exec Executor, call Call) (f *async.Future[interface{}]) {
	defer func() {
		if r := recover(); r != nil {
			f = async.Rejected[interface{}](fmt.Errorf("queue: executing %s: %v", call, r))
		}
	}()
	f = exec(call)
	if f == nil {
		f = async.Resolved[interface{}](nil)
	}
	return f
}

// Fail rejects every queued call with err and makes the queue reject all
// later calls. It only applies to a pending queue; returns the number of
// calls rejected.
func (q *Queue) Fail(err error) int {
	q.mu.Lock()
	if q.state != StatePending {
		q.mu.Unlock()
		return 0
	}
	q.state = StateFailed
	q.err = err
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, e := range pending {
		e.result.Reject(err)
	}
	return len(pending)
}

// Len returns the number of calls waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// State returns the current state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Err returns the failure error once failed.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}
