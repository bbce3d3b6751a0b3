// Package loop provides the cooperative scheduler the page side of the bridge
// runs on. Every relay and every polling attempt is a task posted here, so
// host callbacks never run page code in their own call stack.
package loop

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/R3E-Network/hostbridge/pkg/logger"
)

// Scheduler queues tasks for later, single-threaded execution.
type Scheduler interface {
	// Post queues task for the next turn. Returns false if the scheduler
	// no longer accepts work.
	Post(task func()) bool

	// AfterFunc queues task once d has elapsed.
	AfterFunc(d time.Duration, task func()) Timer
}

// Timer is a pending AfterFunc task.
type Timer interface {
	// Stop cancels the task. Returns false if it already ran or was stopped.
	Stop() bool
}

// Loop runs posted tasks in FIFO order on one goroutine.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	started bool
	stopped bool

	wake chan struct{}
	t    tomb.Tomb
	log  *logger.Logger
}

// New creates a loop. Tasks may be posted before Start.
func New(log *logger.Logger) *Loop {
	if log == nil {
		log = logger.NewDefault("loop")
	}
	return &Loop{
		wake: make(chan struct{}, 1),
		log:  log,
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	l.t.Go(l.run)
	l.signal()
}

// Stop refuses new tasks, lets the current task finish and waits for the
// loop goroutine to exit. Queued tasks that have not started are dropped.
func (l *Loop) Stop() error {
	l.mu.Lock()
	l.stopped = true
	started := l.started
	dropped := len(l.tasks)
	l.tasks = nil
	l.mu.Unlock()

	if !started {
		return nil
	}

	if dropped > 0 {
		l.log.WithField("dropped", dropped).Debug("loop stopping with queued tasks")
	}
	l.t.Kill(nil)
	return l.t.Wait()
}

// Dead is closed once the loop goroutine has exited.
func (l *Loop) Dead() <-chan struct{} {
	return l.t.Dead()
}

// Post implements Scheduler.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	l.signal()
	return true
}

// AfterFunc implements Scheduler. The timer goroutine only posts; the task
// itself runs on the loop.
func (l *Loop) AfterFunc(d time.Duration, task func()) Timer {
	return time.AfterFunc(d, func() {
		l.Post(task)
	})
}

// Len reports the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() error {
	for {
		select {
		case <-l.t.Dying():
			return nil
		case <-l.wake:
		}

		for {
			task := l.next()
			if task == nil {
				break
			}
			l.exec(task)

			select {
			case <-l.t.Dying():
				return nil
			default:
			}
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil
	}
	task := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return task
}

func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", fmt.Sprint(r)).Error("loop task panicked")
		}
	}()
	task()
}
