package loop

import (
	"sync"
	"time"
)

// Manual is a deterministic Scheduler driven by the caller. Time only moves
// through Advance, and tasks only run from Tick, Drain or Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	tasks  []func()
	timers []*manualTimer
	seq    uint64
}

type manualTimer struct {
	m    *Manual
	at   time.Duration
	seq  uint64
	task func()
	done bool
}

// NewManual returns a virtual-clock scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

// Post implements Scheduler.
func (m *Manual) Post(task func()) bool {
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()
	return true
}

// AfterFunc implements Scheduler against the virtual clock.
func (m *Manual) AfterFunc(d time.Duration, task func()) Timer {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now + d, seq: m.seq, task: task}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.m.removeTimer(t)
	return true
}

func (m *Manual) removeTimer(t *manualTimer) {
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of queued tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Timers returns the number of armed timers.
func (m *Manual) Timers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Tick runs one turn: the tasks queued when Tick was called. Tasks posted
// during the turn wait for the next one. Returns the number of tasks run.
func (m *Manual) Tick() int {
	m.mu.Lock()
	batch := m.tasks
	m.tasks = nil
	m.mu.Unlock()

	for _, task := range batch {
		task()
	}
	return len(batch)
}

// Drain runs turns until no task is queued.
func (m *Manual) Drain() int {
	total := 0
	for {
		n := m.Tick()
		if n == 0 {
			return total
		}
		total += n
	}
}

// Advance moves the clock forward by d, draining the queue and firing due
// timers in deadline order. Returns the number of tasks and timers run.
func (m *Manual) Advance(d time.Duration) int {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	total := m.Drain()
	for {
		m.mu.Lock()
		next := m.dueTimer(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			break
		}
		next.done = true
		m.removeTimer(next)
		if next.at > m.now {
			m.now = next.at
		}
		m.mu.Unlock()

		next.task()
		total++
		total += m.Drain()
	}
	return total
}

func (m *Manual) dueTimer(target time.Duration) *manualTimer {
	var best *manualTimer
	for _, t := range m.timers {
		if t.at > target {
			continue
		}
		if best == nil || t.at < best.at || (t.at == best.at && t.seq < best.seq) {
			best = t
		}
	}
	return best
}
