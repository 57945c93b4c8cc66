package loop

import "sync"

// Manual is a Scheduler whose queue is drained explicitly via Drain. The zero
// value is ready to use.
type Manual struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
}

// Schedule implements Scheduler.
func (m *Manual) Schedule(fn func()) bool {
	if fn == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, fn)
	return true
}

// Pending returns the number of queued tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Drain runs queued tasks in order until the queue is empty, including tasks
// scheduled by the tasks themselves. It returns the number of tasks run.
func (m *Manual) Drain() int {
	var n int
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return n
		}
		fn := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
		n++
	}
}

// Close rejects further scheduling and discards queued tasks.
func (m *Manual) Close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
}

var _ Scheduler = (*Manual)(nil)
