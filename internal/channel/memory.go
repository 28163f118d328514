package channel

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Queue for the embedded backend. Channels are
// created on first push and live until Delete; a deleted name stays marked
// gone so a straggling worker's next push reports ErrGone instead of
// silently resurrecting the channel.
type Memory struct {
	mu     sync.Mutex
	queues map[string]*memQueue
	gone   map[string]time.Time
}

// goneRetention bounds how long a deleted name stays marked; past it a worker
// that somehow outlived the mark would recreate the channel, matching what a
// Redis deployment does once the gone marker expires.
const goneRetention = time.Hour

type memQueue struct {
	items  [][]byte
	notify chan struct{}
}

// NewMemory returns an empty in-process queue set.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string]*memQueue), gone: make(map[string]time.Time)}
}

// isGone reports whether name is marked deleted, pruning expired marks.
func (m *Memory) isGone(name string) bool {
	t, ok := m.gone[name]
	if !ok {
		return false
	}
	if time.Since(t) > goneRetention {
		delete(m.gone, name)
		return false
	}
	return true
}

func (m *Memory) get(name string) *memQueue {
	q, ok := m.queues[name]
	if !ok {
		q = &memQueue{notify: make(chan struct{})}
		m.queues[name] = q
	}
	return q
}

func (m *Memory) Push(ctx context.Context, name string, items ...[]byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isGone(name) {
		return 0, ErrGone
	}
	q := m.get(name)
	q.items = append(q.items, items...)
	// wake blocked poppers
	close(q.notify)
	q.notify = make(chan struct{})
	return int64(len(q.items)), nil
}

func (m *Memory) Len(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		return 0, nil
	}
	return int64(len(q.items)), nil
}

func (m *Memory) BPop(ctx context.Context, name string, timeout time.Duration) ([]byte, bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.mu.Lock()
		if m.isGone(name) {
			m.mu.Unlock()
			return nil, false, nil
		}
		q := m.get(name)
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			m.mu.Unlock()
			return item, true, nil
		}
		notify := q.notify
		m.mu.Unlock()

		select {
		case <-notify:
		case <-deadline.C:
			return nil, false, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[name]; ok {
		delete(m.queues, name)
		// release poppers so they observe the deletion
		close(q.notify)
	}
	m.gone[name] = time.Now()
	return nil
}
