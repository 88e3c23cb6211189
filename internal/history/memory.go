package history

import (
	"context"
	"sync"

	"github.com/Aidin1998/feedrelay/internal/relay"
)

// Memory is a bounded in-process ring of results
type Memory struct {
	mu    sync.RWMutex
	buf   []relay.Result
	next  int
	count int
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 100
	}
	return &Memory{buf: make([]relay.Result, size)}
}

func (m *Memory) Record(_ context.Context, res relay.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next] = res
	m.next = (m.next + 1) % len(m.buf)
	if m.count < len(m.buf) {
		m.count++
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, n int) ([]relay.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > m.count {
		n = m.count
	}
	out := make([]relay.Result, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.buf)) % len(m.buf)
		out = append(out, m.buf[idx])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
