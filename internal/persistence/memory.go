package persistence

import (
	"context"
	"sort"
	"sync"
)

// MemoryEngine implements Engine in memory. Nothing survives a restart.
type MemoryEngine struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	keys   []string // sorted
	closed bool
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{docs: make(map[string][]byte)}
}

func (m *MemoryEngine) Append(ctx context.Context, key string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, exists := m.docs[key]; exists {
		return ErrDocumentExists
	}

	m.docs[key] = append([]byte(nil), doc...)
	i := sort.SearchStrings(m.keys, key)
	m.keys = append(m.keys, "")
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = key
	return nil
}

func (m *MemoryEngine) Scan(ctx context.Context, fn ScanFunc) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	keys := append([]string(nil), m.keys...)
	docs := make([][]byte, len(keys))
	for i, k := range keys {
		docs[i] = m.docs[k]
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, docs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryEngine) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.keys), nil
}

func (m *MemoryEngine) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
