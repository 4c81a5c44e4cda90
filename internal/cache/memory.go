package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache bounded by entry count. When full it evicts
// the oldest entry by insertion order. Expired entries are dropped lazily on
// read.
type Memory struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List
	now        func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemory builds a memory cache holding at most maxEntries values.
// Non-positive sizes fall back to a small default.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Memory{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	element, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}

	entry := element.Value.(*memoryEntry)
	if m.now().After(entry.expiresAt) {
		m.removeLocked(element)
		return nil, false, nil
	}

	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.now().Add(ttl)
	if element, ok := m.entries[key]; ok {
		entry := element.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		m.order.MoveToBack(element)
		return nil
	}

	element := m.order.PushBack(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
	m.entries[key] = element

	for len(m.entries) > m.maxEntries {
		m.removeLocked(m.order.Front())
	}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if element, ok := m.entries[key]; ok {
		m.removeLocked(element)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) removeLocked(element *list.Element) {
	if element == nil {
		return
	}
	entry := element.Value.(*memoryEntry)
	delete(m.entries, entry.key)
	m.order.Remove(element)
}
