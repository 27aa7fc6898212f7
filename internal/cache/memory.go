package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero = never
}

// Memory is an in-process Backend.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]memoryEntry
	versions map[string]int64
	now      func() time.Time
}

// NewMemory creates an empty in-process backend.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates an in-process backend that reads time from now.
// Tests use it to expire entries without sleeping.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries:  make(map[string]memoryEntry),
		versions: make(map[string]int64),
		now:      now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return slices.Clone(e.value), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: slices.Clone(value)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Version(_ context.Context, namespace string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return formatVersion(m.versionLocked(namespace)), nil
}

func (m *Memory) Bump(_ context.Context, namespace string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.versionLocked(namespace) + 1
	m.versions[namespace] = v
	return formatVersion(v), nil
}

func (m *Memory) versionLocked(namespace string) int64 {
	v, ok := m.versions[namespace]
	if !ok {
		v = initialVersion(m.now())
		m.versions[namespace] = v
	}
	return v
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
