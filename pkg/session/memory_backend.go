package session

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps stats logs in process memory. Logs are never evicted.
type MemoryBackend struct {
	mu     sync.RWMutex
	logs   map[string][]CallStats
	closed bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{logs: make(map[string][]CallStats)}
}

// Append adds one call to the end of a session's log.
func (m *MemoryBackend) Append(ctx context.Context, sessionID string, stats CallStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	m.logs[sessionID] = append(m.logs[sessionID], stats)
	return nil
}

// Load returns a copy of a session's log.
func (m *MemoryBackend) Load(ctx context.Context, sessionID string) ([]CallStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	calls := m.logs[sessionID]
	out := make([]CallStats, len(calls))
	copy(out, calls)
	return out, nil
}

// Replace swaps a session's whole log.
func (m *MemoryBackend) Replace(ctx context.Context, sessionID string, calls []CallStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	m.logs[sessionID] = append([]CallStats(nil), calls...)
	return nil
}

// Delete removes a session's log.
func (m *MemoryBackend) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	delete(m.logs, sessionID)
	return nil
}

// Sessions lists ids with a stored log, sorted.
func (m *MemoryBackend) Sessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	ids := make([]string, 0, len(m.logs))
	for id := range m.logs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close marks the backend closed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
