package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultMemoTTL is how long a memoized response stays valid.
const DefaultMemoTTL = 2 * time.Hour

// Memo is a short-lived cache of individual API responses. Values are
// stored as JSON.
type Memo interface {
	// Get decodes the value for key into dst. It returns false on a miss.
	Get(ctx context.Context, key string, dst any) (bool, error)

	// Set stores v under key.
	Set(ctx context.Context, key string, v any) error

	// Clear drops every memoized response.
	Clear(ctx context.Context) error
}

// NopMemo never stores anything.
type NopMemo struct{}

// Get always misses.
func (NopMemo) Get(context.Context, string, any) (bool, error) { return false, nil }

// Set discards v.
func (NopMemo) Set(context.Context, string, any) error { return nil }

// Clear does nothing.
func (NopMemo) Clear(context.Context) error { return nil }

type memoEntry struct {
	data    []byte
	expires time.Time
}

// MemoryMemo is an in-process Memo with a fixed TTL.
type MemoryMemo struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoEntry
}

// NewMemoryMemo creates a MemoryMemo. A non-positive ttl uses DefaultMemoTTL.
func NewMemoryMemo(ttl time.Duration) *MemoryMemo {
	if ttl <= 0 {
		ttl = DefaultMemoTTL
	}
	return &MemoryMemo{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoEntry),
	}
}

// Get implements Memo.
func (m *MemoryMemo) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !m.now().Before(e.expires) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(e.data, dst)
}

// Set implements Memo.
func (m *MemoryMemo) Set(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoEntry{data: data, expires: m.now().Add(m.ttl)}
	return nil
}

// Clear implements Memo.
func (m *MemoryMemo) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoEntry)
	return nil
}

// Len returns the number of live entries.
func (m *MemoryMemo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := m.now()
	for _, e := range m.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}
