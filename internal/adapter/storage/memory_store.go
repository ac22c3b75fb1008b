package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is an in-process port.KVStore used by tests and single-node
// setups. Expiry is checked lazily on access.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	deadlines map[string]map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]memoryEntry),
		deadlines: make(map[string]map[string]time.Time),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return ent.value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: expiryFrom(ttl)}
	return nil
}

func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: expiryFrom(ttl)}
	return true, nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	return m.add(key, delta)
}

func (m *MemoryStore) DecrBy(_ context.Context, key string, delta int64) (int64, error) {
	return m.add(key, -delta)
}

func (m *MemoryStore) add(key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	ent, ok := m.live(key)
	if ok {
		parsed, err := strconv.ParseInt(ent.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer: %w", key, err)
		}
		current = parsed
	}
	current += delta
	m.entries[key] = memoryEntry{value: strconv.FormatInt(current, 10), expiresAt: ent.expiresAt}
	return current, nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.live(key)
	if !ok {
		return false, nil
	}
	ent.expiresAt = expiryFrom(ttl)
	m.entries[key] = ent
	return true, nil
}

func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.live(key)
	if !ok || ent.expiresAt.IsZero() {
		return 0, nil
	}
	remaining := time.Until(ent.expiresAt)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (m *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []string
	for key := range m.entries {
		if _, ok := m.live(key); !ok {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)
	return matched, nil
}

func (m *MemoryStore) CompareAndDelete(_ context.Context, key, expect string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.live(key)
	if !ok || ent.value != expect {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *MemoryStore) DeadlineAdd(_ context.Context, index, member string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.deadlines[index]
	if !ok {
		idx = make(map[string]time.Time)
		m.deadlines[index] = idx
	}
	idx[member] = deadline
	return nil
}

func (m *MemoryStore) DeadlineRemove(_ context.Context, index string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.deadlines[index]
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(idx, member)
	}
	return nil
}

func (m *MemoryStore) DeadlineDue(_ context.Context, index string, now time.Time, limit int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.deadlines[index]
	if !ok {
		return nil, nil
	}

	type scored struct {
		member   string
		deadline time.Time
	}
	var due []scored
	for member, deadline := range idx {
		if !deadline.After(now) {
			due = append(due, scored{member, deadline})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].member < due[j].member
		}
		return due[i].deadline.Before(due[j].deadline)
	})

	members := make([]string, 0, len(due))
	for _, s := range due {
		if limit > 0 && int64(len(members)) >= limit {
			break
		}
		members = append(members, s.member)
	}
	return members, nil
}

// live returns the entry for key, dropping it first if expired.
// Caller must hold mu.
func (m *MemoryStore) live(key string) (memoryEntry, bool) {
	ent, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !ent.expiresAt.IsZero() && time.Now().After(ent.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return ent, true
}

func expiryFrom(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
