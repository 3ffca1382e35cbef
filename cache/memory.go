package cache

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is the in-process Store implementation. Values are kept as JSON so
// the round-trip semantics match the Redis store exactly.
type Memory struct {
	items map[string][]byte
	mu    sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string][]byte),
	}
}

func (m *Memory) Save(key string, value interface{}) error {
	if value == nil {
		return fmt.Errorf("no value provided for key %q", key)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %v", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = data
	return nil
}

func (m *Memory) Load(key string, dest interface{}) error {
	m.mu.RLock()
	data, exists := m.items[key]
	m.mu.RUnlock()

	if !exists {
		return ErrNotFound
	}
	return json.Unmarshal(data, dest)
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[key]; !exists {
		return ErrNotFound
	}
	delete(m.items, key)
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string][]byte)
	return nil
}
