package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemStore is a volatile Store used by tests and by in-memory deployments.
type MemStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) Apply(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	for _, op := range b.ops {
		switch op.typ {
		case batchPut:
			m.data[string(op.key)] = append([]byte(nil), op.value...)
		case batchDelete:
			delete(m.data, string(op.key))
		}
	}
	return nil
}

func (m *MemStore) Iterate(prefix, start []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrStoreClosed
	}
	keys := m.keysLocked(prefix, lowerBound(prefix, start))
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = append([]byte(nil), m.data[k]...)
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) Last(prefix []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	var last string
	found := false
	for k := range m.data {
		if strings.HasPrefix(k, string(prefix)) && (!found || k > last) {
			last, found = k, true
		}
	}
	if !found {
		return nil, ErrNotFound
	}
	return []byte(last), nil
}

// keysLocked returns the sorted keys with prefix that are >= from.
func (m *MemStore) keysLocked(prefix, from []byte) []string {
	p, f := string(prefix), string(from)
	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, p) && k >= f {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
