package kvstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = time.Minute

// Memory is an in-process [Store] on top of go-cache. A single mutex serializes
// every mutation so the atomicity contract holds within one process; it does
// not coordinate across processes. Use [Redis] for multi-instance deployments.
type Memory struct {
	mu    sync.Mutex
	cache *cache.Cache
}

type memoryList [][]byte

type memorySet map[string]struct{}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		cache: cache.New(cache.NoExpiration, memoryCleanupInterval),
	}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Get implements [Store].
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, ErrWrongType
	}
	return cloneBytes(data), nil
}

// Set implements [Store].
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Set(key, cloneBytes(value), expiration(ttl))
	return nil
}

// Replace implements [Store].
func (m *Memory) Replace(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(key)
	if !ok {
		return false, nil
	}
	if _, isBytes := v.([]byte); !isBytes {
		return false, ErrWrongType
	}
	m.cache.Set(key, cloneBytes(value), expiration(ttl))
	return true, nil
}

// Delete implements [Store].
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		m.cache.Delete(k)
	}
	return nil
}

// Append implements [Store].
func (m *Memory) Append(_ context.Context, key string, value []byte, ttl time.Duration, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list memoryList
	if v, ok := m.cache.Get(key); ok {
		existing, isList := v.(memoryList)
		if !isList {
			return ErrWrongType
		}
		list = existing
	}

	next := make(memoryList, 0, len(list)+1)
	next = append(next, list...)
	next = append(next, cloneBytes(value))
	if limit > 0 && len(next) > limit {
		next = next[len(next)-limit:]
	}

	m.cache.Set(key, next, expiration(ttl))
	return nil
}

// Range implements [Store].
func (m *Memory) Range(_ context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(key)
	if !ok {
		return [][]byte{}, nil
	}
	list, isList := v.(memoryList)
	if !isList {
		return nil, ErrWrongType
	}

	out := make([][]byte, len(list))
	for i, item := range list {
		out[i] = cloneBytes(item)
	}
	return out, nil
}

// SetAdd implements [Store].
func (m *Memory) SetAdd(_ context.Context, key, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := memorySet{}
	if v, ok := m.cache.Get(key); ok {
		existing, isSet := v.(memorySet)
		if !isSet {
			return ErrWrongType
		}
		for k := range existing {
			next[k] = struct{}{}
		}
	}
	next[member] = struct{}{}

	m.cache.Set(key, next, expiration(ttl))
	return nil
}

// SetRemove implements [Store]. The remaining TTL of the set is preserved.
func (m *Memory) SetRemove(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, expiresAt, ok := m.cache.GetWithExpiration(key)
	if !ok {
		return nil
	}
	existing, isSet := v.(memorySet)
	if !isSet {
		return ErrWrongType
	}

	next := make(memorySet, len(existing))
	for k := range existing {
		next[k] = struct{}{}
	}
	for _, member := range members {
		delete(next, member)
	}

	if len(next) == 0 {
		m.cache.Delete(key)
		return nil
	}

	ttl := cache.NoExpiration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			m.cache.Delete(key)
			return nil
		}
	}
	m.cache.Set(key, next, ttl)
	return nil
}

// Members implements [Store]. Members are returned sorted.
func (m *Memory) Members(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(key)
	if !ok {
		return []string{}, nil
	}
	set, isSet := v.(memorySet)
	if !isSet {
		return nil, ErrWrongType
	}

	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Lock implements [Store]. Lock keys live in the same go-cache namespace and
// expire after ttl like any other entry.
func (m *Memory) Lock(ctx context.Context, key string, ttl, wait time.Duration) (Unlocker, error) {
	token := uuid.NewString()

	err := waitLock(ctx, wait, func() (bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()

		// Add fails while an unexpired holder exists.
		return m.cache.Add(key, token, expiration(ttl)) == nil, nil
	})
	if err != nil {
		return nil, err
	}

	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		if v, ok := m.cache.Get(key); ok {
			if held, isToken := v.(string); isToken && held == token {
				m.cache.Delete(key)
			}
		}
		return nil
	}, nil
}

// Flush drops every key.
func (m *Memory) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Flush()
}
