package redis

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sharedcode/xfer"
	"github.com/sharedcode/xfer/encoding"
)

// mockRedis is an in-memory stand-in for the Redis-backed Cache, good
// enough for unit tests: no TTL expiry, coarse mutex instead of a server.
type mockRedis struct {
	mu     sync.Mutex
	lookup map[string][]byte
	hashes map[string]map[string]string
}

// NewMockClient returns a new in-memory Cache mock.
func NewMockClient() xfer.Cache {
	return &mockRedis{
		lookup: make(map[string][]byte),
		hashes: make(map[string]map[string]string),
	}
}

func (m *mockRedis) Ping(ctx context.Context) error {
	return nil
}

func (m *mockRedis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookup[key] = []byte(value)
	return nil
}

func (m *mockRedis) Get(ctx context.Context, key string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ba, ok := m.lookup[key]
	if !ok {
		return false, "", nil
	}
	return true, string(ba), nil
}

func (m *mockRedis) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ba, err := encoding.DefaultMarshaler.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookup[key] = ba
	return nil
}

func (m *mockRedis) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	m.mu.Lock()
	ba, ok := m.lookup[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, encoding.DefaultMarshaler.Unmarshal(ba, target)
}

func (m *mockRedis) Delete(ctx context.Context, keys []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, k := range keys {
		if _, ok := m.lookup[k]; ok {
			delete(m.lookup, k)
			found = true
		}
		if _, ok := m.hashes[k]; ok {
			delete(m.hashes, k)
			found = true
		}
	}
	return found, nil
}

func (m *mockRedis) SetFields(ctx context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *mockRedis) GetFields(ctx context.Context, key string) (bool, map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return false, nil, nil
	}
	cp := make(map[string]string, len(h))
	for k, v := range h {
		cp[k] = v
	}
	return true, cp, nil
}

func (m *mockRedis) ScanKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.hashes)+len(m.lookup))
	for k := range m.hashes {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	for k := range m.lookup {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockRedis) Lock(ctx context.Context, duration time.Duration, lockKeys []*xfer.LockKey) (bool, uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lk := range lockKeys {
		if ba, ok := m.lookup[lk.Key]; ok {
			if string(ba) != lk.LockID.String() {
				id, _ := uuid.Parse(string(ba))
				return false, id, nil
			}
			continue
		}
		m.lookup[lk.Key] = []byte(lk.LockID.String())
		lk.IsLockOwner = true
	}
	return true, uuid.Nil, nil
}

func (m *mockRedis) Unlock(ctx context.Context, lockKeys []*xfer.LockKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lk := range lockKeys {
		if !lk.IsLockOwner {
			continue
		}
		delete(m.lookup, lk.Key)
	}
	return nil
}

func (m *mockRedis) IsLocked(ctx context.Context, lockKeys []*xfer.LockKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := true
	for _, lk := range lockKeys {
		ba, ok := m.lookup[lk.Key]
		if !ok || string(ba) != lk.LockID.String() {
			lk.IsLockOwner = false
			r = false
			continue
		}
		lk.IsLockOwner = true
	}
	return r, nil
}

func (m *mockRedis) CreateLockKeys(keys []string) []*xfer.LockKey {
	lockKeys := make([]*xfer.LockKey, len(keys))
	for i := range keys {
		lockKeys[i] = &xfer.LockKey{
			Key:    m.FormatLockKey(keys[i]),
			LockID: uuid.New(),
		}
	}
	return lockKeys
}

func (m *mockRedis) FormatLockKey(k string) string {
	return "lock:" + k
}
