package xfer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Cache interface specifies the shared-store methods the coordinator and
// recovery worker depend on: string keys with TTL, per-key hash records,
// key scans, and advisory locks. The production implementation sits on
// Redis; tests use the in-memory mock.
type Cache interface {
	// Ping tests store connectivity.
	Ping(ctx context.Context) error
	// Set executes the store Set command.
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	// Get returns (found, value, error) for a key.
	Get(ctx context.Context, key string) (bool, string, error)
	// SetStruct stores value serialized as JSON.
	SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// GetStruct fetches a JSON value into target, returning found=false when absent.
	GetStruct(ctx context.Context, key string, target interface{}) (bool, error)
	// Delete removes keys; returns false (and nil error) if none existed.
	Delete(ctx context.Context, keys []string) (bool, error)

	// SetFields merges fields into the hash record at key.
	SetFields(ctx context.Context, key string, fields map[string]string) error
	// GetFields returns all fields of the hash record at key; found=false when absent.
	GetFields(ctx context.Context, key string) (bool, map[string]string, error)
	// ScanKeys iterates keys matching pattern, invoking fn per key. fn
	// returning an error stops the scan.
	ScanKeys(ctx context.Context, pattern string, fn func(key string) error) error

	// Lock attempts to acquire all lock keys with the given TTL. On
	// contention it returns false plus the current owner's id.
	Lock(ctx context.Context, duration time.Duration, lockKeys []*LockKey) (bool, uuid.UUID, error)
	// Unlock releases the lock keys owned by this process.
	Unlock(ctx context.Context, lockKeys []*LockKey) error
	// IsLocked reports whether all lock keys are still owned by this process.
	IsLocked(ctx context.Context, lockKeys []*LockKey) (bool, error)
	// CreateLockKeys builds lock keys (with fresh owner ids) for the names.
	CreateLockKeys(keys []string) []*LockKey
	// FormatLockKey applies the lock namespace prefix.
	FormatLockKey(k string) string
}

// LockKey is one advisory lock entry: the namespaced key, this process'
// owner id, and whether the last Lock call won ownership.
type LockKey struct {
	Key         string
	LockID      uuid.UUID
	IsLockOwner bool
}
