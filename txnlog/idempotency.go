package txnlog

import (
	"context"
	"time"

	"github.com/sharedcode/xfer"
)

const (
	// IdemKeyPrefix namespaces idempotency response snapshots.
	IdemKeyPrefix = "idem:"
	// ResponseTTL is how long a stored response is replayed verbatim.
	ResponseTTL = 24 * time.Hour
)

// IdempotencyStore maps client-chosen idempotency keys to the exact
// successful response previously returned.
type IdempotencyStore struct {
	cache xfer.Cache
}

func NewIdempotencyStore(cache xfer.Cache) *IdempotencyStore {
	return &IdempotencyStore{cache: cache}
}

// Save stores the response under key with the standard TTL. Empty keys are
// a no-op; the client opted out of idempotency.
func (s *IdempotencyStore) Save(ctx context.Context, key string, result xfer.TransferResult) error {
	if key == "" {
		return nil
	}
	if err := s.cache.SetStruct(ctx, IdemKeyPrefix+key, result, ResponseTTL); err != nil {
		return xfer.Errorf(xfer.DependencyError, "storing idempotency record %s: %v", key, err)
	}
	return nil
}

// Lookup returns the stored response for key, if any.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (xfer.TransferResult, bool, error) {
	var result xfer.TransferResult
	if key == "" {
		return result, false, nil
	}
	found, err := s.cache.GetStruct(ctx, IdemKeyPrefix+key, &result)
	if err != nil {
		return result, false, xfer.Errorf(xfer.DependencyError, "reading idempotency record %s: %v", key, err)
	}
	return result, found, nil
}
