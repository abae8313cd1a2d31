package redis

import (
	"context"
	"testing"
	"time"
)

func TestMockLockContention(t *testing.T) {
	ctx := context.Background()
	c := NewMockClient()

	first := c.CreateLockKeys([]string{"pair:A:B"})
	if ok, _, err := c.Lock(ctx, time.Minute, first); !ok || err != nil {
		t.Fatalf("first lock failed: ok=%v err=%v", ok, err)
	}

	second := c.CreateLockKeys([]string{"pair:A:B"})
	ok, owner, err := c.Lock(ctx, time.Minute, second)
	if err != nil {
		t.Fatalf("contended lock errored: %v", err)
	}
	if ok {
		t.Fatal("second owner acquired a held lock")
	}
	if owner != first[0].LockID {
		t.Errorf("reported owner %v, expected %v", owner, first[0].LockID)
	}

	// Non-owners cannot release; the owner can.
	if err := c.Unlock(ctx, second); err != nil {
		t.Fatalf("unlock by non-owner errored: %v", err)
	}
	if locked, _ := c.IsLocked(ctx, first); !locked {
		t.Error("lock vanished after non-owner unlock")
	}
	if err := c.Unlock(ctx, first); err != nil {
		t.Fatalf("owner unlock failed: %v", err)
	}
	if ok, _, _ := c.Lock(ctx, time.Minute, second); !ok {
		t.Error("lock not acquirable after release")
	}
}

func TestMockHashAndScan(t *testing.T) {
	ctx := context.Background()
	c := NewMockClient()

	if err := c.SetFields(ctx, "txn:1", map[string]string{"state": "INIT"}); err != nil {
		t.Fatalf("set fields failed: %v", err)
	}
	if err := c.SetFields(ctx, "txn:1", map[string]string{"amount": "5"}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	found, m, err := c.GetFields(ctx, "txn:1")
	if err != nil || !found {
		t.Fatalf("get fields failed: found=%v err=%v", found, err)
	}
	if m["state"] != "INIT" || m["amount"] != "5" {
		t.Errorf("fields not merged: %v", m)
	}

	c.SetFields(ctx, "txn:2", map[string]string{"state": "INIT"})
	c.Set(ctx, "idem:x", "{}", time.Hour)

	var keys []string
	if err := c.ScanKeys(ctx, "txn:*", func(k string) error {
		keys = append(keys, k)
		return nil
	}); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 txn keys, got %v", keys)
	}
}
