package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/sharedcode/xfer"
	"github.com/sharedcode/xfer/redis"
	"github.com/sharedcode/xfer/txnlog"
)

func TestRecoveryLoopReapsStrandedTransaction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := redis.NewMockClient()
	parts := newLocalParticipants(t, map[string]int64{"A": 1000, "B": 1000})
	log := txnlog.NewLog(cache)

	// Strand a prepared transfer the way a crashed coordinator would.
	txnID := xfer.NewTxnID()
	if err := parts.svcs["A"].Prepare(txnID, 100, xfer.Debit, false); err != nil {
		t.Fatalf("prepare A failed: %v", err)
	}
	if err := parts.svcs["B"].Prepare(txnID, 100, xfer.Credit, false); err != nil {
		t.Fatalf("prepare B failed: %v", err)
	}
	fields := txnlog.InitFields("A", "B", 100)
	fields["state"] = string(xfer.StatePreparedAll)
	fields["prepared_at"] = "1" // long in the past
	if err := log.Write(ctx, txnID, fields); err != nil {
		t.Fatalf("seeding log failed: %v", err)
	}

	worker := NewRecoveryWorker(cache, parts, RecoveryOptions{
		Interval:        10 * time.Millisecond,
		RollbackTimeout: time.Millisecond,
	})
	go worker.RunSupervised(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, _, err := log.Get(ctx, txnID)
		if err != nil {
			t.Fatalf("reading log failed: %v", err)
		}
		if rec.State == xfer.StateAbortedRecovered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transaction never reaped, still %s", rec.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	a, b := parts.balance("A"), parts.balance("B")
	if len(a.Holds) != 0 || len(b.Pendings) != 0 {
		t.Errorf("residue after recovery: A=%+v B=%+v", a, b)
	}
	if a.Balance != 1000 || b.Balance != 1000 {
		t.Errorf("recovery moved balances: %d/%d", a.Balance, b.Balance)
	}
}

func TestRecoveryLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	worker := NewRecoveryWorker(redis.NewMockClient(),
		newLocalParticipants(t, map[string]int64{"A": 1, "B": 1}),
		RecoveryOptions{Interval: 5 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		worker.RunSupervised(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recovery loop did not stop on cancellation")
	}
}
