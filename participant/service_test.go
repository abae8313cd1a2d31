package participant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sharedcode/xfer"
)

func newTestService(t *testing.T, balance int64) *Service {
	t.Helper()
	svc, err := NewService(NewStore(t.TempDir()), "A", balance)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestPrepareCommitDebit(t *testing.T) {
	svc := newTestService(t, 1000)

	if err := svc.Prepare("t1", 100, xfer.Debit, false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	state := svc.Balance()
	if state.Balance != 1000 {
		t.Errorf("prepare must not move the balance, got %d", state.Balance)
	}
	if state.Holds["t1"] != 100 {
		t.Errorf("expected hold of 100, got %v", state.Holds)
	}

	if err := svc.Commit("t1"); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	state = svc.Balance()
	if state.Balance != 900 {
		t.Errorf("expected balance 900 after commit, got %d", state.Balance)
	}
	if len(state.Holds) != 0 {
		t.Errorf("hold must be gone after commit, got %v", state.Holds)
	}
}

func TestPrepareCommitCredit(t *testing.T) {
	svc := newTestService(t, 1000)

	if err := svc.Prepare("t1", 100, xfer.Credit, false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	state := svc.Balance()
	if state.Balance != 1000 || state.Pendings["t1"] != 100 {
		t.Errorf("expected pending 100 and untouched balance, got %+v", state)
	}

	if err := svc.Commit("t1"); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	state = svc.Balance()
	if state.Balance != 1100 || len(state.Pendings) != 0 {
		t.Errorf("expected balance 1100 and no pendings, got %+v", state)
	}
}

func TestInsufficientFunds(t *testing.T) {
	svc := newTestService(t, 50)

	err := svc.Prepare("t1", 100, xfer.Debit, false)
	if xfer.CodeOf(err) != xfer.InsufficientFunds {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	state := svc.Balance()
	if len(state.Holds) != 0 || state.Balance != 50 {
		t.Errorf("failed prepare must not change state, got %+v", state)
	}
}

func TestDebitHoldsCannotOverReserve(t *testing.T) {
	svc := newTestService(t, 1000)

	if err := svc.Prepare("t1", 600, xfer.Debit, false); err != nil {
		t.Fatalf("first prepare failed: %v", err)
	}
	err := svc.Prepare("t2", 600, xfer.Debit, false)
	if xfer.CodeOf(err) != xfer.InsufficientFunds {
		t.Fatalf("second 600 hold on a 1000 balance must fail, got %v", err)
	}

	// Committing every accepted hold keeps the balance non-negative.
	if err := svc.Commit("t1"); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if state := svc.Balance(); state.Balance < 0 {
		t.Errorf("balance went negative: %d", state.Balance)
	}
}

func TestOperationsAreIdempotent(t *testing.T) {
	svc := newTestService(t, 1000)

	// prepare, prepare, commit, commit, rollback == prepare, commit.
	for i := 0; i < 2; i++ {
		if err := svc.Prepare("t1", 100, xfer.Debit, false); err != nil {
			t.Fatalf("prepare #%d failed: %v", i+1, err)
		}
	}
	if n := len(svc.Balance().Holds); n != 1 {
		t.Fatalf("expected one hold after replayed prepare, got %d", n)
	}
	for i := 0; i < 2; i++ {
		if err := svc.Commit("t1"); err != nil {
			t.Fatalf("commit #%d failed: %v", i+1, err)
		}
	}
	if err := svc.Rollback("t1"); err != nil {
		t.Fatalf("rollback after commit failed: %v", err)
	}

	state := svc.Balance()
	if state.Balance != 900 {
		t.Errorf("expected balance 900, got %d", state.Balance)
	}
	if len(state.Holds) != 0 || len(state.Pendings) != 0 {
		t.Errorf("expected clean holds/pendings, got %+v", state)
	}
}

func TestCommitUnknownTxnSucceeds(t *testing.T) {
	svc := newTestService(t, 1000)
	if err := svc.Commit("never-prepared"); err != nil {
		t.Errorf("commit of unknown txn must be a no-op success, got %v", err)
	}
	if err := svc.Rollback("never-prepared"); err != nil {
		t.Errorf("rollback of unknown txn must succeed, got %v", err)
	}
	if state := svc.Balance(); state.Balance != 1000 {
		t.Errorf("balance moved on unknown txn: %d", state.Balance)
	}
}

func TestRollbackReleasesHold(t *testing.T) {
	svc := newTestService(t, 1000)

	if err := svc.Prepare("t1", 100, xfer.Debit, false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if err := svc.Rollback("t1"); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	state := svc.Balance()
	if state.Balance != 1000 || len(state.Holds) != 0 {
		t.Errorf("rollback must drop the hold without touching balance, got %+v", state)
	}

	// Funds are usable again.
	if err := svc.Prepare("t2", 1000, xfer.Debit, false); err != nil {
		t.Errorf("full-balance prepare after rollback failed: %v", err)
	}
}

func TestInvalidDirection(t *testing.T) {
	svc := newTestService(t, 1000)
	err := svc.Prepare("t1", 100, xfer.Direction("transfer"), false)
	if xfer.CodeOf(err) != xfer.ValidationError {
		t.Errorf("expected ValidationError for bad direction, got %v", err)
	}
	err = svc.Prepare("t1", 0, xfer.Debit, false)
	if xfer.CodeOf(err) != xfer.ValidationError {
		t.Errorf("expected ValidationError for zero amount, got %v", err)
	}
}

func TestCrashAfterPrepareFlushesFirst(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	svc, err := NewService(store, "A", 1000)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	exited := false
	svc.exit = func(code int) {
		exited = true
		// The durable record must already carry the hold at exit time.
		st, err := store.Load("A", 0)
		if err != nil {
			t.Fatalf("loading state at crash point failed: %v", err)
		}
		if st.Holds["t1"] != 100 {
			t.Errorf("hold not durable before crash, got %+v", st)
		}
	}

	if err := svc.Prepare("t1", 100, xfer.Debit, true); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if !exited {
		t.Error("crash_after_prepare did not trigger exit")
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(NewStore(dir), "A", 1000)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if err := svc.Prepare("t1", 100, xfer.Debit, false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	// Restart: the initial balance must not reseed an existing record.
	svc2, err := NewService(NewStore(dir), "A", 9999)
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	state := svc2.Balance()
	if state.Balance != 1000 || state.Holds["t1"] != 100 {
		t.Errorf("state lost across restart: %+v", state)
	}

	// The hold survives and can still be committed.
	if err := svc2.Commit("t1"); err != nil {
		t.Fatalf("commit after restart failed: %v", err)
	}
	if b := svc2.Balance().Balance; b != 900 {
		t.Errorf("expected 900 after restart+commit, got %d", b)
	}
}

func TestFlushLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	svc := func() *Service {
		s, err := NewService(NewStore(dir), "A", 1000)
		if err != nil {
			t.Fatalf("NewService failed: %v", err)
		}
		return s
	}()

	if err := svc.Prepare("t1", 1, xfer.Debit, false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, StateFileName+".tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind after flush")
	}
}
