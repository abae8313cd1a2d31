package participant

import (
	"strings"
	"testing"

	"github.com/sharedcode/xfer"
)

func TestMetricsRender(t *testing.T) {
	svc := newTestService(t, 1000)

	if err := svc.Prepare("t1", 100, xfer.Debit, false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if err := svc.Prepare("t2", 50, xfer.Credit, false); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if err := svc.Commit("t1"); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := svc.Rollback("t2"); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	out := svc.Metrics().Render(svc.Balance())
	for _, want := range []string{
		"prepares_total 2",
		"commits_total 1",
		"rollbacks_total 1",
		"balance 900",
		"holds 0",
		"pendings 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q:\n%s", want, out)
		}
	}
}
