package participant

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics are the participant's plain-text counters. The service owns its
// own instance; there is no process-global state.
type Metrics struct {
	Prepares  atomic.Int64
	Commits   atomic.Int64
	Rollbacks atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Render emits one counter per line, gauges taken from the state snapshot.
func (m *Metrics) Render(state State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "prepares_total %d\n", m.Prepares.Load())
	fmt.Fprintf(&sb, "commits_total %d\n", m.Commits.Load())
	fmt.Fprintf(&sb, "rollbacks_total %d\n", m.Rollbacks.Load())
	fmt.Fprintf(&sb, "balance %d\n", state.Balance)
	fmt.Fprintf(&sb, "holds %d\n", len(state.Holds))
	fmt.Fprintf(&sb, "pendings %d\n", len(state.Pendings))
	return sb.String()
}
