package coordinator

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// ewmaAlpha weights the latest latency sample in the moving average.
const ewmaAlpha = 0.2

// Metrics are the coordinator's plain-text counters plus an EWMA of
// transfer latency. The service owns its instance; no process globals.
type Metrics struct {
	Requests       atomic.Int64
	Commits        atomic.Int64
	Rollbacks      atomic.Int64
	IdempotentHits atomic.Int64

	mu           sync.Mutex
	latencyMsAvg float64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveLatency folds one transfer's duration into the moving average.
func (m *Metrics) ObserveLatency(ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencyMsAvg = (1-ewmaAlpha)*m.latencyMsAvg + ewmaAlpha*ms
}

// LatencyMsAvg returns the current moving average in milliseconds.
func (m *Metrics) LatencyMsAvg() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latencyMsAvg
}

// Render emits one counter per line.
func (m *Metrics) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "transfer_requests_total %d\n", m.Requests.Load())
	fmt.Fprintf(&sb, "transfer_commits_total %d\n", m.Commits.Load())
	fmt.Fprintf(&sb, "transfer_rollbacks_total %d\n", m.Rollbacks.Load())
	fmt.Fprintf(&sb, "transfer_idempotent_hits_total %d\n", m.IdempotentHits.Load())
	fmt.Fprintf(&sb, "transfer_latency_ms_avg %.2f\n", m.LatencyMsAvg())
	return sb.String()
}
