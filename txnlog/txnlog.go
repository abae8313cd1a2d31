// Package txnlog persists coordinator transaction state and idempotency
// response snapshots in the shared store. Log entries live in hash records
// keyed txn:<id>; idempotency snapshots are JSON strings keyed idem:<key>
// with a 24 hour TTL.
package txnlog

import (
	"context"
	"strconv"
	"strings"

	"github.com/sharedcode/xfer"
)

const (
	// KeyPrefix namespaces transaction log entries in the shared store.
	KeyPrefix = "txn:"
)

// Log is the transaction log adapter. It is shared by the coordinator's
// transfer path and the recovery worker; participants never touch it.
type Log struct {
	cache xfer.Cache
}

func NewLog(cache xfer.Cache) *Log {
	return &Log{cache: cache}
}

// Write merges fields into the entry for txnID and stamps updated_at.
func (l *Log) Write(ctx context.Context, txnID string, fields map[string]string) error {
	m := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		m[k] = v
	}
	m["updated_at"] = formatTime(xfer.Now())
	if err := l.cache.SetFields(ctx, KeyPrefix+txnID, m); err != nil {
		return xfer.Errorf(xfer.DependencyError, "writing txn log entry %s: %v", txnID, err)
	}
	return nil
}

// Raw returns the stored fields of the entry for txnID as-is.
func (l *Log) Raw(ctx context.Context, txnID string) (map[string]string, bool, error) {
	found, m, err := l.cache.GetFields(ctx, KeyPrefix+txnID)
	if err != nil {
		return nil, false, xfer.Errorf(xfer.DependencyError, "reading txn log entry %s: %v", txnID, err)
	}
	return m, found, nil
}

// Get returns the parsed entry for txnID. Unknown fields are ignored for
// forward compatibility.
func (l *Log) Get(ctx context.Context, txnID string) (xfer.TxnRecord, bool, error) {
	m, found, err := l.Raw(ctx, txnID)
	if err != nil || !found {
		return xfer.TxnRecord{}, found, err
	}
	return parseRecord(txnID, m), true, nil
}

// Each invokes fn for every transaction log entry. Per-entry read errors
// abort the iteration; the caller decides whether that matters.
func (l *Log) Each(ctx context.Context, fn func(rec xfer.TxnRecord) error) error {
	return l.cache.ScanKeys(ctx, KeyPrefix+"*", func(key string) error {
		txnID := strings.TrimPrefix(key, KeyPrefix)
		rec, found, err := l.Get(ctx, txnID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		return fn(rec)
	})
}

// InitFields builds the field set of a fresh INIT entry.
func InitFields(src, dst string, amount int64) map[string]string {
	return map[string]string{
		"state":      string(xfer.StateInit),
		"src":        src,
		"dst":        dst,
		"amount":     strconv.FormatInt(amount, 10),
		"created_at": formatTime(xfer.Now()),
	}
}

// StateFields builds a state transition field set, stamping tsField (e.g.
// "prepared_at") with the current time.
func StateFields(state xfer.TxnState, tsField string) map[string]string {
	return map[string]string{
		"state": string(state),
		tsField: formatTime(xfer.Now()),
	}
}

func parseRecord(txnID string, m map[string]string) xfer.TxnRecord {
	rec := xfer.TxnRecord{
		ID:          txnID,
		State:       xfer.TxnState(m["state"]),
		Source:      m["src"],
		Destination: m["dst"],
		Error:       m["error"],
	}
	rec.Amount, _ = strconv.ParseInt(m["amount"], 10, 64)
	rec.CreatedAt = parseTime(m["created_at"])
	rec.PreparedAt = parseTime(m["prepared_at"])
	rec.CommittedAt = parseTime(m["committed_at"])
	rec.AbortedAt = parseTime(m["aborted_at"])
	rec.RecoveredAt = parseTime(m["recovered_at"])
	rec.UpdatedAt = parseTime(m["updated_at"])
	return rec
}

func formatTime(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

func parseTime(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
