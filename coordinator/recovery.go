package coordinator

import (
	"context"
	log "log/slog"
	"time"

	"github.com/sharedcode/xfer"
	"github.com/sharedcode/xfer/txnlog"
)

// RecoveryOptions bound the worker's sweeps. Zero fields take defaults.
type RecoveryOptions struct {
	// Interval between sweeps of the transaction log.
	Interval time.Duration
	// RollbackTimeout is the minimum age of a PREPARED_ALL entry before it
	// is reaped. It must be strictly greater than a healthy transfer's
	// maximum expected duration.
	RollbackTimeout time.Duration
	// CallTimeout caps each rollback RPC.
	CallTimeout time.Duration
}

func (o RecoveryOptions) withDefaults() RecoveryOptions {
	if o.Interval == 0 {
		o.Interval = 2 * time.Second
	}
	if o.RollbackTimeout == 0 {
		o.RollbackTimeout = 10 * time.Second
	}
	if o.CallTimeout == 0 {
		o.CallTimeout = 5 * time.Second
	}
	return o
}

// RecoveryWorker scans the transaction log for transfers stuck in
// PREPARED_ALL past the rollback timeout, typically left behind by a
// coordinator crash between prepare and commit, and aborts them with a
// best-effort rollback to both participants. COMMITTED entries are never
// reaped. Errors never stop the loop; the next tick tries again.
type RecoveryWorker struct {
	txnLog *txnlog.Log
	parts  Participants
	opts   RecoveryOptions
}

func NewRecoveryWorker(cache xfer.Cache, parts Participants, opts RecoveryOptions) *RecoveryWorker {
	return &RecoveryWorker{
		txnLog: txnlog.NewLog(cache),
		parts:  parts,
		opts:   opts.withDefaults(),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (w *RecoveryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				log.Warn("recovery sweep failed", "error", err.Error())
			}
		}
	}
}

// RunSupervised keeps Run alive for the life of ctx, restarting it if it
// ever returns early.
func (w *RecoveryWorker) RunSupervised(ctx context.Context) {
	for {
		w.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Error("recovery loop exited, restarting")
	}
}

// Sweep makes one pass over the log and reaps every eligible entry.
func (w *RecoveryWorker) Sweep(ctx context.Context) error {
	return w.txnLog.Each(ctx, func(rec xfer.TxnRecord) error {
		if rec.State != xfer.StatePreparedAll {
			return nil
		}
		preparedAt := rec.PreparedAt
		if preparedAt == 0 {
			preparedAt = rec.UpdatedAt
		}
		if xfer.Now()-preparedAt < w.opts.RollbackTimeout.Seconds() {
			return nil
		}
		w.reap(ctx, rec)
		return nil
	})
}

func (w *RecoveryWorker) reap(ctx context.Context, rec xfer.TxnRecord) {
	log.Info("reaping transaction stuck in PREPARED_ALL",
		"txn", rec.ID, "src", rec.Source, "dst", rec.Destination, "amount", rec.Amount)

	for _, name := range []string{rec.Source, rec.Destination} {
		if !w.parts.Has(name) {
			continue
		}
		callCtx, c := context.WithTimeout(ctx, w.opts.CallTimeout)
		if err := w.parts.Rollback(callCtx, name, rec.ID); err != nil {
			log.Warn("recovery rollback failed", "txn", rec.ID, "participant", name, "error", err.Error())
		}
		c()
	}

	if err := w.txnLog.Write(ctx, rec.ID, txnlog.StateFields(xfer.StateAbortedRecovered, "recovered_at")); err != nil {
		log.Warn("writing ABORTED_RECOVERED failed", "txn", rec.ID, "error", err.Error())
	}
}
