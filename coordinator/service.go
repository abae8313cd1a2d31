// Package coordinator drives two-phase commit transfers across the two
// account participants, records transaction state in the shared log, and
// reaps transactions stranded by a coordinator crash.
package coordinator

import (
	"context"
	log "log/slog"
	"os"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sharedcode/xfer"
	"github.com/sharedcode/xfer/txnlog"
)

// Options bound the coordinator's waits. Zero fields take defaults.
type Options struct {
	// CallTimeout caps each participant RPC.
	CallTimeout time.Duration
	// LockAcquireTimeout caps the wait for the pair lock; PairBusy after.
	LockAcquireTimeout time.Duration
	// LockHoldTimeout is the pair lock TTL, so a crashed coordinator
	// cannot strand the lock. It also caps one transfer end to end and
	// must exceed a healthy transfer's worst case.
	LockHoldTimeout time.Duration
	// LockRetryInterval is the poll interval while waiting for the lock.
	LockRetryInterval time.Duration
	// AllowSimulate honours the dev-only fault-injection knobs.
	AllowSimulate bool
}

func (o Options) withDefaults() Options {
	if o.CallTimeout == 0 {
		o.CallTimeout = 5 * time.Second
	}
	if o.LockAcquireTimeout == 0 {
		o.LockAcquireTimeout = 5 * time.Second
	}
	if o.LockHoldTimeout == 0 {
		o.LockHoldTimeout = 15 * time.Second
	}
	if o.LockRetryInterval == 0 {
		o.LockRetryInterval = 100 * time.Millisecond
	}
	return o
}

// Service is the transfer orchestrator. Many transfers may be in flight
// concurrently; same-pair transfers are linearised by the store-backed
// pair lock so multiple coordinator replicas stay safe.
type Service struct {
	cache   xfer.Cache
	log     *txnlog.Log
	idem    *txnlog.IdempotencyStore
	parts   Participants
	metrics *Metrics
	opts    Options

	// exit terminates the process for crash_coordinator_after_prepare.
	// Injectable so tests can observe the crash instead of dying.
	exit func(code int)
}

func NewService(cache xfer.Cache, parts Participants, opts Options) *Service {
	return &Service{
		cache:   cache,
		log:     txnlog.NewLog(cache),
		idem:    txnlog.NewIdempotencyStore(cache),
		parts:   parts,
		metrics: NewMetrics(),
		opts:    opts.withDefaults(),
		exit:    os.Exit,
	}
}

// Metrics exposes the service counters for the REST surface.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// Lookup returns the raw transaction log entry for the lookup endpoint.
func (s *Service) Lookup(ctx context.Context, txnID string) (map[string]string, error) {
	m, found, err := s.log.Raw(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, xfer.Errorf(xfer.NotFound, "txn %s not found", txnID)
	}
	return m, nil
}

// Transfer runs one 2PC money transfer: dedupe by idempotency key, INIT log
// entry, pair lock, prepare src (debit) then dst (credit), PREPARED_ALL,
// commit both, COMMITTED. Any failure after the lock enters the abort path:
// best-effort rollback to both participants, ABORTED, and a conflict-class
// error to the caller. No partial commit is ever exposed.
func (s *Service) Transfer(ctx context.Context, req xfer.TransferRequest) (xfer.TransferResult, error) {
	t0 := time.Now()
	s.metrics.Requests.Add(1)
	defer func() {
		s.metrics.ObserveLatency(float64(time.Since(t0).Microseconds()) / 1000)
	}()

	var zero xfer.TransferResult
	if err := s.validate(req); err != nil {
		return zero, err
	}

	// Request idempotency: replay the stored response verbatim.
	if req.IdempotencyKey != "" {
		stored, found, err := s.idem.Lookup(ctx, req.IdempotencyKey)
		if err != nil {
			return zero, err
		}
		if found {
			s.metrics.IdempotentHits.Add(1)
			return stored, nil
		}
	}

	sim := req.Simulate
	if !s.opts.AllowSimulate {
		sim = nil
	}

	txnID := xfer.NewTxnID()
	if err := s.log.Write(ctx, txnID, txnlog.InitFields(req.FromAccount, req.ToAccount, req.Amount)); err != nil {
		return zero, err
	}

	// The pair key is ordered; A:B and B:A are distinct locks. With two
	// accounts that cannot deadlock. More accounts need a canonical key.
	lockKeys := s.cache.CreateLockKeys([]string{"pair:" + req.FromAccount + ":" + req.ToAccount})
	if err := s.acquirePairLock(ctx, lockKeys); err != nil {
		return zero, err
	}

	// A 2PC in flight runs to completion or to the abort path regardless
	// of client disconnect; detach from the request's cancellation and
	// bound the whole transfer by the lock TTL instead.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.LockHoldTimeout)
	defer cancel()
	defer func() {
		unlockCtx, c := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer c()
		if err := s.cache.Unlock(unlockCtx, lockKeys); err != nil {
			log.Warn("pair unlock failed", "txn", txnID, "error", err.Error())
		}
	}()

	// Phase 1: prepare, src debit strictly before dst credit.
	legs := []struct {
		name      string
		direction xfer.Direction
	}{
		{req.FromAccount, xfer.Debit},
		{req.ToAccount, xfer.Credit},
	}
	for _, leg := range legs {
		crash := sim != nil && sim.CrashParticipant != nil &&
			sim.CrashParticipant.Name == leg.name &&
			sim.CrashParticipant.Stage == xfer.StageAfterPrepare
		callCtx, c := context.WithTimeout(opCtx, s.opts.CallTimeout)
		err := s.parts.Prepare(callCtx, leg.name, txnID, req.Amount, leg.direction, crash)
		c()
		if err != nil {
			return zero, s.abort(opCtx, txnID, req.FromAccount, req.ToAccount, err)
		}
	}

	if err := s.log.Write(opCtx, txnID, txnlog.StateFields(xfer.StatePreparedAll, "prepared_at")); err != nil {
		return zero, s.abort(opCtx, txnID, req.FromAccount, req.ToAccount, err)
	}

	// Simulated coordinator crash: PREPARED_ALL is durable, then die. The
	// recovery worker reaps this transaction after the rollback timeout.
	if sim != nil && sim.CrashCoordinatorAfterPrepare {
		log.Warn("simulated coordinator crash after prepare", "txn", txnID)
		s.exit(1)
	}

	// Phase 2: commit both, retrying transient transport errors within
	// the transfer deadline. Participants treat commit as idempotent, so
	// retries are safe. A commit failure that outlives the retries is
	// treated as abort, matching the log-first coordinator's behaviour;
	// telemetry flags it because one side may already have applied.
	for _, leg := range legs {
		err := xfer.Retry(opCtx, func(ctx context.Context) error {
			callCtx, c := context.WithTimeout(ctx, s.opts.CallTimeout)
			defer c()
			if err := s.parts.Commit(callCtx, leg.name, txnID); err != nil {
				if xfer.ShouldRetry(err) {
					return retry.RetryableError(err)
				}
				return err
			}
			return nil
		}, nil)
		if err != nil {
			log.Error("commit failed after PREPARED_ALL, aborting; a participant may have applied one side",
				"txn", txnID, "participant", leg.name, "error", err.Error())
			return zero, s.abort(opCtx, txnID, req.FromAccount, req.ToAccount, err)
		}
	}

	if err := s.log.Write(opCtx, txnID, txnlog.StateFields(xfer.StateCommitted, "committed_at")); err != nil {
		return zero, s.abort(opCtx, txnID, req.FromAccount, req.ToAccount, err)
	}
	s.metrics.Commits.Add(1)

	result := xfer.TransferResult{TransactionID: txnID, Status: xfer.StatusCommitted}
	// The transfer is committed; a failed response snapshot only costs a
	// replay the idempotency layer would have absorbed.
	if err := s.idem.Save(opCtx, req.IdempotencyKey, result); err != nil {
		log.Warn("storing idempotency response failed", "txn", txnID, "error", err.Error())
	}
	return result, nil
}

func (s *Service) validate(req xfer.TransferRequest) error {
	if req.FromAccount == req.ToAccount {
		return xfer.Errorf(xfer.ValidationError, "from == to")
	}
	if req.Amount <= 0 {
		return xfer.Errorf(xfer.ValidationError, "amount must be positive, got %d", req.Amount)
	}
	if !s.parts.Has(req.FromAccount) {
		return xfer.Errorf(xfer.ValidationError, "unknown account %q", req.FromAccount)
	}
	if !s.parts.Has(req.ToAccount) {
		return xfer.Errorf(xfer.ValidationError, "unknown account %q", req.ToAccount)
	}
	return nil
}

// acquirePairLock polls the store-backed lock until acquired or the bounded
// wait elapses.
func (s *Service) acquirePairLock(ctx context.Context, lockKeys []*xfer.LockKey) error {
	deadline := time.Now().Add(s.opts.LockAcquireTimeout)
	for {
		ok, _, err := s.cache.Lock(ctx, s.opts.LockHoldTimeout, lockKeys)
		if err != nil {
			return xfer.Errorf(xfer.DependencyError, "acquiring pair lock: %v", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return xfer.Errorf(xfer.PairBusy, "pair busy, try again")
		}
		select {
		case <-ctx.Done():
			return xfer.Errorf(xfer.PairBusy, "pair busy: %v", ctx.Err())
		case <-time.After(s.opts.LockRetryInterval):
		}
	}
}

// abort is the failure path between prepare and commit: best-effort
// rollback fan-out to both participants in parallel, individual transport
// errors ignored, then the ABORTED log entry once both attempts complete.
func (s *Service) abort(ctx context.Context, txnID, src, dst string, cause error) error {
	tr := xfer.NewTaskRunner(ctx, 2)
	for _, name := range []string{src, dst} {
		tr.Go(func() error {
			callCtx, c := context.WithTimeout(ctx, s.opts.CallTimeout)
			defer c()
			if err := s.parts.Rollback(callCtx, name, txnID); err != nil {
				log.Warn("best-effort rollback failed", "txn", txnID, "participant", name, "error", err.Error())
			}
			return nil
		})
	}
	_ = tr.Wait()

	fields := txnlog.StateFields(xfer.StateAborted, "aborted_at")
	fields["error"] = cause.Error()
	if err := s.log.Write(ctx, txnID, fields); err != nil {
		log.Error("writing ABORTED log entry failed", "txn", txnID, "error", err.Error())
	}
	s.metrics.Rollbacks.Add(1)
	return xfer.Error{Code: xfer.TransactionAborted, Err: cause}
}
