package participant

import (
	"fmt"
	log "log/slog"
	"os"
	"sync"

	"github.com/sharedcode/xfer"
)

// Service owns one account's durable state and serialises every operation
// under one exclusive lock: a prepare can never race another prepare
// against the same balance. All four operations are idempotent on the
// transaction id.
type Service struct {
	mu      sync.Mutex
	store   *Store
	state   State
	metrics *Metrics

	// exit terminates the process for the crash_after_prepare knob.
	// Injectable so tests can observe the crash instead of dying.
	exit func(code int)
}

// NewService loads (or seeds) the account state and returns the service.
func NewService(store *Store, account string, initialBalance int64) (*Service, error) {
	state, err := store.Load(account, initialBalance)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:   store,
		state:   state,
		metrics: NewMetrics(),
		exit:    os.Exit,
	}, nil
}

// Metrics exposes the service counters for the REST surface.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// Account returns the account name this participant owns.
func (s *Service) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Account
}

// Prepare records a hold (debit) or pending credit for the transaction and
// flushes it durably before acknowledging. Replays of an already-recorded
// prepare succeed without touching state. A debit that would over-reserve
// the balance fails with InsufficientFunds and changes nothing.
//
// When crashAfterPrepare is set the process exits after the durable flush
// and before the acknowledgement, simulating a crash between the write and
// the reply.
func (s *Service) Prepare(txnID string, amount int64, direction xfer.Direction, crashAfterPrepare bool) error {
	if !direction.IsValid() {
		return xfer.Errorf(xfer.ValidationError, "direction invalid: %q", direction)
	}
	if amount <= 0 {
		return xfer.Errorf(xfer.ValidationError, "amount must be positive, got %d", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotent replay: a txn id lives in at most one of the two maps and
	// a prepare for a known txn, either direction, replays as success.
	if _, ok := s.state.Holds[txnID]; ok {
		return nil
	}
	if _, ok := s.state.Pendings[txnID]; ok {
		return nil
	}

	if direction == xfer.Debit {
		// The balance must cover every outstanding hold plus this one, so
		// that committing any subset of holds cannot drive it negative.
		if s.state.Balance-s.state.HeldTotal() < amount {
			return xfer.Errorf(xfer.InsufficientFunds, "insufficient funds: balance %d, held %d, requested %d",
				s.state.Balance, s.state.HeldTotal(), amount)
		}
		s.state.Holds[txnID] = amount
	} else {
		s.state.Pendings[txnID] = amount
	}

	if err := s.flush(); err != nil {
		// Undo the in-memory entry; nothing was acknowledged.
		delete(s.state.Holds, txnID)
		delete(s.state.Pendings, txnID)
		return err
	}
	s.metrics.Prepares.Add(1)

	if crashAfterPrepare {
		log.Warn("simulated crash after prepare", "txn", txnID)
		s.exit(1)
	}
	return nil
}

// Commit applies the hold or pending credit for the transaction and removes
// it, atomically with the flush. An unknown transaction id commits as a
// no-op success: unknown-after-commit is indistinguishable from a replay.
func (s *Service) Commit(txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount, ok := s.state.Holds[txnID]; ok {
		delete(s.state.Holds, txnID)
		s.state.Balance -= amount
		if err := s.flush(); err != nil {
			s.state.Holds[txnID] = amount
			s.state.Balance += amount
			return err
		}
		s.metrics.Commits.Add(1)
		return nil
	}
	if amount, ok := s.state.Pendings[txnID]; ok {
		delete(s.state.Pendings, txnID)
		s.state.Balance += amount
		if err := s.flush(); err != nil {
			s.state.Pendings[txnID] = amount
			s.state.Balance -= amount
			return err
		}
		s.metrics.Commits.Add(1)
		return nil
	}
	// Nothing to do, still idempotent success.
	s.metrics.Commits.Add(1)
	return nil
}

// Rollback removes the transaction from holds and pendings without touching
// the balance, flushing only when state actually changed. Always succeeds.
func (s *Service) Rollback(txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	heldAmount, held := s.state.Holds[txnID]
	pendingAmount, pending := s.state.Pendings[txnID]
	if !held && !pending {
		return nil
	}
	delete(s.state.Holds, txnID)
	delete(s.state.Pendings, txnID)
	if err := s.flush(); err != nil {
		if held {
			s.state.Holds[txnID] = heldAmount
		}
		if pending {
			s.state.Pendings[txnID] = pendingAmount
		}
		return err
	}
	s.metrics.Rollbacks.Add(1)
	return nil
}

// Balance returns a snapshot of the account record.
func (s *Service) Balance() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// flush persists the state; callers hold the lock.
func (s *Service) flush() error {
	if err := s.store.Save(s.state); err != nil {
		return fmt.Errorf("flushing account state: %w", err)
	}
	return nil
}
