// Package xfer contains the shared model types of the money-transfer
// facility: transfer requests and results, transaction log records and
// their state machine, and the fault-injection knobs used by the dev
// environment.
package xfer

import (
	"time"

	"github.com/google/uuid"
)

// Direction of a prepare on a participant. A debit reserves funds as a
// hold; a credit records a pending addition.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// IsValid reports whether d is one of the two known directions.
func (d Direction) IsValid() bool {
	return d == Debit || d == Credit
}

// TxnState enumerates the coordinator-side lifecycle of a transfer.
type TxnState string

const (
	StateInit             TxnState = "INIT"
	StatePreparedAll      TxnState = "PREPARED_ALL"
	StateCommitted        TxnState = "COMMITTED"
	StateAborted          TxnState = "ABORTED"
	StateAbortedRecovered TxnState = "ABORTED_RECOVERED"
)

// TxnRecord is one transaction log entry, keyed by txn:<ID> in the shared
// store. Timestamps are unix seconds; zero means "not reached".
type TxnRecord struct {
	ID          string   `json:"txn_id"`
	State       TxnState `json:"state"`
	Source      string   `json:"src"`
	Destination string   `json:"dst"`
	Amount      int64    `json:"amount"`
	CreatedAt   float64  `json:"created_at,omitempty"`
	PreparedAt  float64  `json:"prepared_at,omitempty"`
	CommittedAt float64  `json:"committed_at,omitempty"`
	AbortedAt   float64  `json:"aborted_at,omitempty"`
	RecoveredAt float64  `json:"recovered_at,omitempty"`
	UpdatedAt   float64  `json:"updated_at,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// CrashParticipant names a participant to kill and the stage at which to
// kill it. Only the "after_prepare" stage exists today.
type CrashParticipant struct {
	Name  string `json:"name"`
	Stage string `json:"stage"`
}

const StageAfterPrepare = "after_prepare"

// Simulate carries the dev-only fault-injection knobs of a transfer.
type Simulate struct {
	CrashCoordinatorAfterPrepare bool              `json:"crash_coordinator_after_prepare,omitempty"`
	CrashParticipant             *CrashParticipant `json:"crash_participant,omitempty"`
}

// TransferRequest is the body of POST /transfer.
type TransferRequest struct {
	FromAccount    string    `json:"from_account"`
	ToAccount      string    `json:"to_account"`
	Amount         int64     `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Simulate       *Simulate `json:"simulate,omitempty"`
}

// TransferResult is the success body of POST /transfer. For a given
// idempotency key the same result is returned verbatim on replay.
type TransferResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

const StatusCommitted = "committed"

// NewTxnID mints a coordinator-unique transaction id.
func NewTxnID() string {
	return uuid.New().String()
}

// Now returns the current time as unix seconds, the timestamp format of
// the transaction log.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
