// Package participant implements the per-account 2PC participant: a durable
// {balance, holds, pendings} record, the prepare/commit/rollback state
// machine, and its REST surface. One participant process owns one account.
package participant

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sharedcode/xfer/encoding"
)

// State is the durable account record. Holds are tentative debits reserved
// from balance; pendings are tentative credits not yet added to it. A
// transaction id appears in at most one of the two maps.
type State struct {
	Account  string           `json:"account"`
	Balance  int64            `json:"balance"`
	Holds    map[string]int64 `json:"holds"`
	Pendings map[string]int64 `json:"pendings"`
}

// HeldTotal sums the outstanding debit holds.
func (s State) HeldTotal() int64 {
	var total int64
	for _, amt := range s.Holds {
		total += amt
	}
	return total
}

// Clone returns a deep copy, safe to hand out after the lock is released.
func (s State) Clone() State {
	c := s
	c.Holds = make(map[string]int64, len(s.Holds))
	for k, v := range s.Holds {
		c.Holds[k] = v
	}
	c.Pendings = make(map[string]int64, len(s.Pendings))
	for k, v := range s.Pendings {
		c.Pendings[k] = v
	}
	return c
}

// Store persists State as a single JSON document, replaced atomically via
// a sibling temp file and rename so a crash never leaves a torn record.
type Store struct {
	path string
}

// StateFileName is the document name under the data directory.
const StateFileName = "state.json"

func NewStore(dataPath string) *Store {
	return &Store{path: filepath.Join(dataPath, StateFileName)}
}

// Path returns the state file location.
func (st *Store) Path() string {
	return st.path
}

// Load reads the state file, seeding it with the initial balance only when
// no durable record exists yet.
func (st *Store) Load(account string, initialBalance int64) (State, error) {
	ba, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		s := State{
			Account:  account,
			Balance:  initialBalance,
			Holds:    make(map[string]int64),
			Pendings: make(map[string]int64),
		}
		if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
			return State{}, err
		}
		if err := st.Save(s); err != nil {
			return State{}, err
		}
		return s, nil
	}
	if err != nil {
		return State{}, err
	}
	var s State
	if err := encoding.DefaultMarshaler.Unmarshal(ba, &s); err != nil {
		return State{}, fmt.Errorf("state file %s is corrupt: %w", st.path, err)
	}
	if s.Holds == nil {
		s.Holds = make(map[string]int64)
	}
	if s.Pendings == nil {
		s.Pendings = make(map[string]int64)
	}
	return s, nil
}

// Save writes the record to a sibling temp file, flushes it, then renames
// it over the document. Only after the rename may an operation acknowledge.
func (st *Store) Save(s State) error {
	ba, err := encoding.DefaultMarshaler.Marshal(s)
	if err != nil {
		return err
	}
	tmp := st.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err = f.Write(ba); err != nil {
		f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, st.path)
}
