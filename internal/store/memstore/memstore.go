// Package memstore is an in-process implementation of store.Store used by
// component tests and local/dev runs. It is the reference implementation
// for the invariants in spec §8: every uniqueness constraint the spec names
// is enforced here with a plain Go map keyed the same way a SQL unique
// index would be.
//
// Transactions are implemented with copy-on-write snapshots: WithinTx
// clones the current data set, runs the closure against the clone, and
// swaps it in only on success. Concurrent transactions are serialized by a
// single mutex, matching the "store is shared and mutable" concurrency
// model of spec §5 without needing real MVCC.
package memstore

import (
	"context"
	"sync"

	"github.com/fluxmeter/billing-core/internal/store"
)

type MemStore struct {
	mu   sync.Mutex
	data *data
}

func New() *MemStore {
	return &MemStore{data: newData()}
}

// WithinTx clones the data set, runs fn against a MemStore bound to the
// clone, and commits the clone back only if fn returns nil.
func (m *MemStore) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := m.data.clone()
	txStore := &MemStore{data: clone}

	if err := fn(txStore); err != nil {
		return err
	}
	m.data = clone
	return nil
}

// withLock runs fn with this MemStore's mutex held. A transaction view built
// by WithinTx is a separate MemStore with its own mutex, so locking it does
// not wait on the outer lock that WithinTx holds.
func (m *MemStore) withLock(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}
