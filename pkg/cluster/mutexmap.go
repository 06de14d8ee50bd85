package cluster

import (
	"fmt"
	"sync"

	"github.com/cuemby/shardmail/pkg/errs"
	"github.com/cuemby/shardmail/pkg/types"
)

// MutexMap guards ORM mutation sequences that must be atomic per account
// (spec.md §5's "Per-account lock"). Acquisition is blocking and holders
// must not perform remote I/O while holding one. Go has no poisoned-mutex
// concept, so poisoning is modeled explicitly: a panic inside WithLock
// marks that account's lock poisoned before re-panicking, and any later
// WithLock call for the same account fails fast with InternalError
// instead of silently operating on state a previous holder left
// half-mutated.
type MutexMap struct {
	mu      sync.Mutex
	entries map[types.AccountID]*acctLock
}

type acctLock struct {
	mu       sync.Mutex
	poisoned bool
}

// NewMutexMap builds an empty MutexMap.
func NewMutexMap() *MutexMap {
	return &MutexMap{entries: make(map[types.AccountID]*acctLock)}
}

func (m *MutexMap) entryFor(accountID types.AccountID) *acctLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[accountID]
	if !ok {
		e = &acctLock{}
		m.entries[accountID] = e
	}
	return e
}

// WithLock runs fn while holding accountID's lock. If a previous holder
// panicked while holding this account's lock, WithLock returns
// InternalError immediately without running fn. If fn itself panics, the
// lock is marked poisoned for all future callers and the panic
// propagates to WithLock's caller.
func (m *MutexMap) WithLock(accountID types.AccountID, fn func() error) (err error) {
	e := m.entryFor(accountID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.poisoned {
		return errs.NewInternal("cluster.MutexMap.WithLock", fmt.Errorf("account %d mutex is poisoned", accountID))
	}

	ok := false
	defer func() {
		if !ok {
			e.poisoned = true
		}
	}()

	err = fn()
	ok = true
	return err
}
