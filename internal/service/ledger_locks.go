package service

import (
	"sync"

	"github.com/google/uuid"
)

// LedgerLocks serializes read-modify-write cycles on a single ledger. The
// ledger document is the unit of locking: payment recording, structural
// edits, scheduling and the late-fee sweep all acquire the same lock, so two
// concurrent payments (or a payment racing the sweep) can never lose an
// update. Different ledgers proceed fully in parallel.
type LedgerLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*ledgerLock
}

type ledgerLock struct {
	mu   sync.Mutex
	refs int
}

func NewLedgerLocks() *LedgerLocks {
	return &LedgerLocks{locks: make(map[uuid.UUID]*ledgerLock)}
}

// Lock acquires the mutex for the given ledger, creating it on first use.
func (l *LedgerLocks) Lock(id uuid.UUID) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &ledgerLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the ledger's mutex and drops the entry once nobody waits.
func (l *LedgerLocks) Unlock(id uuid.UUID) {
	l.mu.Lock()
	entry := l.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
