package service

import (
	"errors"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/google/uuid"
)

// maxUpdateRetries bounds optimistic-lock retries against writers on other
// instances; in-process writers are already serialized by LedgerLocks.
const maxUpdateRetries = 3

// ledgerWriter is the shared read-modify-write cycle for ledger mutations.
// It holds the per-ledger lock across the whole cycle and retries the
// repository's version check, so a mutation either fully applies or fully
// fails without partial state.
type ledgerWriter struct {
	repo  domain.FeeLedgerRepository
	locks *LedgerLocks
}

// mutate loads the ledger, applies fn and persists the result. fn returning
// an error aborts the cycle with no mutation persisted.
func (w ledgerWriter) mutate(schoolID, id uuid.UUID, fn func(*domain.FeeLedger) error) (*domain.FeeLedger, error) {
	w.locks.Lock(id)
	defer w.locks.Unlock(id)

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		ledger, err := w.repo.GetByID(schoolID, id)
		if err != nil {
			return nil, err
		}
		if err := fn(ledger); err != nil {
			return nil, err
		}
		updated, err := w.repo.Update(ledger)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		return updated, err
	}
	return nil, domain.ErrVersionConflict
}
