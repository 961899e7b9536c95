package service

import (
	"time"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/campusfee/campusfee-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LateFeeService accrues late fees on overdue installments. Accrual is
// monotonic: late fees only ever increase, and each installment accrues at
// most once per accrual period, tracked by its last-accrual timestamp.
type LateFeeService struct {
	writer         ledgerWriter
	eventPublisher websocket.EventPublisher
}

// NewLateFeeService creates a new LateFeeService
func NewLateFeeService(ledgerRepo domain.FeeLedgerRepository, locks *LedgerLocks) *LateFeeService {
	return &LateFeeService{
		writer: ledgerWriter{repo: ledgerRepo, locks: locks},
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *LateFeeService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *LateFeeService) publishEvent(schoolID uuid.UUID, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(schoolID, event)
	}
}

// AccrueLateFees charges the ledger's late-fee percentage on the outstanding
// balance of every installment past its grace period, then recomputes the
// derived totals. Running it twice within the same accrual period is a no-op
// for already-charged installments. Waived ledgers never accrue.
func (s *LateFeeService) AccrueLateFees(schoolID, ledgerID uuid.UUID, now time.Time) (*domain.FeeLedger, bool, error) {
	accrued := false

	updated, err := s.writer.mutate(schoolID, ledgerID, func(ledger *domain.FeeLedger) error {
		accrued = false
		if ledger.Status == domain.LedgerStatusWaived {
			return nil
		}

		for idx := range ledger.Installments {
			inst := &ledger.Installments[idx]
			if inst.Status == domain.InstallmentStatusPaid {
				continue
			}

			period := accrualPeriodIndex(inst.DueDate, ledger.LateFees.GracePeriodDays, now)
			if period < 0 {
				continue
			}
			if inst.LastAccrualAt != nil &&
				accrualPeriodIndex(inst.DueDate, ledger.LateFees.GracePeriodDays, *inst.LastAccrualAt) >= period {
				continue
			}

			fee := inst.Outstanding().
				Mul(ledger.LateFees.LateFeePercentage).
				Div(decimal.NewFromInt(100)).
				Round(2)
			if fee.LessThanOrEqual(decimal.Zero) {
				continue
			}

			inst.LateFee = inst.LateFee.Add(fee)
			ledger.LateFees.TotalLateFee = ledger.LateFees.TotalLateFee.Add(fee)
			accrualTime := now
			inst.LastAccrualAt = &accrualTime
			accrued = true
		}

		Recompute(ledger, now)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if accrued {
		s.publishEvent(schoolID, websocket.LateFeeAccrued(updated))
	}
	return updated, accrued, nil
}

// accrualPeriodIndex returns which accrual period the instant falls in.
// Periods are consecutive windows of the grace-period length, the first one
// opening at dueDate+gracePeriodDays. Returns -1 before the first period. A
// zero grace period degrades to daily windows starting at the due date.
func accrualPeriodIndex(dueDate time.Time, gracePeriodDays int, at time.Time) int {
	windowDays := gracePeriodDays
	if windowDays < 1 {
		windowDays = 1
	}

	threshold := dueDate.AddDate(0, 0, gracePeriodDays)
	if !at.After(threshold) {
		return -1
	}

	window := time.Duration(windowDays) * 24 * time.Hour
	return int(at.Sub(threshold) / window)
}
