package service

import (
	"time"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/campusfee/campusfee-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScheduleService splits a ledger's total amount into dated installments and
// tracks per-installment due/paid/overdue state.
type ScheduleService struct {
	writer         ledgerWriter
	eventPublisher websocket.EventPublisher
}

// NewScheduleService creates a new ScheduleService
func NewScheduleService(ledgerRepo domain.FeeLedgerRepository, locks *LedgerLocks) *ScheduleService {
	return &ScheduleService{
		writer: ledgerWriter{repo: ledgerRepo, locks: locks},
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *ScheduleService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *ScheduleService) publishEvent(schoolID uuid.UUID, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(schoolID, event)
	}
}

// ScheduleInstallments replaces the ledger's installment plan with count
// installments due every intervalDays starting at firstDueDate. Rescheduling
// a plan that has already received money is rejected, not overwritten.
func (s *ScheduleService) ScheduleInstallments(schoolID, ledgerID uuid.UUID, count int, firstDueDate time.Time, intervalDays int) (*domain.FeeLedger, error) {
	if count < 1 {
		return nil, domain.ErrScheduleCountInvalid
	}
	if intervalDays < 1 {
		return nil, domain.ErrScheduleIntervalInvalid
	}

	updated, err := s.writer.mutate(schoolID, ledgerID, func(ledger *domain.FeeLedger) error {
		if ledger.TotalAmount.LessThanOrEqual(decimal.Zero) {
			return domain.ErrScheduleAmountInvalid
		}
		if ledger.HasInstallmentPayments() {
			return domain.ErrScheduleHasPayments
		}

		ledger.Installments = SplitIntoInstallments(ledger.TotalAmount, count, firstDueDate, intervalDays)
		Recompute(ledger, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(schoolID, websocket.InstallmentsScheduled(updated))
	return updated, nil
}

// SplitIntoInstallments divides totalAmount into count installments due
// every intervalDays. Each installment gets the 2-decimal floor of the even
// split; the last absorbs the rounding remainder, so the amounts always sum
// to totalAmount exactly.
func SplitIntoInstallments(totalAmount decimal.Decimal, count int, firstDueDate time.Time, intervalDays int) []domain.Installment {
	base := totalAmount.Div(decimal.NewFromInt(int64(count))).RoundDown(2)

	installments := make([]domain.Installment, count)
	allocated := decimal.Zero
	for k := 0; k < count; k++ {
		amount := base
		if k == count-1 {
			amount = totalAmount.Sub(allocated)
		}
		allocated = allocated.Add(amount)

		installments[k] = domain.Installment{
			InstallmentNumber: k + 1,
			DueDate:           firstDueDate.AddDate(0, 0, k*intervalDays),
			Amount:            amount,
			PaidAmount:        decimal.Zero,
			Status:            domain.InstallmentStatusPending,
			LateFee:           decimal.Zero,
		}
	}
	return installments
}
