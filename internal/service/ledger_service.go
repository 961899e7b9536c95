package service

import (
	"time"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/campusfee/campusfee-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerService handles fee ledger lifecycle business logic. Every derived
// field flows through Recompute: there is no raw setter for totalAmount,
// paidAmount, dueAmount or status anywhere in this package.
type LedgerService struct {
	writer         ledgerWriter
	ledgerRepo     domain.FeeLedgerRepository
	resolver       *StructureResolver
	eventPublisher websocket.EventPublisher
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(ledgerRepo domain.FeeLedgerRepository, resolver *StructureResolver, locks *LedgerLocks) *LedgerService {
	return &LedgerService{
		writer:     ledgerWriter{repo: ledgerRepo, locks: locks},
		ledgerRepo: ledgerRepo,
		resolver:   resolver,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *LedgerService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// publishEvent publishes a WebSocket event if a publisher is configured
func (s *LedgerService) publishEvent(schoolID uuid.UUID, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(schoolID, event)
	}
}

// CreateLedgerInput contains input for billing a student for an academic year
type CreateLedgerInput struct {
	StudentID    uuid.UUID
	ClassID      uuid.UUID
	AcademicYear string
	FeeStructure *domain.FeeStructure // nil = class default fee amounts
	Discounts    *domain.Discounts
	LateFees     *domain.LateFees // nil = default policy (5% after 7 days)
	Remarks      *string
}

// CreateLedger bills a student for an academic year. The fee structure is
// resolved against the class directory, derived totals are stamped by the
// computation engine, and the ledger starts with an empty payment log.
func (s *LedgerService) CreateLedger(schoolID uuid.UUID, input CreateLedgerInput) (*domain.FeeLedger, error) {
	resolved, err := s.resolver.Resolve(schoolID, input.StudentID, input.ClassID, input.FeeStructure, input.Discounts)
	if err != nil {
		return nil, err
	}

	lateFees := domain.DefaultLateFees()
	if input.LateFees != nil {
		lateFees = *input.LateFees
	}

	ledger := &domain.FeeLedger{
		SchoolID:     schoolID,
		StudentID:    input.StudentID,
		ClassID:      input.ClassID,
		AcademicYear: input.AcademicYear,
		FeeStructure: resolved.FeeStructure,
		Discounts:    resolved.Discounts,
		LateFees:     lateFees,
		Remarks:      input.Remarks,
		IsActive:     true,
	}
	if err := ledger.Validate(); err != nil {
		return nil, err
	}

	Recompute(ledger, time.Now())

	created, err := s.ledgerRepo.Create(ledger)
	if err != nil {
		return nil, err
	}

	s.publishEvent(schoolID, websocket.FeeLedgerCreated(created))
	return created, nil
}

// GetLedger retrieves a ledger by ID within a school
func (s *LedgerService) GetLedger(schoolID, id uuid.UUID) (*domain.FeeLedger, error) {
	return s.ledgerRepo.GetByID(schoolID, id)
}

// ListLedgers retrieves ledgers for a school with optional filters, newest
// first, alongside the unpaginated total.
func (s *LedgerService) ListLedgers(schoolID uuid.UUID, filter domain.LedgerFilter) ([]*domain.FeeLedger, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 25
	}
	return s.ledgerRepo.List(schoolID, filter)
}

// UpdateStructureInput contains the structural fields a caller may edit.
// Nil fields are left untouched.
type UpdateStructureInput struct {
	FeeStructure  *domain.FeeStructure
	Discounts     *domain.Discounts
	LateFeePolicy *LateFeePolicyInput
	Remarks       *string
}

// LateFeePolicyInput edits the accrual policy; the accrued total itself is
// owned by the sweep and is never caller-writable.
type LateFeePolicyInput struct {
	LateFeePercentage decimal.Decimal
	GracePeriodDays   int
}

// UpdateStructure edits the fee structure, discounts or late-fee policy and
// recomputes every derived field. A structural edit clears a waived status:
// the derived value takes over again.
func (s *LedgerService) UpdateStructure(schoolID, id uuid.UUID, input UpdateStructureInput) (*domain.FeeLedger, error) {
	updated, err := s.writer.mutate(schoolID, id, func(ledger *domain.FeeLedger) error {
		if input.FeeStructure != nil {
			ledger.FeeStructure = *input.FeeStructure
		}
		if input.Discounts != nil {
			ledger.Discounts = *input.Discounts
		}
		if input.LateFeePolicy != nil {
			ledger.LateFees.LateFeePercentage = input.LateFeePolicy.LateFeePercentage
			ledger.LateFees.GracePeriodDays = input.LateFeePolicy.GracePeriodDays
		}
		if input.Remarks != nil {
			ledger.Remarks = input.Remarks
		}
		if err := ledger.Validate(); err != nil {
			return err
		}

		// Structural edits end a waive; the status is derived again.
		if ledger.Status == domain.LedgerStatusWaived {
			ledger.Status = domain.LedgerStatusPending
		}
		Recompute(ledger, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(schoolID, websocket.FeeLedgerUpdated(updated))
	return updated, nil
}

// WaiveLedger marks a ledger as waived. The waive is an explicit
// administrative override of the derived status; it survives payments and
// late-fee sweeps but not structural edits.
func (s *LedgerService) WaiveLedger(schoolID, id uuid.UUID, reason string) (*domain.FeeLedger, error) {
	if reason == "" {
		return nil, domain.ErrWaiveReasonRequired
	}

	updated, err := s.writer.mutate(schoolID, id, func(ledger *domain.FeeLedger) error {
		ledger.Status = domain.LedgerStatusWaived
		ledger.Discounts.DiscountReason = reason
		Recompute(ledger, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(schoolID, websocket.FeeLedgerWaived(updated))
	return updated, nil
}

// DeleteLedger removes a ledger. A ledger with recorded payments is never
// deleted: the payment log is the audit trail.
func (s *LedgerService) DeleteLedger(schoolID, id uuid.UUID) error {
	ledger, err := s.ledgerRepo.GetByID(schoolID, id)
	if err != nil {
		return err
	}
	if len(ledger.Payments) > 0 || ledger.PaidAmount.GreaterThan(decimal.Zero) {
		return domain.ErrLedgerHasPayments
	}

	if err := s.ledgerRepo.Delete(schoolID, id); err != nil {
		return err
	}

	s.publishEvent(schoolID, websocket.FeeLedgerDeleted(map[string]interface{}{"id": id}))
	return nil
}

// GetStudentLedgers retrieves all of a student's ledgers plus their summary,
// optionally filtered by academic year.
func (s *LedgerService) GetStudentLedgers(schoolID, studentID uuid.UUID, academicYear string) ([]*domain.FeeLedger, domain.StudentSummary, error) {
	ledgers, err := s.ledgerRepo.ListByStudent(schoolID, studentID, academicYear)
	if err != nil {
		return nil, domain.StudentSummary{}, err
	}
	return ledgers, summarize(ledgers), nil
}

// GetStudentSummary sums billed/paid/due across all ledgers matching the filter
func (s *LedgerService) GetStudentSummary(schoolID, studentID uuid.UUID, academicYear string) (domain.StudentSummary, error) {
	ledgers, err := s.ledgerRepo.ListByStudent(schoolID, studentID, academicYear)
	if err != nil {
		return domain.StudentSummary{}, err
	}
	return summarize(ledgers), nil
}

func summarize(ledgers []*domain.FeeLedger) domain.StudentSummary {
	summary := domain.StudentSummary{
		TotalBilled: decimal.Zero,
		TotalPaid:   decimal.Zero,
		TotalDue:    decimal.Zero,
	}
	for _, l := range ledgers {
		summary.TotalBilled = summary.TotalBilled.Add(l.TotalAmount)
		summary.TotalPaid = summary.TotalPaid.Add(l.PaidAmount)
		summary.TotalDue = summary.TotalDue.Add(l.DueAmount)
	}
	return summary
}

// DashboardSummary is the finance dashboard aggregate for one school.
type DashboardSummary struct {
	ByStatus []domain.StatusSummaryRow     `json:"byStatus"`
	Monthly  []domain.MonthlyCollectionRow `json:"monthly"`
}

// GetDashboardSummary aggregates ledgers by status and payments by month
func (s *LedgerService) GetDashboardSummary(schoolID uuid.UUID, academicYear string) (*DashboardSummary, error) {
	byStatus, err := s.ledgerRepo.StatusSummary(schoolID, academicYear)
	if err != nil {
		return nil, err
	}
	monthly, err := s.ledgerRepo.MonthlyCollections(schoolID, academicYear)
	if err != nil {
		return nil, err
	}
	return &DashboardSummary{ByStatus: byStatus, Monthly: monthly}, nil
}
