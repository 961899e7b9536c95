package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStatus is the derived settlement state of a ledger.
type LedgerStatus string

const (
	LedgerStatusPending LedgerStatus = "pending"
	LedgerStatusPartial LedgerStatus = "partial"
	LedgerStatusPaid    LedgerStatus = "paid"
	LedgerStatusOverdue LedgerStatus = "overdue"
	LedgerStatusWaived  LedgerStatus = "waived"
)

// InstallmentStatus is the settlement state of a single installment.
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPartial InstallmentStatus = "partial"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusOverdue InstallmentStatus = "overdue"
)

// PaymentMethod enumerates the accepted payment channels.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheque       PaymentMethod = "cheque"
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
)

// IsValid returns true if the method is one of the accepted channels.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCheque, PaymentMethodOnline, PaymentMethodBankTransfer, PaymentMethodCard:
		return true
	}
	return false
}

// FeeStructure holds the billable fee components for an academic year.
// Tuition is the only required component; the rest default to zero.
type FeeStructure struct {
	TuitionFee       decimal.Decimal `json:"tuitionFee"`
	AdmissionFee     decimal.Decimal `json:"admissionFee"`
	ExamFee          decimal.Decimal `json:"examFee"`
	LibraryFee       decimal.Decimal `json:"libraryFee"`
	LabFee           decimal.Decimal `json:"labFee"`
	TransportFee     decimal.Decimal `json:"transportFee"`
	SportsFee        decimal.Decimal `json:"sportsFee"`
	DevelopmentFee   decimal.Decimal `json:"developmentFee"`
	MiscellaneousFee decimal.Decimal `json:"miscellaneousFee"`
}

// Components returns all fee amounts in a fixed order.
func (f FeeStructure) Components() []decimal.Decimal {
	return []decimal.Decimal{
		f.TuitionFee, f.AdmissionFee, f.ExamFee, f.LibraryFee, f.LabFee,
		f.TransportFee, f.SportsFee, f.DevelopmentFee, f.MiscellaneousFee,
	}
}

// Gross returns the sum of all fee components before discounts.
func (f FeeStructure) Gross() decimal.Decimal {
	total := decimal.Zero
	for _, c := range f.Components() {
		total = total.Add(c)
	}
	return total
}

// Validate checks the fee structure invariants.
func (f FeeStructure) Validate() error {
	if f.TuitionFee.LessThanOrEqual(decimal.Zero) {
		return ErrTuitionFeeRequired
	}
	for _, c := range f.Components() {
		if c.IsNegative() {
			return ErrFeeAmountNegative
		}
	}
	return nil
}

// Discounts holds the percentage and flat discounts applied to a ledger.
type Discounts struct {
	ScholarshipPercentage decimal.Decimal `json:"scholarshipPercentage"`
	SiblingDiscount       decimal.Decimal `json:"siblingDiscount"`
	StaffWardDiscount     decimal.Decimal `json:"staffWardDiscount"`
	OtherDiscount         decimal.Decimal `json:"otherDiscount"`
	DiscountReason        string          `json:"discountReason,omitempty"`
}

// Validate checks the discount invariants.
func (d Discounts) Validate() error {
	if d.ScholarshipPercentage.IsNegative() || d.ScholarshipPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return ErrScholarshipOutOfRange
	}
	if d.SiblingDiscount.IsNegative() || d.StaffWardDiscount.IsNegative() || d.OtherDiscount.IsNegative() {
		return ErrDiscountNegative
	}
	return nil
}

// LateFees holds the accrued late fee total and the accrual policy.
type LateFees struct {
	TotalLateFee      decimal.Decimal `json:"totalLateFee"`
	LateFeePercentage decimal.Decimal `json:"lateFeePercentage"`
	GracePeriodDays   int             `json:"gracePeriodDays"`
}

// DefaultLateFees returns the standard accrual policy: 5% after a 7 day grace period.
func DefaultLateFees() LateFees {
	return LateFees{
		TotalLateFee:      decimal.Zero,
		LateFeePercentage: decimal.NewFromInt(5),
		GracePeriodDays:   7,
	}
}

// Validate checks the late fee policy invariants.
func (l LateFees) Validate() error {
	if l.LateFeePercentage.IsNegative() || l.GracePeriodDays < 0 || l.TotalLateFee.IsNegative() {
		return ErrLateFeeConfigInvalid
	}
	return nil
}

// BankDetails carries cheque/transfer metadata on a payment entry.
type BankDetails struct {
	BankName     string     `json:"bankName,omitempty"`
	ChequeNumber string     `json:"chequeNumber,omitempty"`
	ChequeDate   *time.Time `json:"chequeDate,omitempty"`
}

// Payment is one entry in the append-only payment log. Entries are never
// edited or deleted; the log is the audit trail.
type Payment struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"paymentDate"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	TransactionID *string         `json:"transactionId,omitempty"`
	ReceiptNumber string          `json:"receiptNumber"`
	CollectedBy   uuid.UUID       `json:"collectedBy"`
	BankDetails   *BankDetails    `json:"bankDetails,omitempty"`
	Remarks       *string         `json:"remarks,omitempty"`
}

// Installment is one scheduled partial due-amount with its own status.
type Installment struct {
	InstallmentNumber int               `json:"installmentNumber"`
	DueDate           time.Time         `json:"dueDate"`
	Amount            decimal.Decimal   `json:"amount"`
	PaidAmount        decimal.Decimal   `json:"paidAmount"`
	Status            InstallmentStatus `json:"status"`
	PaidDate          *time.Time        `json:"paidDate,omitempty"`
	LateFee           decimal.Decimal   `json:"lateFee"`
	PaymentMethod     *PaymentMethod    `json:"paymentMethod,omitempty"`
	TransactionID     *string           `json:"transactionId,omitempty"`
	ReceiptNumber     *string           `json:"receiptNumber,omitempty"`
	LastAccrualAt     *time.Time        `json:"lastAccrualAt,omitempty"`
}

// Outstanding returns the unpaid balance of the installment, floored at zero.
func (i Installment) Outstanding() decimal.Decimal {
	out := i.Amount.Sub(i.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

var academicYearPattern = regexp.MustCompile(`^\d{4}-\d{4}$`)

// FeeLedger is one billing record for a student for one academic year.
// TotalAmount, PaidAmount, DueAmount and Status are derived fields: they are
// only ever written by the computation engine, never by callers.
type FeeLedger struct {
	ID           uuid.UUID    `json:"id"`
	SchoolID     uuid.UUID    `json:"school"`
	StudentID    uuid.UUID    `json:"student"`
	ClassID      uuid.UUID    `json:"class"`
	AcademicYear string       `json:"academicYear"`
	FeeStructure FeeStructure `json:"feeStructure"`
	Discounts    Discounts    `json:"discounts"`
	LateFees     LateFees     `json:"lateFees"`

	TotalAmount decimal.Decimal `json:"totalAmount"`
	PaidAmount  decimal.Decimal `json:"paidAmount"`
	DueAmount   decimal.Decimal `json:"dueAmount"`

	Installments []Installment `json:"installments"`
	Payments     []Payment     `json:"payments"`

	Status   LedgerStatus `json:"status"`
	Remarks  *string      `json:"remarks,omitempty"`
	IsActive bool         `json:"isActive"`

	Version   int32     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the structural invariants of the ledger.
func (l *FeeLedger) Validate() error {
	if !academicYearPattern.MatchString(l.AcademicYear) {
		return ErrAcademicYearInvalid
	}
	if err := l.FeeStructure.Validate(); err != nil {
		return err
	}
	if err := l.Discounts.Validate(); err != nil {
		return err
	}
	return l.LateFees.Validate()
}

// GrossFeeAmount returns the sum of all fee structure components.
func (l *FeeLedger) GrossFeeAmount() decimal.Decimal {
	return l.FeeStructure.Gross()
}

// ScholarshipDiscount returns the scholarship portion of the discount,
// rounded half-up to 2 decimal places.
func (l *FeeLedger) ScholarshipDiscount() decimal.Decimal {
	if l.Discounts.ScholarshipPercentage.IsZero() {
		return decimal.Zero
	}
	return l.GrossFeeAmount().
		Mul(l.Discounts.ScholarshipPercentage).
		Div(decimal.NewFromInt(100)).
		Round(2)
}

// TotalDiscountAmount returns the scholarship discount plus all flat discounts.
func (l *FeeLedger) TotalDiscountAmount() decimal.Decimal {
	return l.ScholarshipDiscount().
		Add(l.Discounts.SiblingDiscount).
		Add(l.Discounts.StaffWardDiscount).
		Add(l.Discounts.OtherDiscount)
}

// PaymentTotal returns the sum of the append-only payment log. PaidAmount
// must always equal this sum.
func (l *FeeLedger) PaymentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// InstallmentDrift returns sum(installment amounts) - totalAmount. A non-zero
// drift means the schedule has diverged from the billed total, typically after
// a structural edit. The drift is surfaced, never silently corrected.
func (l *FeeLedger) InstallmentDrift() decimal.Decimal {
	if len(l.Installments) == 0 {
		return decimal.Zero
	}
	scheduled := decimal.Zero
	for _, inst := range l.Installments {
		scheduled = scheduled.Add(inst.Amount)
	}
	return scheduled.Sub(l.TotalAmount)
}

// FindInstallment returns the installment with the given number, or nil.
func (l *FeeLedger) FindInstallment(number int) *Installment {
	for idx := range l.Installments {
		if l.Installments[idx].InstallmentNumber == number {
			return &l.Installments[idx]
		}
	}
	return nil
}

// HasReceipt reports whether a payment with the given receipt number exists.
func (l *FeeLedger) HasReceipt(receiptNumber string) bool {
	for _, p := range l.Payments {
		if p.ReceiptNumber == receiptNumber {
			return true
		}
	}
	return false
}

// HasInstallmentPayments reports whether any installment has received money.
func (l *FeeLedger) HasInstallmentPayments() bool {
	for _, inst := range l.Installments {
		if inst.PaidAmount.GreaterThan(decimal.Zero) {
			return true
		}
	}
	return false
}

// LedgerFilter narrows ledger listings. Zero values mean "no filter".
type LedgerFilter struct {
	StudentID    *uuid.UUID
	ClassID      *uuid.UUID
	Status       *LedgerStatus
	AcademicYear string
	Page         int
	Limit        int
}

// StudentSummary aggregates billing across all of a student's ledgers.
type StudentSummary struct {
	TotalBilled decimal.Decimal `json:"totalBilled"`
	TotalPaid   decimal.Decimal `json:"totalPaid"`
	TotalDue    decimal.Decimal `json:"totalDue"`
}

// StatusSummaryRow is one per-status aggregate for the finance dashboard.
type StatusSummaryRow struct {
	Status      LedgerStatus    `json:"status"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	TotalPaid   decimal.Decimal `json:"totalPaid"`
	TotalDue    decimal.Decimal `json:"totalDue"`
}

// MonthlyCollectionRow is the collected amount for one calendar month.
type MonthlyCollectionRow struct {
	Year   int             `json:"year"`
	Month  int             `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// FeeLedgerRepository is the persistence contract for fee ledgers. Every
// lookup is scoped by school; a ledger outside the caller's school behaves
// exactly like a missing ledger.
type FeeLedgerRepository interface {
	Create(ledger *FeeLedger) (*FeeLedger, error)
	GetByID(schoolID, id uuid.UUID) (*FeeLedger, error)
	List(schoolID uuid.UUID, filter LedgerFilter) ([]*FeeLedger, int64, error)
	ListByStudent(schoolID, studentID uuid.UUID, academicYear string) ([]*FeeLedger, error)
	// Update persists the ledger only if its Version matches the stored row,
	// then increments the version. Returns ErrVersionConflict otherwise.
	Update(ledger *FeeLedger) (*FeeLedger, error)
	Delete(schoolID, id uuid.UUID) error
	// ListAccrualCandidates returns ledgers with at least one non-paid
	// installment due before asOf, across all schools. Used by the sweep.
	ListAccrualCandidates(asOf time.Time) ([]*FeeLedger, error)
	StatusSummary(schoolID uuid.UUID, academicYear string) ([]StatusSummaryRow, error)
	MonthlyCollections(schoolID uuid.UUID, academicYear string) ([]MonthlyCollectionRow, error)
}
