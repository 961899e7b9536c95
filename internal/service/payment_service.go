package service

import (
	"strings"
	"time"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/campusfee/campusfee-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentService records payment events against fee ledgers. Payments for a
// single ledger are serialized through the shared per-ledger lock, so two
// concurrent recordings can never produce a lost update.
type PaymentService struct {
	writer         ledgerWriter
	eventPublisher websocket.EventPublisher
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(ledgerRepo domain.FeeLedgerRepository, locks *LedgerLocks) *PaymentService {
	return &PaymentService{
		writer: ledgerWriter{repo: ledgerRepo, locks: locks},
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *PaymentService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *PaymentService) publishEvent(schoolID uuid.UUID, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(schoolID, event)
	}
}

// RecordPaymentInput contains input for recording one payment event
type RecordPaymentInput struct {
	Amount            decimal.Decimal
	PaymentMethod     domain.PaymentMethod
	TransactionID     *string
	ReceiptNumber     *string // nil = generate; supplied values double as idempotency keys
	InstallmentNumber *int
	CollectedBy       uuid.UUID
	BankDetails       *domain.BankDetails
	Remarks           *string
	PaymentDate       *time.Time // nil = now
}

// RecordPayment appends a payment entry to the ledger's audit log and
// recomputes every derived field before returning.
//
// Preconditions (bad amount, bad method, missing ledger, duplicate receipt)
// abort the whole operation with no log entry. When an installment number is
// supplied but does not exist, the ledger-level payment still applies and the
// returned InstallmentAllocationError reports the failed allocation — partial
// success is explicit, never silent.
func (s *PaymentService) RecordPayment(schoolID, ledgerID uuid.UUID, input RecordPaymentInput) (*domain.FeeLedger, *domain.InstallmentAllocationError, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, domain.ErrPaymentAmountInvalid
	}
	if !input.PaymentMethod.IsValid() {
		return nil, nil, domain.ErrPaymentMethodInvalid
	}

	var allocErr *domain.InstallmentAllocationError

	updated, err := s.writer.mutate(schoolID, ledgerID, func(ledger *domain.FeeLedger) error {
		allocErr = nil

		receiptNumber, err := resolveReceiptNumber(ledger, input.ReceiptNumber)
		if err != nil {
			return err
		}

		paymentDate := time.Now()
		if input.PaymentDate != nil {
			paymentDate = *input.PaymentDate
		}

		ledger.Payments = append(ledger.Payments, domain.Payment{
			Amount:        input.Amount,
			PaymentDate:   paymentDate,
			PaymentMethod: input.PaymentMethod,
			TransactionID: input.TransactionID,
			ReceiptNumber: receiptNumber,
			CollectedBy:   input.CollectedBy,
			BankDetails:   input.BankDetails,
			Remarks:       input.Remarks,
		})

		if input.InstallmentNumber != nil {
			inst := ledger.FindInstallment(*input.InstallmentNumber)
			if inst == nil {
				allocErr = &domain.InstallmentAllocationError{InstallmentNumber: *input.InstallmentNumber}
			} else {
				inst.PaidAmount = inst.PaidAmount.Add(input.Amount)
				inst.PaidDate = &paymentDate
				method := input.PaymentMethod
				inst.PaymentMethod = &method
				inst.TransactionID = input.TransactionID
				inst.ReceiptNumber = &receiptNumber
			}
		}

		Recompute(ledger, paymentDate)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.publishEvent(schoolID, websocket.PaymentRecorded(updated))
	return updated, allocErr, nil
}

// resolveReceiptNumber enforces per-ledger receipt uniqueness. A supplied
// number that collides fails with ErrDuplicateReceipt, which also makes a
// transport-level retry of the same call append exactly one entry. Generated
// numbers are random tokens, collision-checked against the ledger's log.
func resolveReceiptNumber(ledger *domain.FeeLedger, supplied *string) (string, error) {
	if supplied != nil && *supplied != "" {
		if ledger.HasReceipt(*supplied) {
			return "", domain.ErrDuplicateReceipt
		}
		return *supplied, nil
	}

	for {
		receipt := generateReceiptNumber()
		if !ledger.HasReceipt(receipt) {
			return receipt, nil
		}
	}
}

// generateReceiptNumber returns a token like "REC-3F2A91BC"
func generateReceiptNumber() string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "REC-" + token[:8]
}
