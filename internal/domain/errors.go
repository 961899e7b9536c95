package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrNotFound        = errors.New("resource not found")
	ErrNotAuthorized   = errors.New("not authorized to access this record")
	ErrForbidden       = errors.New("forbidden")
	ErrInternalError   = errors.New("internal error")
	ErrVersionConflict = errors.New("ledger was modified concurrently")

	ErrStudentNotFound = errors.New("student not found in this school")
	ErrClassNotFound   = errors.New("class not found in this school")
	ErrLedgerNotFound  = errors.New("fee ledger not found")

	ErrAcademicYearInvalid   = errors.New("academic year format should be YYYY-YYYY")
	ErrTuitionFeeRequired    = errors.New("tuition fee is required")
	ErrFeeAmountNegative     = errors.New("fee amounts must not be negative")
	ErrScholarshipOutOfRange = errors.New("scholarship percentage must be between 0 and 100")
	ErrDiscountNegative      = errors.New("discount amounts must not be negative")
	ErrLateFeeConfigInvalid  = errors.New("late fee percentage and grace period must not be negative")

	ErrPaymentAmountInvalid = errors.New("Amount must be greater than 0")
	ErrPaymentMethodInvalid = errors.New("invalid payment method")
	ErrDuplicateReceipt     = errors.New("receipt number already used")
	ErrInstallmentNotFound  = errors.New("installment not found")

	ErrScheduleCountInvalid    = errors.New("installment count must be at least 1")
	ErrScheduleIntervalInvalid = errors.New("installment interval must be at least 1 day")
	ErrScheduleAmountInvalid = errors.New("total amount must be greater than 0")
	ErrScheduleHasPayments   = errors.New("cannot reschedule a plan with recorded payments")

	ErrLedgerHasPayments   = errors.New("cannot delete a ledger with recorded payments")
	ErrWaiveReasonRequired = errors.New("waive reason is required")
)

// InstallmentAllocationError reports that a payment was recorded at the ledger
// level but could not be allocated to the requested installment. It is a
// notice attached to an otherwise successful RecordPayment, never a rollback.
type InstallmentAllocationError struct {
	InstallmentNumber int
}

func (e *InstallmentAllocationError) Error() string {
	return fmt.Sprintf("payment recorded, but installment %d does not exist on this ledger", e.InstallmentNumber)
}
