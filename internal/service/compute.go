package service

import (
	"time"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// Recompute derives totalAmount, paidAmount, dueAmount, per-installment
// statuses and the overall settlement status from the ledger's authoritative
// inputs: the fee structure, discounts, accrued late fees and the append-only
// payment log. It never reads the derived fields it writes, which makes it
// idempotent: Recompute(Recompute(l)) == Recompute(l).
//
// Derivation rules:
//
//	totalAmount = gross - scholarshipDiscount - flat discounts + totalLateFee, clamped to >= 0
//	paidAmount  = sum(payments[].amount)
//	dueAmount   = max(0, totalAmount - paidAmount)
//
// Percentages are rounded half-up to 2 decimal places; every other term is
// exact decimal addition.
//
// A waived status is an explicit administrative override and is preserved;
// structural edits reset it before recomputing.
func Recompute(l *domain.FeeLedger, now time.Time) {
	total := l.GrossFeeAmount().
		Sub(l.TotalDiscountAmount()).
		Add(l.LateFees.TotalLateFee)
	if total.IsNegative() {
		total = decimal.Zero
	}
	l.TotalAmount = total
	l.PaidAmount = l.PaymentTotal()

	due := total.Sub(l.PaidAmount)
	if due.IsNegative() {
		due = decimal.Zero
	}
	l.DueAmount = due

	for idx := range l.Installments {
		recomputeInstallment(&l.Installments[idx], now)
	}

	if l.Status == domain.LedgerStatusWaived {
		return
	}
	l.Status = deriveStatus(l.PaidAmount, total)
}

// deriveStatus maps paid/total onto the settlement status. A zero-total
// ledger is never "paid": the paid state requires an actual billed amount.
func deriveStatus(paid, total decimal.Decimal) domain.LedgerStatus {
	switch {
	case paid.IsZero():
		return domain.LedgerStatusPending
	case total.GreaterThan(decimal.Zero) && paid.GreaterThanOrEqual(total):
		return domain.LedgerStatusPaid
	default:
		return domain.LedgerStatusPartial
	}
}

// recomputeInstallment derives one installment's status from its paid amount
// and due date. Any non-paid installment past its due date is overdue.
func recomputeInstallment(inst *domain.Installment, now time.Time) {
	switch {
	case inst.Amount.GreaterThan(decimal.Zero) && inst.PaidAmount.GreaterThanOrEqual(inst.Amount):
		inst.Status = domain.InstallmentStatusPaid
	case inst.PaidAmount.GreaterThan(decimal.Zero):
		inst.Status = domain.InstallmentStatusPartial
	default:
		inst.Status = domain.InstallmentStatusPending
	}
	if inst.Status != domain.InstallmentStatusPaid && now.After(inst.DueDate) {
		inst.Status = domain.InstallmentStatusOverdue
	}
}
