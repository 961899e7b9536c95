package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/campusfee/campusfee-backend/internal/middleware"
	"github.com/campusfee/campusfee-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles payment collection HTTP requests
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// RecordPaymentRequest represents the pay request body
type RecordPaymentRequest struct {
	Amount            string              `json:"amount"`
	PaymentMethod     string              `json:"paymentMethod"`
	TransactionID     *string             `json:"transactionId,omitempty"`
	ReceiptNumber     *string             `json:"receiptNumber,omitempty"`
	InstallmentNumber *int                `json:"installmentNumber,omitempty"`
	BankDetails       *domain.BankDetails `json:"bankDetails,omitempty"`
	Remarks           *string             `json:"remarks,omitempty"`
	PaymentDate       *string             `json:"paymentDate,omitempty"`
}

// RecordPaymentResponse wraps the updated ledger plus an optional allocation
// warning when the payment applied but the requested installment was missing
type RecordPaymentResponse struct {
	Ledger  FeeLedgerResponse `json:"ledger"`
	Warning string            `json:"warning,omitempty"`
}

// RecordPayment handles POST /api/v1/fees/:id/pay
func (h *PaymentHandler) RecordPayment(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	ledgerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid ledger ID", nil)
	}

	var req RecordPaymentRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return NewValidationError(c, "Invalid amount", []ValidationError{
			{Field: "amount", Message: "Must be a valid decimal number"},
		})
	}

	collectedBy, err := uuid.Parse(middleware.GetUserID(c))
	if err != nil {
		// Auth0 subjects are not always UUIDs; fall back to a stable
		// namespace-derived ID so the collector is still attributable.
		collectedBy = uuid.NewSHA1(uuid.NameSpaceOID, []byte(middleware.GetUserID(c)))
	}

	input := service.RecordPaymentInput{
		Amount:            amount,
		PaymentMethod:     domain.PaymentMethod(req.PaymentMethod),
		TransactionID:     req.TransactionID,
		ReceiptNumber:     req.ReceiptNumber,
		InstallmentNumber: req.InstallmentNumber,
		CollectedBy:       collectedBy,
		BankDetails:       req.BankDetails,
		Remarks:           req.Remarks,
	}

	if req.PaymentDate != nil && *req.PaymentDate != "" {
		paymentDate, err := time.Parse(time.RFC3339, *req.PaymentDate)
		if err != nil {
			return NewValidationError(c, "Invalid payment date", []ValidationError{
				{Field: "paymentDate", Message: "Must be in RFC 3339 format"},
			})
		}
		input.PaymentDate = &paymentDate
	}

	ledger, allocErr, err := h.paymentService.RecordPayment(schoolID, ledgerID, input)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentAmountInvalid) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "amount", Message: "Amount must be greater than 0"},
			})
		}
		if errors.Is(err, domain.ErrPaymentMethodInvalid) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "paymentMethod", Message: "Must be one of cash, cheque, online, bank_transfer, card"},
			})
		}
		if errors.Is(err, domain.ErrLedgerNotFound) {
			return NewNotFoundError(c, "Fee ledger not found")
		}
		if errors.Is(err, domain.ErrDuplicateReceipt) {
			return NewConflictError(c, "Receipt number already used")
		}
		log.Error().Err(err).Str("ledger_id", ledgerID.String()).Msg("Failed to record payment")
		return NewInternalError(c, "Failed to record payment")
	}

	resp := RecordPaymentResponse{Ledger: toFeeLedgerResponse(ledger)}
	if allocErr != nil {
		resp.Warning = allocErr.Error()
	}

	return c.JSON(http.StatusOK, resp)
}
