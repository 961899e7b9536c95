package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/campusfee/campusfee-backend/internal/domain"
	"github.com/campusfee/campusfee-backend/internal/middleware"
	"github.com/campusfee/campusfee-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// LedgerHandler handles fee ledger HTTP requests
type LedgerHandler struct {
	ledgerService *service.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledgerService *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

// CreateLedgerRequest represents the create fee ledger request body.
// FeeStructure is optional; omitted amounts fall back to the class defaults.
type CreateLedgerRequest struct {
	StudentID    string               `json:"student"`
	ClassID      string               `json:"class"`
	AcademicYear string               `json:"academicYear"`
	FeeStructure *domain.FeeStructure `json:"feeStructure,omitempty"`
	Discounts    *domain.Discounts    `json:"discounts,omitempty"`
	LateFees     *domain.LateFees     `json:"lateFees,omitempty"`
	Remarks      *string              `json:"remarks,omitempty"`
}

// UpdateLedgerRequest represents the structural edit request body.
// Derived fields (totals, status) are not editable; omitted sections are
// left untouched.
type UpdateLedgerRequest struct {
	FeeStructure      *domain.FeeStructure `json:"feeStructure,omitempty"`
	Discounts         *domain.Discounts    `json:"discounts,omitempty"`
	LateFeePercentage *string              `json:"lateFeePercentage,omitempty"`
	GracePeriodDays   *int                 `json:"gracePeriodDays,omitempty"`
	Remarks           *string              `json:"remarks,omitempty"`
}

// WaiveLedgerRequest represents the waive request body
type WaiveLedgerRequest struct {
	Reason string `json:"reason"`
}

// FeeLedgerResponse represents a fee ledger in API responses
type FeeLedgerResponse struct {
	ID           string               `json:"id"`
	School       string               `json:"school"`
	Student      string               `json:"student"`
	Class        string               `json:"class"`
	AcademicYear string               `json:"academicYear"`
	FeeStructure domain.FeeStructure  `json:"feeStructure"`
	Discounts    domain.Discounts     `json:"discounts"`
	LateFees     domain.LateFees      `json:"lateFees"`
	TotalAmount  string               `json:"totalAmount"`
	PaidAmount   string               `json:"paidAmount"`
	DueAmount    string               `json:"dueAmount"`
	Installments []domain.Installment `json:"installments"`
	// InstallmentDrift is sum(installment amounts) - totalAmount; non-zero
	// after a structural edit until the plan is re-issued.
	InstallmentDrift string           `json:"installmentDrift"`
	Payments         []domain.Payment `json:"payments"`
	Status           string           `json:"status"`
	Remarks          *string          `json:"remarks,omitempty"`
	IsActive         bool             `json:"isActive"`
	CreatedAt        string           `json:"createdAt"`
	UpdatedAt        string           `json:"updatedAt"`
}

// ListLedgersResponse is a paginated ledger listing
type ListLedgersResponse struct {
	Ledgers []FeeLedgerResponse `json:"ledgers"`
	Total   int64               `json:"total"`
	Page    int                 `json:"page"`
	Limit   int                 `json:"limit"`
}

func toFeeLedgerResponse(l *domain.FeeLedger) FeeLedgerResponse {
	installments := l.Installments
	if installments == nil {
		installments = []domain.Installment{}
	}
	payments := l.Payments
	if payments == nil {
		payments = []domain.Payment{}
	}
	return FeeLedgerResponse{
		ID:               l.ID.String(),
		School:           l.SchoolID.String(),
		Student:          l.StudentID.String(),
		Class:            l.ClassID.String(),
		AcademicYear:     l.AcademicYear,
		FeeStructure:     l.FeeStructure,
		Discounts:        l.Discounts,
		LateFees:         l.LateFees,
		TotalAmount:      l.TotalAmount.String(),
		PaidAmount:       l.PaidAmount.String(),
		DueAmount:        l.DueAmount.String(),
		Installments:     installments,
		InstallmentDrift: l.InstallmentDrift().String(),
		Payments:         payments,
		Status:           string(l.Status),
		Remarks:          l.Remarks,
		IsActive:         l.IsActive,
		CreatedAt:        l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        l.UpdatedAt.Format(time.RFC3339),
	}
}

// ledgerValidationResponse maps domain validation errors onto 400 responses.
// Returns nil when the error is not a validation failure.
func ledgerValidationResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrAcademicYearInvalid):
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "academicYear", Message: "Academic year format should be YYYY-YYYY"},
		})
	case errors.Is(err, domain.ErrTuitionFeeRequired):
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "feeStructure.tuitionFee", Message: "Tuition fee is required"},
		})
	case errors.Is(err, domain.ErrFeeAmountNegative):
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "feeStructure", Message: "Fee amounts must not be negative"},
		})
	case errors.Is(err, domain.ErrScholarshipOutOfRange):
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "discounts.scholarshipPercentage", Message: "Must be between 0 and 100"},
		})
	case errors.Is(err, domain.ErrDiscountNegative):
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "discounts", Message: "Discount amounts must not be negative"},
		})
	case errors.Is(err, domain.ErrLateFeeConfigInvalid):
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "lateFees", Message: "Late fee percentage and grace period must not be negative"},
		})
	}
	return nil
}

// CreateLedger handles POST /api/v1/fees
func (h *LedgerHandler) CreateLedger(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	var req CreateLedgerRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		return NewValidationError(c, "Invalid student", []ValidationError{
			{Field: "student", Message: "Must be a valid student ID"},
		})
	}
	classID, err := uuid.Parse(req.ClassID)
	if err != nil {
		return NewValidationError(c, "Invalid class", []ValidationError{
			{Field: "class", Message: "Must be a valid class ID"},
		})
	}

	input := service.CreateLedgerInput{
		StudentID:    studentID,
		ClassID:      classID,
		AcademicYear: req.AcademicYear,
		FeeStructure: req.FeeStructure,
		Discounts:    req.Discounts,
		LateFees:     req.LateFees,
		Remarks:      req.Remarks,
	}

	ledger, err := h.ledgerService.CreateLedger(schoolID, input)
	if err != nil {
		if resp := ledgerValidationResponse(c, err); resp != nil {
			return resp
		}
		if errors.Is(err, domain.ErrStudentNotFound) {
			return NewNotFoundError(c, "Student not found")
		}
		if errors.Is(err, domain.ErrClassNotFound) {
			return NewNotFoundError(c, "Class not found")
		}
		log.Error().Err(err).Str("school_id", schoolID.String()).Msg("Failed to create fee ledger")
		return NewInternalError(c, "Failed to create fee ledger")
	}

	return c.JSON(http.StatusCreated, toFeeLedgerResponse(ledger))
}

// GetLedger handles GET /api/v1/fees/:id
func (h *LedgerHandler) GetLedger(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid ledger ID", nil)
	}

	ledger, err := h.ledgerService.GetLedger(schoolID, id)
	if err != nil {
		if errors.Is(err, domain.ErrLedgerNotFound) {
			return NewNotFoundError(c, "Fee ledger not found")
		}
		log.Error().Err(err).Str("ledger_id", id.String()).Msg("Failed to get fee ledger")
		return NewInternalError(c, "Failed to get fee ledger")
	}

	return c.JSON(http.StatusOK, toFeeLedgerResponse(ledger))
}

// ListLedgers handles GET /api/v1/fees
func (h *LedgerHandler) ListLedgers(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	filter := domain.LedgerFilter{
		AcademicYear: c.QueryParam("academicYear"),
	}

	if v := c.QueryParam("student"); v != "" {
		studentID, err := uuid.Parse(v)
		if err != nil {
			return NewValidationError(c, "Invalid student filter", nil)
		}
		filter.StudentID = &studentID
	}
	if v := c.QueryParam("class"); v != "" {
		classID, err := uuid.Parse(v)
		if err != nil {
			return NewValidationError(c, "Invalid class filter", nil)
		}
		filter.ClassID = &classID
	}
	if v := c.QueryParam("status"); v != "" {
		status := domain.LedgerStatus(v)
		filter.Status = &status
	}
	if v := c.QueryParam("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			filter.Page = page
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			filter.Limit = limit
		}
	}

	ledgers, total, err := h.ledgerService.ListLedgers(schoolID, filter)
	if err != nil {
		log.Error().Err(err).Str("school_id", schoolID.String()).Msg("Failed to list fee ledgers")
		return NewInternalError(c, "Failed to list fee ledgers")
	}

	resp := ListLedgersResponse{
		Ledgers: make([]FeeLedgerResponse, len(ledgers)),
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
	}
	if resp.Page < 1 {
		resp.Page = 1
	}
	if resp.Limit < 1 {
		resp.Limit = 25
	}
	for i, l := range ledgers {
		resp.Ledgers[i] = toFeeLedgerResponse(l)
	}

	return c.JSON(http.StatusOK, resp)
}

// UpdateLedger handles PUT /api/v1/fees/:id
func (h *LedgerHandler) UpdateLedger(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid ledger ID", nil)
	}

	var req UpdateLedgerRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	input := service.UpdateStructureInput{
		FeeStructure: req.FeeStructure,
		Discounts:    req.Discounts,
		Remarks:      req.Remarks,
	}

	if req.LateFeePercentage != nil || req.GracePeriodDays != nil {
		current, err := h.ledgerService.GetLedger(schoolID, id)
		if err != nil {
			if errors.Is(err, domain.ErrLedgerNotFound) {
				return NewNotFoundError(c, "Fee ledger not found")
			}
			return NewInternalError(c, "Failed to update fee ledger")
		}

		policy := service.LateFeePolicyInput{
			LateFeePercentage: current.LateFees.LateFeePercentage,
			GracePeriodDays:   current.LateFees.GracePeriodDays,
		}
		if req.LateFeePercentage != nil {
			pct, err := decimal.NewFromString(*req.LateFeePercentage)
			if err != nil {
				return NewValidationError(c, "Invalid late fee percentage", []ValidationError{
					{Field: "lateFeePercentage", Message: "Must be a valid decimal number"},
				})
			}
			policy.LateFeePercentage = pct
		}
		if req.GracePeriodDays != nil {
			policy.GracePeriodDays = *req.GracePeriodDays
		}
		input.LateFeePolicy = &policy
	}

	ledger, err := h.ledgerService.UpdateStructure(schoolID, id, input)
	if err != nil {
		if resp := ledgerValidationResponse(c, err); resp != nil {
			return resp
		}
		if errors.Is(err, domain.ErrLedgerNotFound) {
			return NewNotFoundError(c, "Fee ledger not found")
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			return NewConflictError(c, "Ledger was modified concurrently, please retry")
		}
		log.Error().Err(err).Str("ledger_id", id.String()).Msg("Failed to update fee ledger")
		return NewInternalError(c, "Failed to update fee ledger")
	}

	return c.JSON(http.StatusOK, toFeeLedgerResponse(ledger))
}

// WaiveLedger handles POST /api/v1/fees/:id/waive
func (h *LedgerHandler) WaiveLedger(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid ledger ID", nil)
	}

	var req WaiveLedgerRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	ledger, err := h.ledgerService.WaiveLedger(schoolID, id, req.Reason)
	if err != nil {
		if errors.Is(err, domain.ErrWaiveReasonRequired) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "reason", Message: "Waive reason is required"},
			})
		}
		if errors.Is(err, domain.ErrLedgerNotFound) {
			return NewNotFoundError(c, "Fee ledger not found")
		}
		log.Error().Err(err).Str("ledger_id", id.String()).Msg("Failed to waive fee ledger")
		return NewInternalError(c, "Failed to waive fee ledger")
	}

	return c.JSON(http.StatusOK, toFeeLedgerResponse(ledger))
}

// DeleteLedger handles DELETE /api/v1/fees/:id
func (h *LedgerHandler) DeleteLedger(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid ledger ID", nil)
	}

	if err := h.ledgerService.DeleteLedger(schoolID, id); err != nil {
		if errors.Is(err, domain.ErrLedgerNotFound) {
			return NewNotFoundError(c, "Fee ledger not found")
		}
		if errors.Is(err, domain.ErrLedgerHasPayments) {
			return NewConflictError(c, "Cannot delete a ledger with recorded payments")
		}
		log.Error().Err(err).Str("ledger_id", id.String()).Msg("Failed to delete fee ledger")
		return NewInternalError(c, "Failed to delete fee ledger")
	}

	return c.NoContent(http.StatusNoContent)
}

// StudentLedgersResponse wraps a student's ledgers with their billing summary
type StudentLedgersResponse struct {
	Ledgers     []FeeLedgerResponse `json:"ledgers"`
	TotalBilled string              `json:"totalBilled"`
	TotalPaid   string              `json:"totalPaid"`
	TotalDue    string              `json:"totalDue"`
}

// GetStudentLedgers handles GET /api/v1/fees/student/:studentId
func (h *LedgerHandler) GetStudentLedgers(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	studentID, err := uuid.Parse(c.Param("studentId"))
	if err != nil {
		return NewValidationError(c, "Invalid student ID", nil)
	}

	// Students can only read their own record.
	if middleware.GetRole(c) == middleware.RoleStudent && middleware.GetStudentID(c) != studentID {
		return NewForbiddenError(c, "Students can only view their own fees")
	}

	ledgers, summary, err := h.ledgerService.GetStudentLedgers(schoolID, studentID, c.QueryParam("academicYear"))
	if err != nil {
		log.Error().Err(err).Str("student_id", studentID.String()).Msg("Failed to get student ledgers")
		return NewInternalError(c, "Failed to get student ledgers")
	}

	resp := StudentLedgersResponse{
		Ledgers:     make([]FeeLedgerResponse, len(ledgers)),
		TotalBilled: summary.TotalBilled.String(),
		TotalPaid:   summary.TotalPaid.String(),
		TotalDue:    summary.TotalDue.String(),
	}
	for i, l := range ledgers {
		resp.Ledgers[i] = toFeeLedgerResponse(l)
	}

	return c.JSON(http.StatusOK, resp)
}
