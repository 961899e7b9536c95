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
)

// ScheduleHandler handles installment scheduling HTTP requests
type ScheduleHandler struct {
	scheduleService *service.ScheduleService
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(scheduleService *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService}
}

// ScheduleInstallmentsRequest represents the installment plan request body
type ScheduleInstallmentsRequest struct {
	Count        int    `json:"count"`
	FirstDueDate string `json:"firstDueDate"`
	IntervalDays int    `json:"intervalDays"`
}

// ScheduleInstallments handles POST /api/v1/fees/:id/installments
func (h *ScheduleHandler) ScheduleInstallments(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	ledgerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid ledger ID", nil)
	}

	var req ScheduleInstallmentsRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	firstDueDate, err := time.Parse("2006-01-02", req.FirstDueDate)
	if err != nil {
		return NewValidationError(c, "Invalid first due date", []ValidationError{
			{Field: "firstDueDate", Message: "Must be in YYYY-MM-DD format"},
		})
	}

	ledger, err := h.scheduleService.ScheduleInstallments(schoolID, ledgerID, req.Count, firstDueDate, req.IntervalDays)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleCountInvalid) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "count", Message: "Installment count must be at least 1"},
			})
		}
		if errors.Is(err, domain.ErrScheduleIntervalInvalid) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "intervalDays", Message: "Installment interval must be at least 1 day"},
			})
		}
		if errors.Is(err, domain.ErrScheduleAmountInvalid) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "count", Message: "Ledger total must be greater than 0 to schedule installments"},
			})
		}
		if errors.Is(err, domain.ErrScheduleHasPayments) {
			return NewConflictError(c, "Cannot reschedule a plan with recorded payments")
		}
		if errors.Is(err, domain.ErrLedgerNotFound) {
			return NewNotFoundError(c, "Fee ledger not found")
		}
		log.Error().Err(err).Str("ledger_id", ledgerID.String()).Msg("Failed to schedule installments")
		return NewInternalError(c, "Failed to schedule installments")
	}

	return c.JSON(http.StatusOK, toFeeLedgerResponse(ledger))
}
