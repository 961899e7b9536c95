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

// LateFeeHandler handles manual late-fee accrual HTTP requests. The sweep
// runs in the background; this endpoint lets an admin trigger accrual for a
// single ledger without waiting for the next sweep.
type LateFeeHandler struct {
	lateFeeService *service.LateFeeService
}

// NewLateFeeHandler creates a new LateFeeHandler
func NewLateFeeHandler(lateFeeService *service.LateFeeService) *LateFeeHandler {
	return &LateFeeHandler{lateFeeService: lateFeeService}
}

// AccrueLateFeesResponse wraps the updated ledger and whether anything accrued
type AccrueLateFeesResponse struct {
	Ledger  FeeLedgerResponse `json:"ledger"`
	Accrued bool              `json:"accrued"`
}

// AccrueLateFees handles POST /api/v1/fees/:id/accrue-late-fees
func (h *LateFeeHandler) AccrueLateFees(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	ledgerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid ledger ID", nil)
	}

	ledger, accrued, err := h.lateFeeService.AccrueLateFees(schoolID, ledgerID, time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrLedgerNotFound) {
			return NewNotFoundError(c, "Fee ledger not found")
		}
		log.Error().Err(err).Str("ledger_id", ledgerID.String()).Msg("Failed to accrue late fees")
		return NewInternalError(c, "Failed to accrue late fees")
	}

	return c.JSON(http.StatusOK, AccrueLateFeesResponse{
		Ledger:  toFeeLedgerResponse(ledger),
		Accrued: accrued,
	})
}
