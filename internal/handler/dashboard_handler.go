package handler

import (
	"net/http"

	"github.com/campusfee/campusfee-backend/internal/middleware"
	"github.com/campusfee/campusfee-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// DashboardHandler handles finance dashboard HTTP requests
type DashboardHandler struct {
	ledgerService *service.LedgerService
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(ledgerService *service.LedgerService) *DashboardHandler {
	return &DashboardHandler{ledgerService: ledgerService}
}

// StatusSummaryResponse is one per-status aggregate row
type StatusSummaryResponse struct {
	Status      string `json:"status"`
	Count       int64  `json:"count"`
	TotalAmount string `json:"totalAmount"`
	TotalPaid   string `json:"totalPaid"`
	TotalDue    string `json:"totalDue"`
}

// MonthlyCollectionResponse is the collected amount for one calendar month
type MonthlyCollectionResponse struct {
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Amount string `json:"amount"`
}

// DashboardSummaryResponse is the finance dashboard aggregate
type DashboardSummaryResponse struct {
	ByStatus []StatusSummaryResponse     `json:"byStatus"`
	Monthly  []MonthlyCollectionResponse `json:"monthly"`
}

// GetSummary handles GET /api/v1/fees/dashboard/summary
func (h *DashboardHandler) GetSummary(c echo.Context) error {
	schoolID := middleware.GetSchoolID(c)
	if schoolID == uuid.Nil {
		return NewUnauthorizedError(c, "School required")
	}

	summary, err := h.ledgerService.GetDashboardSummary(schoolID, c.QueryParam("academicYear"))
	if err != nil {
		log.Error().Err(err).Str("school_id", schoolID.String()).Msg("Failed to get dashboard summary")
		return NewInternalError(c, "Failed to get dashboard summary")
	}

	resp := DashboardSummaryResponse{
		ByStatus: make([]StatusSummaryResponse, len(summary.ByStatus)),
		Monthly:  make([]MonthlyCollectionResponse, len(summary.Monthly)),
	}
	for i, row := range summary.ByStatus {
		resp.ByStatus[i] = StatusSummaryResponse{
			Status:      string(row.Status),
			Count:       row.Count,
			TotalAmount: row.TotalAmount.String(),
			TotalPaid:   row.TotalPaid.String(),
			TotalDue:    row.TotalDue.String(),
		}
	}
	for i, row := range summary.Monthly {
		resp.Monthly[i] = MonthlyCollectionResponse{
			Year:   row.Year,
			Month:  row.Month,
			Amount: row.Amount.String(),
		}
	}

	return c.JSON(http.StatusOK, resp)
}
