package handler

import (
	"github.com/campusfee/campusfee-backend/internal/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all API routes. Admins and accountants hold the
// write surface, deletion and waiving are admin-only, and teachers,
// students and parents can only read.
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter, ledgerHandler *LedgerHandler, paymentHandler *PaymentHandler, scheduleHandler *ScheduleHandler, lateFeeHandler *LateFeeHandler, dashboardHandler *DashboardHandler, wsHandler *WebSocketHandler) {
	// API version 1
	api := e.Group("/api/v1")

	adminOnly := middleware.RequireRoles(middleware.RoleAdmin)
	canWrite := middleware.RequireRoles(middleware.RoleAdmin, middleware.RoleAccountant)
	canRead := middleware.RequireRoles(
		middleware.RoleAdmin, middleware.RoleAccountant,
		middleware.RoleTeacher, middleware.RoleStudent, middleware.RoleParent,
	)

	// Fee ledger routes (protected)
	fees := api.Group("/fees")
	fees.Use(authMiddleware.Authenticate())
	fees.Use(middleware.RateLimitMiddleware(rateLimiter))
	fees.POST("", ledgerHandler.CreateLedger, canWrite)
	fees.GET("", ledgerHandler.ListLedgers, canRead)
	fees.GET("/dashboard/summary", dashboardHandler.GetSummary, canWrite)
	fees.GET("/student/:studentId", ledgerHandler.GetStudentLedgers, canRead)
	fees.GET("/:id", ledgerHandler.GetLedger, canRead)
	fees.PUT("/:id", ledgerHandler.UpdateLedger, canWrite)
	fees.DELETE("/:id", ledgerHandler.DeleteLedger, adminOnly)
	fees.POST("/:id/pay", paymentHandler.RecordPayment, canWrite)
	fees.POST("/:id/installments", scheduleHandler.ScheduleInstallments, canWrite)
	fees.POST("/:id/waive", ledgerHandler.WaiveLedger, adminOnly)
	fees.POST("/:id/accrue-late-fees", lateFeeHandler.AccrueLateFees, canWrite)

	// WebSocket route (token-authenticated via query param)
	e.GET("/ws", wsHandler.HandleWS)
}
