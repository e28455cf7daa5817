package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/goodpass/goodpass_backend/controllers"
	"github.com/goodpass/goodpass_backend/middleware"
)

// RegisterReportRoutes sets up the loan report and repayment routes. All of
// them require an authenticated session.
func RegisterReportRoutes(e *echo.Echo, reportController *controllers.ReportController, repaymentController *controllers.RepaymentController) {
	reports := e.Group("/api/reports")
	reports.Use(middleware.JWTMiddleware())

	reports.POST("", reportController.CreateReport)
	reports.GET("", reportController.ListReports)
	reports.GET("/:id", reportController.GetReport)

	reports.GET("/:id/repayment-status", repaymentController.GetRepaymentStatus)
	reports.GET("/:id/installments", repaymentController.GetInstallmentSchedule)
	reports.POST("/:id/proofs", repaymentController.UploadProof)
	reports.PUT("/:id/proofs/:proofId/invalidate", repaymentController.InvalidateProof)
	reports.PUT("/:id/installment-amount", repaymentController.UpdateInstallmentAmount)
}
