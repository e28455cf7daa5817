package controllers

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goodpass/goodpass_backend/middleware"
	"github.com/goodpass/goodpass_backend/models"
	"github.com/goodpass/goodpass_backend/repositories"
	"github.com/goodpass/goodpass_backend/utils"
)

// ReportController handles loan report submission and retrieval
type ReportController struct {
	reports *repositories.ReportRepository
	logger  *log.Logger
}

// NewReportController creates a new report controller
func NewReportController(reports *repositories.ReportRepository) *ReportController {
	return &ReportController{
		reports: reports,
		logger:  log.New(os.Stdout, "[REPORT] ", log.LstdFlags),
	}
}

// CreateReport submits a new loan report. Installment plans get their
// schedule generated here: equal monthly amounts from the start date, with
// the stored per-installment amount taken from the request when supplied.
func (rc *ReportController) CreateReport(c echo.Context) error {
	claims := middleware.GetUserFromToken(c)
	if claims == nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Please provide valid credentials",
		})
	}

	var req models.CreateReportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	if req.RepaymentPlan == models.RepaymentPlanInstallment && req.InstallmentCount < 1 {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "installmentCount must be at least 1 for installment plans",
		})
	}
	if !req.DueDate.After(req.StartDate) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "dueDate must be after startDate",
		})
	}

	reporterID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user ID in token",
		})
	}

	now := time.Now()
	report := &models.Report{
		ReporterID:    reporterID,
		ReporteeName:  utils.SanitizeInput(req.ReporteeName),
		ReporteePhone: utils.NormalizePhone(utils.SanitizeInput(req.ReporteePhone)),
		LoanInfo: &models.LoanInfo{
			Amount:            req.Amount,
			Currency:          req.Currency,
			Purpose:           utils.SanitizeInput(req.Purpose),
			StartDate:         req.StartDate,
			DueDate:           req.DueDate,
			RepaymentPlan:     req.RepaymentPlan,
			InstallmentCount:  req.InstallmentCount,
			InstallmentAmount: req.InstallmentAmount,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if req.RepaymentPlan == models.RepaymentPlanInstallment {
		perInstallment := req.InstallmentAmount
		if perInstallment <= 0 {
			perInstallment = req.Amount / float64(req.InstallmentCount)
		}
		report.LoanInfo.InstallmentAmount = perInstallment

		for i := 1; i <= req.InstallmentCount; i++ {
			report.Installments = append(report.Installments, models.Installment{
				Number:  i,
				Amount:  perInstallment,
				DueDate: req.StartDate.AddDate(0, i, 0),
				Status:  models.InstallmentStatusPending,
			})
		}
	}

	if err := rc.reports.InsertReport(c.Request().Context(), report); err != nil {
		rc.logger.Printf("failed to create report: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create report",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Report created successfully",
		Data:    report,
	})
}

// GetReport returns a single report by ID
func (rc *ReportController) GetReport(c echo.Context) error {
	reportID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid report ID",
		})
	}

	report, err := rc.reports.FindReport(c.Request().Context(), reportID)
	if err != nil {
		rc.logger.Printf("report lookup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
		})
	}
	if report == nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Report not found",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Report retrieved successfully",
		Data:    report,
	})
}

// ListReports returns the authenticated user's reports, newest first
func (rc *ReportController) ListReports(c echo.Context) error {
	claims := middleware.GetUserFromToken(c)
	if claims == nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Please provide valid credentials",
		})
	}

	reporterID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user ID in token",
		})
	}

	reports, err := rc.reports.ListReportsByReporter(c.Request().Context(), reporterID)
	if err != nil {
		rc.logger.Printf("report list failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Reports retrieved successfully",
		Data:    reports,
	})
}
