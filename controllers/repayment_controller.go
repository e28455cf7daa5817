package controllers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goodpass/goodpass_backend/models"
	"github.com/goodpass/goodpass_backend/services"
	"github.com/goodpass/goodpass_backend/utils"
)

// RepaymentController serves repayment status, installment schedules and
// proof-of-payment uploads for a report.
type RepaymentController struct {
	repayment *services.RepaymentService
	logger    *log.Logger
}

// NewRepaymentController creates a new repayment controller
func NewRepaymentController(repayment *services.RepaymentService) *RepaymentController {
	return &RepaymentController{
		repayment: repayment,
		logger:    log.New(os.Stdout, "[REPAYMENT] ", log.LstdFlags),
	}
}

// GetRepaymentStatus returns the derived aggregate repayment view. The view
// is recomputed from persisted records on every call; a read immediately
// after an upload reflects it only as fast as the store does.
func (rc *RepaymentController) GetRepaymentStatus(c echo.Context) error {
	reportID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid report ID",
		})
	}

	status, err := rc.repayment.GetStatus(c.Request().Context(), reportID)
	if err != nil {
		return rc.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Repayment status retrieved successfully",
		Data:    status,
	})
}

// GetInstallmentSchedule returns the report's installments with computed
// statuses, ordered by installment number.
func (rc *RepaymentController) GetInstallmentSchedule(c echo.Context) error {
	reportID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid report ID",
		})
	}

	schedule, err := rc.repayment.GetInstallmentSchedule(c.Request().Context(), reportID)
	if err != nil {
		return rc.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Installment schedule retrieved successfully",
		Data:    schedule,
	})
}

// UploadProof accepts a multipart proof-of-payment submission and attaches
// it to the report and, optionally, one specific installment.
func (rc *RepaymentController) UploadProof(c echo.Context) error {
	reportID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid report ID",
		})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Proof file is required",
		})
	}
	if fileHeader.Size > utils.MaxFileSize {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "File too large",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Failed to read proof file",
		})
	}
	defer src.Close()

	fileData, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Failed to read proof file",
		})
	}

	meta := services.ProofMetadata{
		Description: utils.SanitizeInput(c.FormValue("description")),
	}
	if amountStr := c.FormValue("amount"); amountStr != "" {
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err != nil || amount < 0 {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid amount",
			})
		}
		meta.Amount = amount
	}
	if numStr := c.FormValue("installmentNumber"); numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid installment number",
			})
		}
		meta.InstallmentNumber = &num
	}

	uploadedBy := c.FormValue("uploadedBy")

	proof, err := rc.repayment.UploadProof(c.Request().Context(), reportID, fileData, fileHeader.Filename, meta, uploadedBy)
	if err != nil {
		return rc.errorResponse(c, err)
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Proof uploaded successfully",
		Data: map[string]interface{}{
			"proofId":      proof.ProofID,
			"fileUrl":      proof.FileURL,
			"thumbnailUrl": proof.ThumbnailURL,
			"uploadedAt":   proof.UploadedAt,
		},
	})
}

// InvalidateProof marks a contested proof as invalid. Derived views drop it
// on the next read.
func (rc *RepaymentController) InvalidateProof(c echo.Context) error {
	proofID := c.Param("proofId")
	if err := rc.repayment.InvalidateProof(c.Request().Context(), proofID); err != nil {
		return rc.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Proof invalidated successfully",
	})
}

// UpdateInstallmentAmount is the administrative override of the stored
// per-installment amount.
func (rc *RepaymentController) UpdateInstallmentAmount(c echo.Context) error {
	reportID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid report ID",
		})
	}

	var req models.UpdateInstallmentAmountRequest
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

	if err := rc.repayment.UpdateInstallmentAmount(c.Request().Context(), reportID, req.Amount); err != nil {
		return rc.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Installment amount updated successfully",
	})
}

// errorResponse maps service error kinds onto the response envelope.
func (rc *RepaymentController) errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Report not found",
		})
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrUpload):
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	default:
		rc.logger.Printf("repayment operation failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
		})
	}
}
