// controllers/password_controller.go
package controllers

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/goodpass/goodpass_backend/config"
	"github.com/goodpass/goodpass_backend/models"
	"github.com/goodpass/goodpass_backend/utils"
)

// uniformResponse is the enumeration guard: the forget-password endpoint
// claims success whether or not the email resolves to an account, so the
// response cannot be used to probe for registered addresses. Real outcomes
// are logged server-side only. This is a deliberate policy, not a catch-all.
const uniformResponse = true

const resetSentMessage = "If an account exists for this email, a reset code has been sent"

// resetSentResponse is the single envelope both branches of ForgetPassword
// return. It carries no data field; any per-account payload would let a
// caller tell registered addresses apart.
func resetSentResponse() models.Response {
	return models.Response{
		Status:  http.StatusOK,
		Message: resetSentMessage,
	}
}

// PasswordController handles password reset functionality
type PasswordController struct {
	DB     *mongo.Client
	logger *log.Logger
}

// NewPasswordController creates a new password controller
func NewPasswordController(db *mongo.Client) *PasswordController {
	return &PasswordController{
		DB:     db,
		logger: log.New(os.Stdout, "[PASSWORD] ", log.LstdFlags),
	}
}

// ForgetPassword initiates the password reset process
func (pc *PasswordController) ForgetPassword(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var forgetPassReq struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&forgetPassReq); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	email, err := utils.SanitizeEmail(forgetPassReq.Email)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Email is required",
		})
	}

	collection := config.GetCollection(pc.DB, "users")

	var user models.User
	err = collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments && uniformResponse {
			pc.logger.Printf("reset requested for unknown email %s", utils.MaskEmail(email))
			return c.JSON(http.StatusOK, resetSentResponse())
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to check user",
		})
	}

	otp, err := generateResetOTP(4)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate OTP",
		})
	}

	expiryTime := time.Now().Add(15 * time.Minute)

	otpInfo := models.OTPInfo{
		OTP:       otp,
		ExpiresAt: expiryTime,
	}

	_, err = collection.UpdateOne(
		ctx,
		bson.M{"_id": user.ID},
		bson.M{"$set": bson.M{"otpInfo": otpInfo, "updatedAt": time.Now()}},
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to save OTP information",
		})
	}

	// The email failure is swallowed into the uniform response as well;
	// surfacing it would reveal the account exists.
	if err := utils.SendResetOTPEmail(user.Email, user.FullName, otp); err != nil {
		pc.logger.Printf("failed to send reset OTP to %s: %v", utils.MaskEmail(user.Email), err)
	}

	return c.JSON(http.StatusOK, resetSentResponse())
}

// VerifyResetOTP verifies the reset code and hands back a reset token
func (pc *PasswordController) VerifyResetOTP(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var verifyOTPReq struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := c.Bind(&verifyOTPReq); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	if verifyOTPReq.Email == "" || verifyOTPReq.OTP == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Email and OTP are required",
		})
	}

	email, err := utils.SanitizeEmail(verifyOTPReq.Email)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid email format",
		})
	}

	collection := config.GetCollection(pc.DB, "users")

	var user models.User
	err = collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			// Same failure shape as a wrong code; the OTP flow must not
			// reveal which of the two it was.
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid OTP",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to retrieve user",
		})
	}

	if user.OTPInfo == nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "No OTP request found. Please request a new OTP",
		})
	}

	if time.Now().After(user.OTPInfo.ExpiresAt) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "OTP has expired. Please request a new OTP",
		})
	}

	if user.OTPInfo.OTP != verifyOTPReq.OTP {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid OTP",
		})
	}

	resetToken, err := generateResetToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate reset token",
		})
	}
	tokenExpiry := time.Now().Add(1 * time.Hour)

	_, err = collection.UpdateOne(
		ctx,
		bson.M{"_id": user.ID},
		bson.M{
			"$set": bson.M{
				"resetPasswordToken":  resetToken,
				"resetTokenExpiresAt": tokenExpiry,
				"updatedAt":           time.Now(),
			},
		},
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update reset token",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "OTP verified successfully",
		Data: map[string]interface{}{
			"resetToken": resetToken,
		},
	})
}

// ResetPassword resets the user's password
func (pc *PasswordController) ResetPassword(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var resetReq struct {
		Email       string `json:"email"`
		ResetToken  string `json:"resetToken"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.Bind(&resetReq); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	if resetReq.Email == "" || resetReq.ResetToken == "" || resetReq.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Email, reset token and new password are required",
		})
	}
	if len(resetReq.NewPassword) < 8 {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Password must be at least 8 characters",
		})
	}

	email, err := utils.SanitizeEmail(resetReq.Email)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid email format",
		})
	}

	collection := config.GetCollection(pc.DB, "users")

	var user models.User
	err = collection.FindOne(ctx, bson.M{
		"email":              email,
		"resetPasswordToken": resetReq.ResetToken,
	}).Decode(&user)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid or expired reset token",
		})
	}

	if time.Now().After(user.ResetTokenExpiresAt) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Reset token has expired. Please restart the reset process",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(resetReq.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error hashing password",
		})
	}

	_, err = collection.UpdateOne(
		ctx,
		bson.M{"_id": user.ID},
		bson.M{
			"$set": bson.M{
				"password":  string(hashedPassword),
				"updatedAt": time.Now(),
			},
			"$unset": bson.M{
				"otpInfo":             "",
				"resetPasswordToken":  "",
				"resetTokenExpiresAt": "",
			},
		},
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update password",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Password reset successfully",
	})
}

// Helper functions

// generateResetOTP generates a random numeric OTP of the specified length
func generateResetOTP(length int) (string, error) {
	const digits = "0123456789"
	result := make([]byte, length)
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := 0; i < length; i++ {
		result[i] = digits[int(b[i])%len(digits)]
	}
	return string(result), nil
}

// generateResetToken generates a random token for password reset
func generateResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}
