package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/goodpass/goodpass_backend/config"
	"github.com/goodpass/goodpass_backend/middleware"
	"github.com/goodpass/goodpass_backend/models"
	"github.com/goodpass/goodpass_backend/services"
	"github.com/goodpass/goodpass_backend/utils"
)

const maxLoginAttempts = 5

// AuthController contains authentication and OTP endpoint logic
type AuthController struct {
	DB            *mongo.Client
	otpService    *services.OTPService
	smsService    *utils.SMSService
	devMode       bool
	logger        *log.Logger
	loginAttempts map[string]struct {
		count       int
		lastAttempt time.Time
	}
	loginAttemptsMu sync.RWMutex
}

// NewAuthController creates a new auth controller. With no SMS gateway
// configured the controller runs in dev mode and echoes issued codes in the
// response body; a production deployment must configure the gateway so codes
// only travel out-of-band.
func NewAuthController(db *mongo.Client, otpService *services.OTPService) *AuthController {
	smsService := utils.NewSMSService()
	ac := &AuthController{
		DB:         db,
		otpService: otpService,
		smsService: smsService,
		devMode:    os.Getenv("OTP_DEV_MODE") == "true" || !smsService.Configured(),
		logger:     log.New(os.Stdout, "[AUTH] ", log.LstdFlags),
		loginAttempts: make(map[string]struct {
			count       int
			lastAttempt time.Time
		}),
	}

	go ac.startLoginAttemptCleanupRoutine()

	return ac
}

// Signup registers a new account. When a phone number is supplied an OTP is
// issued for it so the client can verify the phone right after signup.
func (ac *AuthController) Signup(c echo.Context) error {
	var req models.SignupRequest
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

	email, err := utils.SanitizeEmail(req.Email)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid email format",
		})
	}
	req.FullName = utils.SanitizeInput(req.FullName)
	req.Phone = utils.NormalizePhone(utils.SanitizeInput(req.Phone))

	if req.Phone != "" && !utils.IsValidPhone(req.Phone) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid phone number format",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	usersCollection := config.GetCollection(ac.DB, "users")

	count, err := usersCollection.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
		})
	}
	if count > 0 {
		return c.JSON(http.StatusConflict, models.Response{
			Status:  http.StatusConflict,
			Message: "Email already registered",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error hashing password",
		})
	}

	now := time.Now()
	user := models.User{
		ID:        primitive.NewObjectID(),
		Email:     email,
		Password:  string(hashedPassword),
		FullName:  req.FullName,
		UserType:  "user",
		IsActive:  true,
		Phone:     req.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := usersCollection.InsertOne(ctx, user); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create user",
		})
	}

	data := map[string]interface{}{
		"userId": user.ID.Hex(),
	}

	// Kick off phone verification when a phone was provided
	if req.Phone != "" {
		result, issueErr := ac.issueAndDispatch(ctx, req.Phone, &user.ID, models.OtpTypePhoneVerification, data)
		if issueErr != nil {
			ac.logger.Printf("signup OTP issuance failed for %s: %v", req.Phone, issueErr)
		} else {
			data["expiresAt"] = result.ExpiresAt
		}
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Account created successfully",
		Data:    data,
	})
}

// Login authenticates a user with email and password
func (ac *AuthController) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request",
		})
	}

	email, err := utils.SanitizeEmail(req.Email)
	if err != nil || req.Password == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Email and password are required",
		})
	}

	if ac.isLockedOut(email) {
		return c.JSON(http.StatusTooManyRequests, models.Response{
			Status:  http.StatusTooManyRequests,
			Message: "Too many failed login attempts. Please try again later.",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	usersCollection := config.GetCollection(ac.DB, "users")

	var user models.User
	err = usersCollection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		ac.recordFailedAttempt(email)
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid email or password",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		ac.recordFailedAttempt(email)
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid email or password",
		})
	}

	if !user.IsActive {
		return c.JSON(http.StatusForbidden, models.Response{
			Status:  http.StatusForbidden,
			Message: "Account is inactive",
		})
	}

	ac.clearAttempts(email)

	token, refreshToken, err := middleware.GenerateJWT(user.ID.Hex(), user.Email, user.UserType)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate token",
		})
	}

	user.Password = ""

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Login successful",
		Data: map[string]interface{}{
			"token":        token,
			"refreshToken": refreshToken,
			"user":         user,
		},
	})
}

// RequestOTP issues a verification code for a phone number.
func (ac *AuthController) RequestOTP(c echo.Context) error {
	var req models.RequestOTPRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request",
		})
	}

	req.Phone = utils.NormalizePhone(utils.SanitizeInput(req.Phone))
	if req.Phone == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Phone number is required",
		})
	}
	if !utils.IsValidPhone(req.Phone) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid phone number format",
		})
	}

	var userID *primitive.ObjectID
	if req.UserID != "" {
		id, err := primitive.ObjectIDFromHex(req.UserID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid user ID",
			})
		}
		userID = &id
	}

	ctx := c.Request().Context()
	data := map[string]interface{}{"phone": req.Phone}

	result, err := ac.issueAndDispatch(ctx, req.Phone, userID, models.OtpTypePhoneVerification, data)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: err.Error(),
			})
		case errors.Is(err, services.ErrTooManyRequests):
			return c.JSON(http.StatusTooManyRequests, models.Response{
				Status:  http.StatusTooManyRequests,
				Message: "Please wait before requesting another code",
			})
		default:
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Failed to send OTP",
			})
		}
	}

	data["expiresAt"] = result.ExpiresAt

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "OTP sent successfully. Please verify your phone number.",
		Data:    data,
	})
}

// ResendOTP re-issues a code for a phone number. Each resend creates a fresh
// independent record; the previous one stays in place but becomes
// unreachable for verification.
func (ac *AuthController) ResendOTP(c echo.Context) error {
	return ac.RequestOTP(c)
}

// issueAndDispatch issues a code and sends it over the SMS gateway. In dev
// mode, or when the store write degraded, the code is placed into data for
// the response body instead.
func (ac *AuthController) issueAndDispatch(ctx context.Context, phone string, userID *primitive.ObjectID, otpType string, data map[string]interface{}) (*services.IssueResult, error) {
	result, err := ac.otpService.Issue(ctx, phone, userID, otpType)
	if err != nil && !errors.Is(err, services.ErrConfiguration) {
		return nil, err
	}
	if errors.Is(err, services.ErrConfiguration) {
		// Degraded mode: the code exists only in this response. Surface it
		// rather than failing the caller, since it is otherwise
		// unrecoverable.
		ac.logger.Printf("degraded OTP issuance for phone %s: %v", phone, err)
		data["otp"] = result.Code
		return result, nil
	}

	if ac.devMode {
		ac.logger.Printf("dev mode: OTP for phone %s returned in response", phone)
		data["otp"] = result.Code
		return result, nil
	}

	if smsErr := ac.smsService.SendOTP(phone, result.Code); smsErr != nil {
		ac.logger.Printf("SMS dispatch failed for phone %s: %v", phone, smsErr)
		return nil, smsErr
	}
	return result, nil
}

// VerifyOTP validates a submitted code against the newest active record for
// the phone and consumes it.
func (ac *AuthController) VerifyOTP(c echo.Context) error {
	var req models.VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		ac.logger.Printf("OTP verification bind error: %v", err)
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request",
		})
	}

	req.Phone = utils.NormalizePhone(utils.SanitizeInput(req.Phone))
	req.OtpCode = utils.SanitizeInput(req.OtpCode)

	if req.Phone == "" || req.OtpCode == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Phone number and OTP code are required",
		})
	}

	var userID *primitive.ObjectID
	if req.UserID != "" {
		id, err := primitive.ObjectIDFromHex(req.UserID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid user ID",
			})
		}
		userID = &id
	}

	err := ac.otpService.Verify(c.Request().Context(), req.Phone, req.OtpCode, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidOrExpiredCode):
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid or expired OTP",
			})
		case errors.Is(err, services.ErrValidation):
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: err.Error(),
			})
		default:
			ac.logger.Printf("OTP verification failed for phone %s: %v", req.Phone, err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Database error",
			})
		}
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Phone number verified successfully",
	})
}

// UpdatePhone re-validates the OTP and moves the verified phone number onto
// the user's profile.
func (ac *AuthController) UpdatePhone(c echo.Context) error {
	var req models.UpdatePhoneRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request",
		})
	}

	req.PhoneNumber = utils.NormalizePhone(utils.SanitizeInput(req.PhoneNumber))
	req.OtpCode = utils.SanitizeInput(req.OtpCode)

	if req.UserID == "" || req.PhoneNumber == "" || req.OtpCode == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "User ID, phone number and OTP code are required",
		})
	}

	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid user ID",
		})
	}

	ctx := c.Request().Context()

	if err := ac.otpService.Verify(ctx, req.PhoneNumber, req.OtpCode, &userID); err != nil {
		if errors.Is(err, services.ErrInvalidOrExpiredCode) || errors.Is(err, services.ErrValidation) {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid or expired OTP",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
		})
	}

	usersCollection := config.GetCollection(ac.DB, "users")
	_, err = usersCollection.UpdateOne(
		ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{
			"phone":         req.PhoneNumber,
			"phoneVerified": true,
			"updatedAt":     time.Now(),
		}},
	)
	if err != nil {
		ac.logger.Printf("failed to update phone for user %s: %v", req.UserID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update phone number",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Phone number updated and verified successfully",
	})
}

// ValidateToken checks session validity for the frontend
func (ac *AuthController) ValidateToken(c echo.Context) error {
	authHeader := c.Request().Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	result, err := utils.ValidateToken(tokenString, ac.DB)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Token validation failed",
		})
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnauthorized
	}

	return c.JSON(status, models.Response{
		Status:  status,
		Message: result.Message,
		Data:    result,
	})
}

// RefreshToken exchanges a valid refresh token for a new token pair
func (ac *AuthController) RefreshToken(c echo.Context) error {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Refresh token is required",
		})
	}

	result, err := utils.ValidateToken(req.RefreshToken, ac.DB)
	if err != nil || !result.Valid {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid refresh token",
		})
	}

	token, refreshToken, err := middleware.GenerateJWT(result.User.ID.Hex(), result.User.Email, result.User.UserType)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate token",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Token refreshed successfully",
		Data: map[string]interface{}{
			"token":        token,
			"refreshToken": refreshToken,
		},
	})
}

// Logout blacklists the current token
func (ac *AuthController) Logout(c echo.Context) error {
	authHeader := c.Request().Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "No token provided",
		})
	}

	middleware.BlacklistToken(tokenString, time.Now().Add(7*24*time.Hour))

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Logged out successfully",
	})
}

func (ac *AuthController) isLockedOut(email string) bool {
	ac.loginAttemptsMu.RLock()
	defer ac.loginAttemptsMu.RUnlock()

	attempt, exists := ac.loginAttempts[email]
	if !exists {
		return false
	}
	return attempt.count >= maxLoginAttempts && time.Since(attempt.lastAttempt) < 15*time.Minute
}

func (ac *AuthController) recordFailedAttempt(email string) {
	ac.loginAttemptsMu.Lock()
	defer ac.loginAttemptsMu.Unlock()

	attempt := ac.loginAttempts[email]
	attempt.count++
	attempt.lastAttempt = time.Now()
	ac.loginAttempts[email] = attempt
}

func (ac *AuthController) clearAttempts(email string) {
	ac.loginAttemptsMu.Lock()
	defer ac.loginAttemptsMu.Unlock()
	delete(ac.loginAttempts, email)
}

func (ac *AuthController) startLoginAttemptCleanupRoutine() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		ac.loginAttemptsMu.Lock()
		now := time.Now()
		for email, attempt := range ac.loginAttempts {
			if now.Sub(attempt.lastAttempt) > 1*time.Hour {
				delete(ac.loginAttempts, email)
			}
		}
		ac.loginAttemptsMu.Unlock()
	}
}
