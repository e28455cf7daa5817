package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goodpass/goodpass_backend/models"
	"github.com/goodpass/goodpass_backend/utils"
)

const (
	// Validity window of an issued code.
	otpTTL = 10 * time.Minute
	// Server-side mirror of the client's resend countdown.
	resendCooldown = 60 * time.Second
	// Issuance cap per phone per hour.
	maxIssuesPerHour = 5
)

// OTPStore is the persistence contract of the OTP lifecycle manager.
type OTPStore interface {
	// Insert persists a freshly issued record.
	Insert(ctx context.Context, rec *models.OtpRecord) error
	// FindNewestActive returns the most recently created record for phone
	// with verified=false and expiresAt after now, or nil when none exists.
	FindNewestActive(ctx context.Context, phone string, now time.Time) (*models.OtpRecord, error)
	// MarkVerified flips verified=true on the record iff it is still
	// unverified; it reports whether this call won the flip.
	MarkVerified(ctx context.Context, id primitive.ObjectID) (bool, error)
	// SetPhoneVerified flags the owning profile after a successful verify.
	SetPhoneVerified(ctx context.Context, userID primitive.ObjectID) error
	// DeleteExpired removes records whose validity window has closed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// IssueResult is the outcome of issuing a code. Code is surfaced to the HTTP
// layer only in dev mode; with a configured SMS gateway it goes out-of-band.
type IssueResult struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	// Degraded is set when the store write failed and the code exists only
	// in this response.
	Degraded bool `json:"-"`
}

// OTPService implements the OTP issuance-and-verification lifecycle: expiry,
// single use, newest-record lookup and the resend/attempt abuse controls.
type OTPService struct {
	store  OTPStore
	redis  *redis.Client
	logger *log.Logger
}

// NewOTPService creates an OTP service. redis may be nil, which disables the
// cooldown and attempt caps.
func NewOTPService(store OTPStore, redisClient *redis.Client) *OTPService {
	return &OTPService{
		store:  store,
		redis:  redisClient,
		logger: log.New(os.Stdout, "[OTP] ", log.LstdFlags),
	}
}

// Issue generates a 6-digit code for phone, persists it with a 10-minute
// validity window and returns it. When the store write fails the generated
// code is still returned alongside ErrConfiguration, since it is otherwise
// unrecoverable; callers decide whether the degraded mode is acceptable.
func (s *OTPService) Issue(ctx context.Context, phone string, userID *primitive.ObjectID, otpType string) (*IssueResult, error) {
	if phone == "" {
		return nil, fmt.Errorf("%w: phone number is required", ErrValidation)
	}

	if err := s.checkAbuse(ctx, phone); err != nil {
		return nil, err
	}

	code, err := utils.GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("failed to generate OTP: %w", err)
	}

	now := time.Now().UTC()
	rec := &models.OtpRecord{
		Phone:     phone,
		UserID:    userID,
		Code:      code,
		OtpType:   otpType,
		CreatedAt: now,
		ExpiresAt: now.Add(otpTTL),
		Verified:  false,
	}

	result := &IssueResult{Code: code, ExpiresAt: rec.ExpiresAt}

	if s.store == nil {
		s.logger.Printf("OTP store unavailable, issuing degraded code for phone %s", phone)
		result.Degraded = true
		return result, ErrConfiguration
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		s.logger.Printf("failed to persist OTP for phone %s: %v", phone, err)
		result.Degraded = true
		return result, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return result, nil
}

// Verify consumes the newest active code for phone. The lookup selects the
// most recently created unverified, unexpired record, so a newer issuance
// supersedes older still-valid codes without touching their rows. A wrong
// code, an expired code and an already-used code all fail identically with
// ErrInvalidOrExpiredCode.
func (s *OTPService) Verify(ctx context.Context, phone, code string, userID *primitive.ObjectID) error {
	if phone == "" || code == "" {
		return fmt.Errorf("%w: phone number and OTP code are required", ErrValidation)
	}
	if s.store == nil {
		return ErrConfiguration
	}

	rec, err := s.store.FindNewestActive(ctx, phone, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("OTP lookup failed: %w", err)
	}
	if rec == nil || rec.Code != code {
		return ErrInvalidOrExpiredCode
	}

	// Conditional flip; a concurrent verify racing on the same record loses
	// here and observes the record as already used.
	won, err := s.store.MarkVerified(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to consume OTP: %w", err)
	}
	if !won {
		return ErrInvalidOrExpiredCode
	}

	// Profile flagging is best-effort: the OTP is already consumed and that
	// outcome is the primary contract.
	flagID := userID
	if flagID == nil {
		flagID = rec.UserID
	}
	if flagID != nil {
		if err := s.store.SetPhoneVerified(ctx, *flagID); err != nil {
			s.logger.Printf("failed to flag phoneVerified for user %s: %v", flagID.Hex(), err)
		}
	}

	return nil
}

// checkAbuse enforces the 60-second resend cooldown and the hourly issuance
// cap. Both are skipped when Redis is unavailable.
func (s *OTPService) checkAbuse(ctx context.Context, phone string) error {
	if s.redis == nil {
		return nil
	}

	ok, err := s.redis.SetNX(ctx, "otp_cooldown:"+phone, 1, resendCooldown).Result()
	if err != nil {
		s.logger.Printf("cooldown check failed for phone %s: %v", phone, err)
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: resend cooldown active", ErrTooManyRequests)
	}

	attempts, err := s.redis.Incr(ctx, "otp_attempts:"+phone).Result()
	if err != nil {
		s.logger.Printf("attempt count failed for phone %s: %v", phone, err)
		return nil
	}
	if attempts == 1 {
		s.redis.Expire(ctx, "otp_attempts:"+phone, 1*time.Hour)
	}
	if attempts > maxIssuesPerHour {
		return fmt.Errorf("%w: hourly limit reached", ErrTooManyRequests)
	}

	return nil
}

// StartCleanupRoutine periodically deletes expired records. Retention of
// consumed records is otherwise an external concern.
func (s *OTPService) StartCleanupRoutine() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	s.cleanupExpired()
	for range ticker.C {
		s.cleanupExpired()
	}
}

func (s *OTPService) cleanupExpired() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := s.store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Printf("OTP cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		s.logger.Printf("cleaned up %d expired OTPs", deleted)
	}
}
