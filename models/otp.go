package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OTP channel tags. Phone verification covers signup and update-phone flows;
// sign-in covers passwordless login.
const (
	OtpTypePhoneVerification = "phone_verification"
	OtpTypeSignIn            = "sign_in"
)

// OtpRecord represents one issued verification code. A record is active while
// verified is false and expiresAt is in the future; expiry is a query-time
// predicate, nothing mutates the row when the window closes.
type OtpRecord struct {
	ID        primitive.ObjectID  `json:"id,omitempty" bson:"_id,omitempty"`
	Phone     string              `json:"phone" bson:"phone"`
	UserID    *primitive.ObjectID `json:"userId,omitempty" bson:"userId,omitempty"`
	Code      string              `json:"-" bson:"code"`
	OtpType   string              `json:"otpType" bson:"otpType"`
	CreatedAt time.Time           `json:"createdAt" bson:"createdAt"`
	ExpiresAt time.Time           `json:"expiresAt" bson:"expiresAt"`
	Verified  bool                `json:"verified" bson:"verified"`
}

// RequestOTPRequest is the body for the OTP issuance and resend endpoints.
type RequestOTPRequest struct {
	Phone  string `json:"phone"`
	UserID string `json:"userId,omitempty"`
}

// VerifyOTPRequest is the body for the OTP verification endpoint.
type VerifyOTPRequest struct {
	Phone   string `json:"phone"`
	OtpCode string `json:"otpCode"`
	UserID  string `json:"userId,omitempty"`
}

// UpdatePhoneRequest re-validates an OTP and moves the verified phone number
// onto the user's profile.
type UpdatePhoneRequest struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
	OtpCode     string `json:"otpCode"`
}
