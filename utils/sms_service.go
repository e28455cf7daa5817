package utils

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrSMSNotConfigured signals that no SMS gateway is configured; the OTP
// endpoints fall back to dev-mode behavior and echo the code in the response.
var ErrSMSNotConfigured = errors.New("SMS gateway not configured")

// SMSService sends verification codes through an HTTP SMS gateway.
type SMSService struct {
	Username string
	Password string
	SenderID string
	APIPath  string
	Client   *http.Client
}

// NewSMSService creates an SMS service from environment configuration.
func NewSMSService() *SMSService {
	return &SMSService{
		Username: os.Getenv("SMS_USERNAME"),
		Password: os.Getenv("SMS_PASSWORD"),
		SenderID: os.Getenv("SMS_SENDER_ID"),
		APIPath:  os.Getenv("SMS_API_URL"),
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Configured reports whether the gateway credentials are present.
func (s *SMSService) Configured() bool {
	return s.APIPath != "" && s.Username != "" && s.Password != ""
}

// SendOTP dispatches the code to the phone number over the gateway.
func (s *SMSService) SendOTP(phoneNumber, otp string) error {
	if !s.Configured() {
		return ErrSMSNotConfigured
	}

	message := fmt.Sprintf("Your Goodpass verification code is: %s. This code will expire in 10 minutes.", otp)

	params := url.Values{}
	params.Set("username", s.Username)
	params.Set("password", s.Password)
	params.Set("senderid", s.SenderID)
	params.Set("destination", phoneNumber)
	params.Set("message", message)

	fullURL := fmt.Sprintf("%s?%s", s.APIPath, params.Encode())

	req, err := http.NewRequest("POST", fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SMS API returned status %d: %s", resp.StatusCode, string(body))
	}

	responseStr := strings.ToLower(strings.TrimSpace(string(body)))
	if strings.Contains(responseStr, "error") || strings.Contains(responseStr, "fail") {
		return fmt.Errorf("SMS sending failed: %s", string(body))
	}

	return nil
}
