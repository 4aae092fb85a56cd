package domain

import "time"

// OTPPurpose discriminates email-verification codes from password-reset codes.
// Codes are never valid across purposes.
type OTPPurpose string

const (
	PurposeEmailVerification OTPPurpose = "email_verification"
	PurposePasswordReset     OTPPurpose = "password_reset"
)

// OTPTTL is how long a freshly issued code stays valid.
const OTPTTL = 15 * time.Minute

// OTPLength is the number of digits in a generated code.
const OTPLength = 6

// OTPRecord is one issued code. Rows live in a per-purpose table
// (email_verifications or password_reset_otps) with identical shape.
type OTPRecord struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Code      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsUsed    bool      `json:"is_used"`
}
