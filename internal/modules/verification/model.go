// README: Verification code domain: namespaces, policies and result errors.
package verification

import (
	"errors"
	"time"
)

// Code namespaces. Keys are laid out as "{type}:{identifier}" with a sibling
// "{type}:attempts:{identifier}" counter carrying the same TTL.
const (
	TypeAuthOTP          = "auth-otp"
	TypePasswordResetOTP = "password-reset-otp"
	TypeDeliveryOC       = "delivery-oc"
	TypeResetToken       = "password-reset-token"
)

// Policy controls what happens when a code already exists for the key.
type Policy int

const (
	// ExclusiveCreate fails issuance while an unexpired code exists; the
	// caller must wait out the TTL. Used for login and reset OTPs.
	ExclusiveCreate Policy = iota
	// IdempotentRetrieve returns the existing code and its remaining TTL
	// instead of failing. Used for the delivery handoff code.
	IdempotentRetrieve
)

// CodePolicy bundles the per-call-site issuance settings.
type CodePolicy struct {
	TTL         time.Duration
	MaxAttempts int
	Policy      Policy
}

// IssueResult reports the code handed to the caller. Retrieved is true when
// an existing code was returned under IdempotentRetrieve.
type IssueResult struct {
	Code      string
	TTL       time.Duration
	Retrieved bool
}

var (
	// ErrExists: an unexpired code is already outstanding (exclusive-create).
	ErrExists = errors.New("code already issued")
	// ErrExpired: no stored code for the key, or it already expired.
	ErrExpired = errors.New("code expired or not found")
	// ErrInvalid: submitted code does not match.
	ErrInvalid = errors.New("invalid code")
	// ErrBlocked: the attempt cap is reached; no further comparisons happen.
	ErrBlocked = errors.New("too many attempts")
	// ErrRateLimited: issuance requests for the identifier exceeded the window cap.
	ErrRateLimited = errors.New("issuance rate limit exceeded")
)
