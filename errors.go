package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/opsdeck/authcore/permission"
)

var (
	// ErrInvalidCredentials covers unknown username, inactive account, and
	// wrong password alike so responses cannot be used for enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned when an access token fails validation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited indicates too many attempts on login, OTP issuance,
	// OTP verification, or refresh.
	ErrRateLimited = errors.New("rate limited")
	// ErrChallengeExpired indicates the OTP challenge is missing, expired,
	// or already consumed; the caller must restart login.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrChallengeAttempts indicates the OTP attempt budget is exhausted.
	ErrChallengeAttempts = errors.New("challenge attempts exhausted")
	// ErrChallengeInvalid indicates a wrong OTP code. Returned wrapped in
	// an [InvalidCodeError] carrying the remaining attempt count.
	ErrChallengeInvalid = errors.New("invalid challenge code")
	// ErrChallengeDelivery indicates the OTP could not be handed to the
	// out-of-band sender.
	ErrChallengeDelivery = errors.New("challenge delivery failed")
	// ErrTokenExpired indicates the refresh token is unknown or past its
	// expiry; the caller must re-authenticate.
	ErrTokenExpired = errors.New("refresh token expired or unknown")
	// ErrReuseDetected indicates a refresh token was replayed outside the
	// grace window; the whole lineage has been revoked.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrPermissionDenied indicates an authenticated caller lacks the
	// module/action grant. Never conflated with authentication failures.
	ErrPermissionDenied = permission.ErrDenied
	// ErrUserNotFound is returned by identity lookups on unknown user IDs.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoleNotFound is returned for custom-role operations on unknown IDs.
	ErrRoleNotFound = errors.New("custom role not found")
	// ErrRoleInUse blocks custom-role deletion while users reference it.
	ErrRoleInUse = errors.New("custom role still assigned to users")
	// ErrRoleSystem blocks deletion of system-flagged roles.
	ErrRoleSystem = errors.New("system role cannot be deleted")
	// ErrEngineNotReady is returned when the engine is used before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError wraps [ErrRateLimited] with a retry-after hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// InvalidCodeError wraps [ErrChallengeInvalid] with the number of attempts
// left on the challenge.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid challenge code, %d attempts remaining", e.Remaining)
}

func (e *InvalidCodeError) Unwrap() error { return ErrChallengeInvalid }
