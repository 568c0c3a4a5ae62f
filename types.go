package authcore

import (
	"context"
	"time"
)

// UserRecord is the account record returned by [IdentityProvider]. The
// engine never stores users itself; the host application owns them.
type UserRecord struct {
	UserID       string
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	CustomRoleID string
	Active       bool
	LastLoginAt  time.Time
	LastOriginIP string
}

// EffectiveRole is the value used for permission checks: the custom role
// ID when one is assigned, otherwise the built-in role name.
func (u UserRecord) EffectiveRole() string {
	if u.CustomRoleID != "" {
		return u.CustomRoleID
	}
	return u.Role
}

// IdentityProvider is implemented by the host to integrate its user store.
// Lookups must treat usernames case-insensitively; the engine passes them
// already lower-cased.
type IdentityProvider interface {
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
	// RecordLogin updates last-login bookkeeping. Best-effort: failures
	// never block a successful login.
	RecordLogin(ctx context.Context, userID, originAddress string, at time.Time) error
}

// CustomRoleRecord is an admin-defined role: a module→action grant set.
// System roles cannot be deleted.
type CustomRoleRecord struct {
	RoleID      string
	Name        string
	System      bool
	Permissions map[string][]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleProvider is implemented by the host to persist custom roles.
type RoleProvider interface {
	GetCustomRole(ctx context.Context, roleID string) (CustomRoleRecord, error)
	CreateCustomRole(ctx context.Context, role CustomRoleRecord) (CustomRoleRecord, error)
	UpdateCustomRole(ctx context.Context, role CustomRoleRecord) error
	DeleteCustomRole(ctx context.Context, roleID string) error
	// CountAssignedUsers reports how many users currently reference the
	// role; deletion is blocked while it is non-zero.
	CountAssignedUsers(ctx context.Context, roleID string) (int, error)
}

// OTPSender delivers a one-time code out of band. The plaintext code never
// appears in any engine response.
type OTPSender interface {
	SendOTP(ctx context.Context, email, displayName, code string) error
}

// Claims is the identity claim set minted into access tokens and returned
// by [Engine.Validate].
type Claims struct {
	UserID       string
	Email        string
	DisplayName  string
	Role         string
	CustomRoleID string
}

// EffectiveRole mirrors [UserRecord.EffectiveRole] for validated claims.
func (c Claims) EffectiveRole() string {
	if c.CustomRoleID != "" {
		return c.CustomRoleID
	}
	return c.Role
}

// TokenPair is an access token plus the refresh token that renews it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by [Engine.Login]. Exactly one of the two shapes
// is populated: tokens, or a challenge prompt. ChallengeRequired is an
// outcome, not an error: the caller should prompt for the OTP code.
type LoginResult struct {
	Tokens *TokenPair

	ChallengeRequired bool
	MaskedDestination string
	UserID            string
}
