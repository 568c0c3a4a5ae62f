package authcore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Login runs the adaptive authentication flow. On success from a
// trusted origin the result carries a token pair; from an unverified
// origin a one-time code is delivered out of band and the result asks
// the caller to complete the challenge via [Engine.VerifyChallenge].
//
// Unknown usernames, inactive accounts, and wrong passwords all report
// [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, username, passwordValue string) (*LoginResult, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}

	origin := normalizeOrigin(clientIPFromContext(ctx))

	if err := e.checkRate(ctx, "lgn:ip:"+origin,
		e.config.RateLimit.LoginMaxAttempts, e.config.RateLimit.LoginWindow,
		MetricLoginRateLimited, EventLoginRateLimited, ""); err != nil {
		return nil, err
	}

	username = strings.ToLower(strings.TrimSpace(username))

	user, err := e.identity.GetUserByUsername(ctx, username)
	if err != nil {
		// Burn comparable verification time for unknown accounts.
		_, _ = e.hasher.Verify(passwordValue, e.dummyHash)
		e.loginFailed(ctx, "", "unknown user")
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		_, _ = e.hasher.Verify(passwordValue, e.dummyHash)
		e.loginFailed(ctx, user.UserID, "inactive account")
		return nil, ErrInvalidCredentials
	}

	match, err := e.hasher.Verify(passwordValue, user.PasswordHash)
	if err != nil || !match {
		e.loginFailed(ctx, user.UserID, "password mismatch")
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(user.PasswordHash) {
		if upgraded, hashErr := e.hasher.Hash(passwordValue); hashErr == nil {
			_ = e.identity.UpdatePasswordHash(ctx, user.UserID, upgraded)
		}
	}

	trusted, err := e.originTrusted(ctx, user.UserID, origin)
	if err != nil {
		// Ledger unavailable: challenge rather than skip verification.
		trusted = false
	}
	if !trusted {
		return e.issueChallenge(ctx, user, origin)
	}

	return e.completeLogin(ctx, user, origin)
}

// originTrusted decides whether the login origin may skip the OTP
// challenge. Development deployments always may; unidentifiable origins
// never may.
func (e *Engine) originTrusted(ctx context.Context, userID, origin string) (bool, error) {
	if e.config.Environment == EnvDevelopment {
		return true, nil
	}
	if !originKnown(origin) {
		return false, nil
	}
	return e.trustLedger.IsTrusted(ctx, userID, origin)
}

// completeLogin mints tokens for a fully verified login. The per-origin
// attempt counter is left untouched: the window binds regardless of
// outcome, so success cannot be used to keep a guessing budget open.
func (e *Engine) completeLogin(ctx context.Context, user UserRecord, origin string) (*LoginResult, error) {
	tokens, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	_ = e.identity.RecordLogin(ctx, user.UserID, origin, time.Now())

	e.metricInc(MetricLoginSuccess)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventLoginSuccess,
		UserID:    user.UserID,
		Success:   true,
	})
	return &LoginResult{Tokens: tokens}, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID, reason string) {
	e.metricInc(MetricLoginFailure)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventLoginFailure,
		UserID:    userID,
		Success:   false,
		Error:     reason,
	})
}

// Logout revokes the presented refresh token. Unknown or already
// revoked tokens are treated as success; the call is idempotent.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil
	}

	res, err := e.refreshStore.Consume(ctx, refreshToken)
	if err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventLogout,
		UserID:    res.UserID,
		Success:   true,
	})
	return nil
}

// LogoutAll revokes every refresh token the user holds, ending all
// sessions on all devices.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return errors.New("user id required")
	}

	if err := e.refreshStore.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	e.metricInc(MetricLogoutAll)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventLogoutAll,
		UserID:    userID,
		Success:   true,
	})
	return nil
}
