package authcore

import (
	"context"
	"time"

	"github.com/opsdeck/authcore/internal"
	"github.com/opsdeck/authcore/otp"
)

// issueChallenge generates a one-time code, stores it keyed by the
// (user, origin) pair and hands it to the out-of-band sender. Issuing
// replaces any code still pending for the pair, so exactly one code is
// actionable at a time.
func (e *Engine) issueChallenge(ctx context.Context, user UserRecord, origin string) (*LoginResult, error) {
	if e.sender == nil {
		e.metricInc(MetricChallengeDeliveryFailure)
		return nil, ErrChallengeDelivery
	}

	if err := e.checkRate(ctx, "otp:iss:"+user.UserID,
		e.config.RateLimit.OTPIssueMax, e.config.RateLimit.OTPIssueWindow,
		MetricLoginRateLimited, EventLoginRateLimited, user.UserID); err != nil {
		return nil, err
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return nil, err
	}

	userAgent := userAgentFromContext(ctx)
	if err := e.challenges.Save(ctx, user.UserID, origin, code, userAgent); err != nil {
		return nil, err
	}

	if err := e.sender.SendOTP(ctx, user.Email, user.DisplayName, code); err != nil {
		// Undeliverable code must not linger as a guessable secret.
		_ = e.challenges.Drop(ctx, user.UserID, origin)
		e.metricInc(MetricChallengeDeliveryFailure)
		e.auditEmit(ctx, AuditEvent{
			EventType: EventChallengeFailure,
			UserID:    user.UserID,
			Success:   false,
			Error:     "delivery failed",
		})
		return nil, ErrChallengeDelivery
	}

	e.metricInc(MetricChallengeIssued)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventChallengeIssued,
		UserID:    user.UserID,
		Success:   true,
	})

	return &LoginResult{
		ChallengeRequired: true,
		MaskedDestination: maskEmail(user.Email),
		UserID:            user.UserID,
	}, nil
}

// VerifyChallenge completes an adaptive login by checking the submitted
// one-time code. The challenge is bound to the origin that triggered
// it: the submission must come from the same address. On success the
// origin is recorded as trusted and a token pair is issued.
//
// Wrong codes return an [InvalidCodeError]; spending the attempt budget
// returns [ErrChallengeAttempts] and invalidates the challenge; an
// expired, consumed, or never-issued challenge returns
// [ErrChallengeExpired].
func (e *Engine) VerifyChallenge(ctx context.Context, userID, code string) (*TokenPair, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}

	origin := normalizeOrigin(clientIPFromContext(ctx))

	if err := e.checkRate(ctx, "otp:vrf:"+origin,
		e.config.RateLimit.OTPVerifyMax, e.config.RateLimit.OTPVerifyWindow,
		MetricLoginRateLimited, EventLoginRateLimited, userID); err != nil {
		return nil, err
	}

	res, err := e.challenges.Verify(ctx, userID, origin, code)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case otp.StatusMissing:
		e.metricInc(MetricChallengeFailure)
		e.auditEmit(ctx, AuditEvent{
			EventType: EventChallengeFailure,
			UserID:    userID,
			Success:   false,
			Error:     "missing or expired",
		})
		return nil, ErrChallengeExpired

	case otp.StatusExhausted:
		e.metricInc(MetricChallengeExhausted)
		e.auditEmit(ctx, AuditEvent{
			EventType: EventChallengeExhausted,
			UserID:    userID,
			Success:   false,
		})
		return nil, ErrChallengeAttempts

	case otp.StatusMismatch:
		e.metricInc(MetricChallengeFailure)
		e.auditEmit(ctx, AuditEvent{
			EventType: EventChallengeFailure,
			UserID:    userID,
			Success:   false,
			Error:     "code mismatch",
		})
		return nil, &InvalidCodeError{Remaining: res.Remaining}
	}

	user, err := e.identity.GetUserByID(ctx, userID)
	if err != nil || !user.Active {
		return nil, ErrInvalidCredentials
	}

	if originKnown(origin) {
		// Trust recording is advisory; the verified login proceeds even
		// if the ledger write fails.
		_ = e.trustLedger.MarkTrusted(ctx, userID, origin, userAgentFromContext(ctx))
	}

	tokens, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	_ = e.identity.RecordLogin(ctx, user.UserID, origin, time.Now())

	e.metricInc(MetricChallengeSuccess)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventChallengeSuccess,
		UserID:    userID,
		Success:   true,
	})
	return tokens, nil
}
