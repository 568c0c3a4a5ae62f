package authcore

import (
	"context"
	"time"

	"github.com/opsdeck/authcore/refresh"
)

// Refresh rotates a refresh token: the presented token is atomically
// revoked and a fresh access/refresh pair is issued. Each refresh value
// works exactly once.
//
// A replay of an already rotated token inside the grace window is
// treated as a benign concurrent refresh and answered with the winning
// rotation's lineage. Outside the window it is treated as reuse of a
// stolen token: every token the user holds is revoked and
// [ErrReuseDetected] returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.refreshStore == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrTokenExpired
	}

	// Peek the record to attribute the rate budget before the token is
	// consumed; denial must not burn the token.
	if rec, err := e.refreshStore.Get(ctx, refreshToken); err == nil && rec != nil {
		if err := e.checkRate(ctx, "rfr:"+rec.UserID,
			e.config.RateLimit.RefreshMax, e.config.RateLimit.RefreshWindow,
			MetricRefreshRateLimited, EventRefreshFailure, rec.UserID); err != nil {
			return nil, err
		}
	}

	res, err := e.refreshStore.Consume(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case refresh.StatusConsumed:
		return e.rotate(ctx, res.UserID)

	case refresh.StatusRevoked:
		if time.Since(res.RevokedAt) <= e.config.Refresh.GraceWindow {
			return e.recoverRace(ctx, res.UserID)
		}
		return nil, e.containReuse(ctx, res.UserID)

	default: // StatusNotFound, StatusExpired
		e.metricInc(MetricRefreshFailure)
		e.auditEmit(ctx, AuditEvent{
			EventType: EventRefreshFailure,
			Success:   false,
			Error:     "token expired or unknown",
		})
		return nil, ErrTokenExpired
	}
}

// rotate issues the successor pair after a token was consumed. The user
// is re-read from the identity store so a deactivation or role change
// takes effect on the next rotation, not on token expiry.
func (e *Engine) rotate(ctx context.Context, userID string) (*TokenPair, error) {
	user, err := e.identity.GetUserByID(ctx, userID)
	if err != nil || !user.Active {
		_ = e.refreshStore.RevokeAllForUser(ctx, userID)
		e.metricInc(MetricRefreshFailure)
		return nil, ErrUnauthorized
	}

	tokens, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventRefreshSuccess,
		UserID:    userID,
		Success:   true,
	})
	return tokens, nil
}

// recoverRace answers the loser of a concurrent rotation with the
// winner's lineage: a fresh access token plus the newest active refresh
// value. No new refresh record is created.
func (e *Engine) recoverRace(ctx context.Context, userID string) (*TokenPair, error) {
	sibling, err := e.refreshStore.NewestActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sibling == nil {
		// A revoked token with no surviving lineage is reuse, not a
		// race. There is nothing left to revoke, so containment reduces
		// to flagging the event for the security log.
		e.metricInc(MetricRefreshReuseDetected)
		e.auditEmit(ctx, AuditEvent{
			EventType: EventRefreshReuse,
			UserID:    userID,
			Success:   false,
			Error:     "revoked token replayed with no active lineage",
		})
		return nil, ErrTokenExpired
	}

	user, err := e.identity.GetUserByID(ctx, userID)
	if err != nil || !user.Active {
		_ = e.refreshStore.RevokeAllForUser(ctx, userID)
		e.metricInc(MetricRefreshFailure)
		return nil, ErrUnauthorized
	}

	access, err := e.mintAccess(user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshRaceRecovered)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventRefreshRace,
		UserID:    userID,
		Success:   true,
	})
	return &TokenPair{AccessToken: access, RefreshToken: sibling.Token}, nil
}

// containReuse handles a replay outside the grace window. The presented
// token was stolen or leaked, and there is no way to tell which holder
// is legitimate, so the whole lineage is revoked and everyone must
// re-authenticate.
func (e *Engine) containReuse(ctx context.Context, userID string) error {
	_ = e.refreshStore.RevokeAllForUser(ctx, userID)

	e.metricInc(MetricRefreshReuseDetected)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventRefreshReuse,
		UserID:    userID,
		Success:   false,
		Error:     ErrReuseDetected.Error(),
	})
	return ErrReuseDetected
}
