package authcore

import (
	"context"
	"strings"
	"time"

	"github.com/opsdeck/authcore/internal"
	"github.com/opsdeck/authcore/internal/rate"
	"github.com/opsdeck/authcore/jwt"
	"github.com/opsdeck/authcore/otp"
	"github.com/opsdeck/authcore/password"
	"github.com/opsdeck/authcore/permission"
	"github.com/opsdeck/authcore/refresh"
	"github.com/opsdeck/authcore/trust"
)

// Engine is the authentication and authorization core. Construct one
// through [New]; the zero value is not usable.
type Engine struct {
	config       Config
	identity     IdentityProvider
	roleProvider RoleProvider
	sender       OTPSender

	hasher       *password.Hasher
	jwtManager   *jwt.Manager
	trustLedger  *trust.Ledger
	challenges   *otp.Store
	refreshStore *refresh.Store
	limiter      *rate.Limiter
	resolver     *permission.Resolver
	audit        *auditDispatcher
	metrics      *Metrics

	// dummyHash absorbs password verification time for unknown
	// usernames so lookups are not distinguishable by latency.
	dummyHash string
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were shed under pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) auditEmit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = userAgentFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// Validate parses and verifies an access token, returning its identity
// claims. Any signature, expiry, issuer, or audience failure reports
// [ErrUnauthorized].
func (e *Engine) Validate(ctx context.Context, accessToken string) (*Claims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()

	parsed, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	if e.metrics != nil {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	return &Claims{
		UserID:       parsed.UserID,
		Email:        parsed.Email,
		DisplayName:  parsed.DisplayName,
		Role:         parsed.Role,
		CustomRoleID: parsed.CustomRoleID,
	}, nil
}

// issueTokens mints an access/refresh pair for the user and persists
// the refresh record.
func (e *Engine) issueTokens(ctx context.Context, user UserRecord) (*TokenPair, error) {
	access, err := e.jwtManager.CreateAccess(jwt.AccessClaims{
		UserID:       user.UserID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		Role:         user.Role,
		CustomRoleID: user.CustomRoleID,
	})
	if err != nil {
		return nil, err
	}

	refreshToken, err := internal.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := e.refreshStore.Save(ctx, user.UserID, refreshToken); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// mintAccess signs an access token only, for paths that hand back an
// existing refresh lineage.
func (e *Engine) mintAccess(user UserRecord) (string, error) {
	return e.jwtManager.CreateAccess(jwt.AccessClaims{
		UserID:       user.UserID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		Role:         user.Role,
		CustomRoleID: user.CustomRoleID,
	})
}

// checkRate applies one fixed-window budget and converts a denial into
// a [RateLimitError]. Backend failures deny.
func (e *Engine) checkRate(ctx context.Context, key string, max int, window time.Duration, metric MetricID, eventType, userID string) error {
	ok, retryAfter, err := e.limiter.Allow(ctx, key, max, window)
	if err != nil {
		return ErrRateLimited
	}
	if ok {
		return nil
	}

	e.metricInc(metric)
	e.auditEmit(ctx, AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Success:   false,
		Error:     ErrRateLimited.Error(),
	})
	return &RateLimitError{RetryAfter: retryAfter}
}

// normalizeOrigin collapses absent origin addresses into a single
// marker that is never trusted and never enters the ledger.
func normalizeOrigin(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "unknown"
	}
	return ip
}

func originKnown(origin string) bool {
	return origin != "" && origin != "unknown"
}

// maskEmail hides the local part except its first character, keeping
// the destination recognizable without disclosing it.
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
