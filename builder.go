package authcore

import (
	"context"
	"crypto/ed25519"
	"errors"

	"github.com/opsdeck/authcore/internal/rate"
	"github.com/opsdeck/authcore/jwt"
	"github.com/opsdeck/authcore/otp"
	"github.com/opsdeck/authcore/password"
	"github.com/opsdeck/authcore/permission"
	"github.com/opsdeck/authcore/refresh"
	"github.com/opsdeck/authcore/trust"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A builder is single-use: Build wires
// the dependencies and refuses a second call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identity     IdentityProvider
	roleProvider RoleProvider
	sender       OTPSender
	auditSink    AuditSink

	built bool
}

// New returns a [Builder] preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing rate limits, the trust
// ledger, challenges, and refresh records.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityProvider sets the host's user store integration.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identity = p
	return b
}

// WithRoleProvider sets the custom-role store. Optional: without it
// only the built-in roles resolve.
func (b *Builder) WithRoleProvider(p RoleProvider) *Builder {
	b.roleProvider = p
	return b
}

// WithOTPSender sets the out-of-band delivery channel for one-time
// codes. Required in production.
func (b *Builder) WithOTPSender(s OTPSender) *Builder {
	b.sender = s
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates configuration and dependencies and returns a ready
// [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}
	if b.sender == nil && cfg.Environment == EnvProduction {
		return nil, errors.New("otp sender required in production")
	}

	hasher := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Iterations:  cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})

	jwtManager, err := jwt.NewManager(jwt.Config{
		Method:    jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:    cfg.JWT.PrivateKey,
		Private:   ed25519.PrivateKey(cfg.JWT.PrivateKey),
		Public:    ed25519.PublicKey(cfg.JWT.PublicKey),
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		AccessTTL: cfg.JWT.AccessTTL,
		Leeway:    cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		identity:     b.identity,
		roleProvider: b.roleProvider,
		sender:       b.sender,
		hasher:       hasher,
		jwtManager:   jwtManager,
		trustLedger:  trust.NewLedger(b.redis, cfg.Trust.RedisPrefix),
		challenges:   otp.NewStore(b.redis, cfg.OTP.RedisPrefix, cfg.OTP.TTL, cfg.OTP.MaxAttempts),
		refreshStore: refresh.NewStore(b.redis, cfg.Refresh.RedisPrefix, cfg.Refresh.TTL),
		limiter:      rate.New(b.redis, "arl"),
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:      NewMetrics(cfg.Metrics),
	}

	var loader permission.Loader
	if b.roleProvider != nil {
		rp := b.roleProvider
		loader = permission.LoaderFunc(func(ctx context.Context, roleID string) (permission.Grants, error) {
			role, err := rp.GetCustomRole(ctx, roleID)
			if err != nil {
				return nil, err
			}
			return permission.GrantsFromPermissions(role.Permissions), nil
		})
	}
	engine.resolver = permission.NewResolver(permission.NewCache(), loader)

	// Precompute the decoy hash used to flatten timing on unknown
	// usernames.
	dummy, err := hasher.Hash("authcore.decoy")
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	b.built = true
	return engine, nil
}
