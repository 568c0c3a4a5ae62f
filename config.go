package authcore

import (
	"errors"
	"time"
)

// Environment selects deployment behavior. In [EnvDevelopment] the trust
// ledger is not consulted and every login proceeds without a challenge.
type Environment string

const (
	// EnvProduction enforces the full adaptive-login path.
	EnvProduction Environment = "production"
	// EnvDevelopment skips origin-trust checks. Never use outside local dev.
	EnvDevelopment Environment = "development"
)

// Config carries all engine tuning. Construct it from [DefaultConfig] and
// override fields; Build validates the result.
type Config struct {
	Environment Environment
	JWT         JWTConfig
	Password    PasswordConfig
	RateLimit   RateLimitConfig
	OTP         OTPConfig
	Trust       TrustConfig
	Refresh     RefreshConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

// JWTConfig controls access-token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// PasswordConfig carries argon2id parameters. Memory is in KB.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// RateLimitConfig sets the fixed-window budgets for each sensitive
// operation. Counters increment on every call, including denied ones.
type RateLimitConfig struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration

	OTPIssueMax    int
	OTPIssueWindow time.Duration

	OTPVerifyMax    int
	OTPVerifyWindow time.Duration

	RefreshMax    int
	RefreshWindow time.Duration
}

// OTPConfig controls challenge generation.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
}

// TrustConfig controls the trusted-origin ledger.
type TrustConfig struct {
	RedisPrefix string
}

// RefreshConfig controls refresh-token rotation. GraceWindow bounds how
// long after rotation a replay of the rotated-away token is treated as a
// benign concurrent refresh rather than theft. It is a tunable heuristic,
// not a hard correctness boundary.
type RefreshConfig struct {
	TTL         time.Duration
	GraceWindow time.Duration
	RedisPrefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults: 30m access tokens, 7d refresh
// tokens with a 60s grace window, 6-digit codes valid 10m with 5 attempts,
// and the rate budgets described in the package documentation.
func DefaultConfig() Config {
	return Config{
		Environment: EnvProduction,
		JWT: JWTConfig{
			AccessTTL:     30 * time.Minute,
			SigningMethod: "hs256",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           2,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			LoginMaxAttempts: 5,
			LoginWindow:      time.Minute,
			OTPIssueMax:      3,
			OTPIssueWindow:   10 * time.Minute,
			OTPVerifyMax:     5,
			OTPVerifyWindow:  5 * time.Minute,
			RefreshMax:       30,
			RefreshWindow:    time.Minute,
		},
		OTP: OTPConfig{
			Digits:      6,
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
			RedisPrefix: "aoc",
		},
		Trust: TrustConfig{
			RedisPrefix: "atl",
		},
		Refresh: RefreshConfig{
			TTL:         7 * 24 * time.Hour,
			GraceWindow: 60 * time.Second,
			RedisPrefix: "art",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Environment != EnvProduction && cfg.Environment != EnvDevelopment {
		return errors.New("invalid environment")
	}
	if cfg.JWT.AccessTTL <= 0 {
		return errors.New("access TTL must be positive")
	}
	if len(cfg.JWT.PrivateKey) == 0 {
		return errors.New("JWT private key required")
	}
	if cfg.OTP.Digits < 6 || cfg.OTP.Digits > 10 {
		return errors.New("otp digits must be 6..10")
	}
	if cfg.OTP.TTL <= 0 || cfg.OTP.MaxAttempts <= 0 {
		return errors.New("otp TTL and attempt budget must be positive")
	}
	if cfg.Refresh.TTL <= 0 {
		return errors.New("refresh TTL must be positive")
	}
	if cfg.Refresh.GraceWindow < 0 || cfg.Refresh.GraceWindow >= cfg.Refresh.TTL {
		return errors.New("grace window must be within the refresh TTL")
	}
	if cfg.RateLimit.LoginMaxAttempts <= 0 || cfg.RateLimit.LoginWindow <= 0 {
		return errors.New("login rate budget must be positive")
	}
	if cfg.RateLimit.OTPIssueMax <= 0 || cfg.RateLimit.OTPVerifyMax <= 0 {
		return errors.New("otp rate budgets must be positive")
	}
	return nil
}
