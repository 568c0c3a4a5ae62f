// Package jwt issues and validates the short-lived access tokens. Only
// the access credential is a JWT; refresh tokens are opaque and live in
// the refresh store.
package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired indicates the token's validity window has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid indicates the token failed signature or claim checks.
	ErrInvalid = errors.New("token invalid")
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// SigningHS256 signs with a shared HMAC secret.
	SigningHS256 SigningMethod = "hs256"
	// SigningEd25519 signs with an Ed25519 private key so resource
	// services can verify with the public half only.
	SigningEd25519 SigningMethod = "ed25519"
)

// AccessClaims is the claim set embedded in every access token. The
// identity snapshot travels with the token; permission checks resolve
// against it without a user lookup.
type AccessClaims struct {
	UserID       string `json:"uid"`
	Email        string `json:"eml,omitempty"`
	DisplayName  string `json:"nam,omitempty"`
	Role         string `json:"rol"`
	CustomRoleID string `json:"crid,omitempty"`
	jwt.RegisteredClaims
}

// Config parameterizes a [Manager].
type Config struct {
	Method    SigningMethod
	Secret    []byte // hs256
	Private   ed25519.PrivateKey
	Public    ed25519.PublicKey
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	Leeway    time.Duration
}

// Manager signs and parses access tokens.
type Manager struct {
	cfg    Config
	method jwt.SigningMethod
}

// NewManager validates key material and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access ttl must be positive")
	}

	m := &Manager{cfg: cfg}
	switch cfg.Method {
	case SigningHS256, "":
		if len(cfg.Secret) < 32 {
			return nil, errors.New("hs256 secret must be at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
	case SigningEd25519:
		if len(cfg.Private) != ed25519.PrivateKeySize {
			return nil, errors.New("ed25519 private key has wrong size")
		}
		if len(cfg.Public) != ed25519.PublicKeySize {
			return nil, errors.New("ed25519 public key has wrong size")
		}
		m.method = jwt.SigningMethodEdDSA
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.Method)
	}
	return m, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.cfg.AccessTTL
}

// CreateAccess signs a new access token for the claims' identity.
func (m *Manager) CreateAccess(claims AccessClaims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.UserID,
		Issuer:    m.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	return token.SignedString(m.signingKey())
}

// ParseAccess validates signature, expiry, issuer and audience, and
// returns the embedded claims.
func (m *Manager) ParseAccess(tokenString string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.cfg.Leeway),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	if m.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience))
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return m.verificationKey(), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (m *Manager) signingKey() any {
	if m.method == jwt.SigningMethodEdDSA {
		return m.cfg.Private
	}
	return m.cfg.Secret
}

func (m *Manager) verificationKey() any {
	if m.method == jwt.SigningMethodEdDSA {
		return m.cfg.Public
	}
	return m.cfg.Secret
}
