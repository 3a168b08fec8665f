package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionIssuer = "starwise"
	defaultSessionTTL    = 7 * 24 * time.Hour
)

var (
	ErrMissingSessionSigningKey = errors.New("session codec: signing key required")
	ErrInvalidSessionTTL        = errors.New("session codec: token ttl must be positive")
	ErrMissingSessionToken      = errors.New("session codec: token required")
	ErrInvalidSessionToken      = errors.New("session codec: invalid token")
	ErrExpiredSessionToken      = errors.New("session codec: token expired")
	ErrMissingSessionSubject    = errors.New("session codec: subject required")
)

// SessionCodecConfig configures session token issuance and verification.
type SessionCodecConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// SessionCodec issues and verifies HS256 session tokens whose subject is the internal user id.
type SessionCodec struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
}

// NewSessionCodec validates the configuration. A zero TTL falls back to seven days.
func NewSessionCodec(cfg SessionCodecConfig) (*SessionCodec, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = defaultSessionTTL
	}
	if ttl < 0 {
		return nil, ErrInvalidSessionTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionCodec{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// TTL reports the lifetime given to issued tokens.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for userID and returns it with its absolute expiry.
func (c *SessionCodec) Issue(userID uint) (string, time.Time, error) {
	if userID == 0 {
		return "", time.Time{}, ErrMissingSessionSubject
	}
	now := c.clock().UTC()
	expiresAt := now.Add(c.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(c.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer and expiry and returns the user id carried in the subject.
// Every failure maps onto one of the session codec sentinels.
func (c *SessionCodec) Verify(tokenString string) (uint, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return 0, ErrMissingSessionToken
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.signingSecret, nil
		},
		jwt.WithTimeFunc(c.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredSessionToken
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return 0, ErrInvalidSessionToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return 0, ErrMissingSessionSubject
	}
	userID, err := strconv.ParseUint(subject, 10, 0)
	if err != nil || userID == 0 {
		return 0, fmt.Errorf("%w: malformed subject", ErrInvalidSessionToken)
	}
	return uint(userID), nil
}
