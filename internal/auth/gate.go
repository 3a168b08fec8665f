package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/starwise/backend/internal/store"
	"go.uber.org/zap"
)

// ErrUnauthenticated is the only failure the gate reports for a bad, missing or orphaned session.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

var (
	errMissingGateVerifier   = errors.New("auth gate: token verifier required")
	errMissingGateUsers      = errors.New("auth gate: user lookup required")
	errMissingGateCookieName = errors.New("auth gate: cookie name required")
)

// TokenVerifier resolves a session token to a user id.
type TokenVerifier interface {
	Verify(token string) (uint, error)
}

// UserLookup loads users by internal id, returning store.ErrNotFound when absent.
type UserLookup interface {
	Get(ctx context.Context, id uint) (*store.User, error)
}

// GateConfig wires the gate.
type GateConfig struct {
	Verifier   TokenVerifier
	Users      UserLookup
	CookieName string
	Logger     *zap.Logger
}

// Gate turns an inbound session token into a stored user. It never writes.
type Gate struct {
	verifier   TokenVerifier
	users      UserLookup
	cookieName string
	logger     *zap.Logger
}

// NewGate validates the configuration.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Verifier == nil {
		return nil, errMissingGateVerifier
	}
	if cfg.Users == nil {
		return nil, errMissingGateUsers
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, errMissingGateCookieName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		verifier:   cfg.Verifier,
		users:      cfg.Users,
		cookieName: cookieName,
		logger:     logger,
	}, nil
}

// Resolve returns the user behind token. Absent, invalid, expired and orphaned tokens all yield
// ErrUnauthenticated; only store failures other than not-found are returned as-is.
func (g *Gate) Resolve(ctx context.Context, token string) (*store.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}
	userID, err := g.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, ErrExpiredSessionToken) {
			g.logger.Info("session token rejected", zap.Error(err))
		} else {
			g.logger.Warn("session token rejected", zap.Error(err))
		}
		return nil, ErrUnauthenticated
	}
	user, err := g.users.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Warn("session token references unknown user", zap.Uint("user_id", userID))
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ResolveRequest reads the session cookie from r and resolves it.
func (g *Gate) ResolveRequest(r *http.Request) (*store.User, error) {
	if r == nil {
		return nil, ErrUnauthenticated
	}
	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie == nil {
		return nil, ErrUnauthenticated
	}
	return g.Resolve(r.Context(), cookie.Value)
}
