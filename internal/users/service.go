package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/starwise/backend/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrInvalidProfile indicates the provider profile lacks an id or login.
	ErrInvalidProfile     = errors.New("users: invalid profile")
	errMissingStore       = errors.New("users: store is required")
	errMissingAccessToken = errors.New("users: access token is required")
)

const (
	opServiceNew = "users.service.new"
	opUpsert     = "users.upsert"
	opGet        = "users.get"
)

// ServiceError carries a stable machine-readable code and wraps the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Profile is the identity reported by the OAuth provider.
type Profile struct {
	GitHubID  int64
	Username  string
	AvatarURL *string
}

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Store  *store.Store
	Logger *zap.Logger
}

// Service creates users on first login and refreshes their credential afterwards.
type Service struct {
	store  *store.Store
	logger *zap.Logger
}

// NewService validates the configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, logger: logger}, nil
}

// Upsert returns the user for profile, creating it when the provider id is new.
// Existing users get the new access token, and their login and avatar when those changed upstream.
func (s *Service) Upsert(ctx context.Context, profile Profile, accessToken string) (*store.User, error) {
	username := strings.TrimSpace(profile.Username)
	if profile.GitHubID == 0 || username == "" {
		return nil, newServiceError(opUpsert, "invalid_profile", ErrInvalidProfile)
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, newServiceError(opUpsert, "missing_access_token", errMissingAccessToken)
	}

	var user *store.User
	created := false
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		users := tx.Users()
		existing, err := users.FindByGitHubID(ctx, profile.GitHubID)
		if errors.Is(err, store.ErrNotFound) {
			user, err = users.Create(ctx, store.UserCreate{
				GitHubID:    profile.GitHubID,
				Username:    username,
				AvatarURL:   profile.AvatarURL,
				AccessToken: accessToken,
			})
			created = err == nil
			return err
		}
		if err != nil {
			return err
		}

		update := store.UserUpdate{AccessToken: &accessToken}
		if existing.Username != username {
			update.Username = &username
		}
		if profile.AvatarURL != nil && (existing.AvatarURL == nil || *existing.AvatarURL != *profile.AvatarURL) {
			update.AvatarURL = profile.AvatarURL
		}
		user, err = users.Update(ctx, existing, update)
		return err
	})
	if err != nil {
		reason := "store_failure"
		if errors.Is(err, store.ErrConflict) {
			reason = "conflict"
		}
		s.logError(opUpsert, reason, err, zap.Int64("github_id", profile.GitHubID))
		return nil, newServiceError(opUpsert, reason, err)
	}

	if created {
		s.logger.Info("user created", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	}
	return user, nil
}

// Get returns the user with the given internal id.
func (s *Service) Get(ctx context.Context, id uint) (*store.User, error) {
	user, err := s.store.Users().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		s.logError(opGet, "store_failure", err, zap.Uint("user_id", id))
		return nil, newServiceError(opGet, "store_failure", err)
	}
	return user, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}
