package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/onsync/onsync/internal/platform/httpx"
	"github.com/onsync/onsync/internal/rbac"
	"github.com/onsync/onsync/internal/session"
	"github.com/onsync/onsync/internal/shared"
)

// Service drives login, signup, logout and refresh against the
// authentication API and publishes the outcome to the session store. A
// failed operation never changes the store.
type Service struct {
	repo     Repository
	store    *session.Store
	tokens   session.Persister
	logger   *slog.Logger
	validate *validator.Validate
	refresh  singleflight.Group
}

// NewService constructs a new Service. tokens holds the API token under
// session.KeyToken; it is usually the store's own persister.
func NewService(repo Repository, store *session.Store, tokens session.Persister, logger *slog.Logger) *Service {
	if tokens == nil {
		tokens = session.NewMemoryPersister()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:     repo,
		store:    store,
		tokens:   tokens,
		logger:   logger,
		validate: validator.New(),
	}
}

// Validator exposes the payload validator so handlers share its cache.
func (s *Service) Validator() *validator.Validate { return s.validate }

// Login authenticates, then loads the capability flags. When the profile
// call fails the identity is still published, without a permission set.
func (s *Service) Login(ctx context.Context, creds Credentials) (*rbac.Identity, error) {
	if err := s.validate.Struct(creds); err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	result, err := s.repo.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, result.Token, result.User.identity())
}

// Signup creates an account and signs its first user in.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*rbac.Identity, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	result, err := s.repo.Signup(ctx, req)
	if err != nil {
		return nil, err
	}
	identity := result.User.identity()
	identity.AccountID = result.Account.ID
	identity.AccountName = result.Account.Name
	return s.establish(ctx, result.Token, identity)
}

func (s *Service) establish(ctx context.Context, token string, identity *rbac.Identity) (*rbac.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("auth: %w: empty token", shared.ErrUpstream)
	}
	if profile, err := s.repo.Me(ctx, token); err != nil {
		s.logger.Warn("load permissions", slog.Int64("user_id", identity.ID), slog.Any("error", err))
	} else {
		perms := profile.PermissionSet
		identity.Permissions = &perms
	}
	if err := s.validate.Struct(identity); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrInvalidIdentity, err)
	}
	if err := s.tokens.Save(ctx, map[string][]byte{session.KeyToken: []byte(token)}); err != nil {
		s.logger.Warn("persist token", slog.Any("error", err))
	}
	if err := s.store.Set(ctx, identity); err != nil {
		return nil, err
	}
	s.logger.Info("signed in", slog.Int64("user_id", identity.ID), slog.String("role", string(identity.Role)))
	return s.store.Get(), nil
}

// Logout revokes the token remotely when possible and always clears the
// local session.
func (s *Service) Logout(ctx context.Context) error {
	token, err := s.Token(ctx)
	if err != nil {
		s.logger.Warn("load token", slog.Any("error", err))
	}
	if token != "" {
		if err := s.repo.Logout(ctx, token); err != nil {
			s.logger.Warn("remote logout", slog.Any("error", err))
		}
	}
	if err := s.tokens.Delete(ctx, session.KeyToken); err != nil {
		s.logger.Warn("delete token", slog.Any("error", err))
	}
	return s.store.Clear(ctx)
}

// Refresh reloads the current user and capability flags. Concurrent calls
// share one request.
func (s *Service) Refresh(ctx context.Context) (*rbac.Identity, error) {
	v, err, _ := s.refresh.Do("refresh", func() (any, error) {
		token, err := s.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, shared.ErrUnauthenticated
		}
		profile, err := s.repo.Me(ctx, token)
		if err != nil {
			return nil, err
		}
		identity := profile.identity()
		if err := s.store.Set(ctx, identity); err != nil {
			return nil, err
		}
		return s.store.Get(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*rbac.Identity), nil
}

// Token returns the stored API token, or "" when signed out.
func (s *Service) Token(ctx context.Context) (string, error) {
	values, err := s.tokens.Load(ctx, session.KeyToken)
	if err != nil {
		if errors.Is(err, session.ErrMalformed) {
			return "", nil
		}
		return "", fmt.Errorf("auth: load token: %w", err)
	}
	return string(values[session.KeyToken]), nil
}
