// Package users implements registration and credential checks.
package users

import (
	"context"
	stderrors "errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rankboard/rankboard/internal/app/domain/user"
	"github.com/rankboard/rankboard/internal/app/storage"
	"github.com/rankboard/rankboard/internal/errors"
	"github.com/rankboard/rankboard/internal/logging"
)

// Service manages user accounts.
type Service struct {
	store storage.UserStore
	log   *logging.Logger
}

// NewService creates a user service over store.
func NewService(store storage.UserStore, log *logging.Logger) *Service {
	return &Service{store: store, log: log.Named("users")}
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, username, password string) (user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if email == "" || !strings.Contains(email, "@") {
		return user.User{}, errors.InvalidInput("valid email is required")
	}
	if username == "" {
		return user.User{}, errors.InvalidInput("username is required")
	}
	if len(password) < 8 {
		return user.User{}, errors.InvalidInput("password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return user.User{}, errors.Conflict("email is already registered")
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return user.User{}, errors.Internal("lookup failed", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, errors.Internal("password hash failed", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	})
	if err != nil {
		return user.User{}, errors.Internal("create user failed", err)
	}

	s.log.WithContext(ctx).WithField("user_id", created.ID).Info("user registered")
	return created, nil
}

// Login verifies the credentials and returns the account. A missing account
// and a bad password return the same error.
func (s *Service) Login(ctx context.Context, email, password string) (user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return user.User{}, errors.Unauthorized("invalid email or password")
		}
		return user.User{}, errors.Internal("lookup failed", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return user.User{}, errors.Unauthorized("invalid email or password")
	}
	return u, nil
}

// Get returns the account by id.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return user.User{}, errors.NotFound("user not found")
		}
		return user.User{}, errors.Internal("lookup failed", err)
	}
	return u, nil
}
