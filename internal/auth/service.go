// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/repository"
	"github.com/reservd/reservd/pkg/errutil"
)

// DefaultMinPasswordLength is the shortest password Register accepts unless
// configured otherwise.
const DefaultMinPasswordLength = 8

// MaxPasswordLength bounds the work a single hash can cost.
const MaxPasswordLength = 1024

// passwordLimiter is implemented by hashers that accept shorter input than
// MaxPasswordLength.
type passwordLimiter interface {
	MaxPasswordLength() int
}

// Service provides registration, login, and identity lookup.
type Service struct {
	users          UserStore
	hasher         PasswordHasher
	logger         *slog.Logger
	minPasswordLen int
	maxPasswordLen int

	// dummyHash is verified against when the e-mail is unknown so that the
	// response time does not reveal whether an account exists.
	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMinPasswordLength sets the shortest password Register accepts.
func WithMinPasswordLength(n int) ServiceOption {
	return func(s *Service) { s.minPasswordLen = n }
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a Service.
func NewService(users UserStore, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	s := &Service{
		users:          users,
		hasher:         hasher,
		logger:         slog.Default(),
		minPasswordLen: DefaultMinPasswordLength,
		maxPasswordLen: MaxPasswordLength,
	}
	if l, ok := hasher.(passwordLimiter); ok && l.MaxPasswordLength() < s.maxPasswordLen {
		s.maxPasswordLen = l.MaxPasswordLength()
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return s, nil
}

// Register creates a user for email and password and returns its Identity.
func (s *Service) Register(ctx context.Context, email, password string) (Identity, error) {
	if err := ValidateEmail(email); err != nil {
		return Identity{}, err
	}
	if len(password) < s.minPasswordLen {
		return Identity{}, oops.Code(apperr.CodeInvalidArgument).
			With("min", s.minPasswordLen).
			Errorf("password must be at least %d characters", s.minPasswordLen)
	}
	if len(password) > s.maxPasswordLen {
		return Identity{}, oops.Code(apperr.CodeInvalidArgument).
			With("max", s.maxPasswordLen).
			Errorf("password must be at most %d bytes", s.maxPasswordLen)
	}

	email = NormalizeEmail(email)
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return Identity{}, oops.With("operation", "check existing user").Wrap(err)
	}
	if existing.IsFound() {
		return Identity{}, oops.Code(apperr.CodeConflict).
			With("email", email).
			Wrap(repository.ErrConflict)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Identity{}, oops.With("operation", "hash password").Wrap(err)
	}

	// The store's unique index still guards the window between the check
	// above and this insert.
	user, err := s.users.Create(ctx, User{Email: email, PasswordHash: hash})
	if err != nil {
		return Identity{}, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user.Identity(), nil
}

// Login checks email and password and returns the user's Identity. Every
// credential failure is the same UNAUTHORIZED error.
func (s *Service) Login(ctx context.Context, email, password string) (Identity, error) {
	res, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return Identity{}, oops.With("operation", "find user by email").Wrap(err)
	}

	user, found := res.Get()
	target := user.PasswordHash
	if !found {
		target = s.dummy()
	}

	// Verification runs whether or not the user exists.
	valid, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil && found {
		errutil.LogWarn(ctx, s.logger, "stored password digest is unreadable", verifyErr,
			"user_id", user.ID.String())
	}
	if !found || verifyErr != nil || !valid {
		return Identity{}, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}
	return user.Identity(), nil
}

// GetIdentity returns the Identity of the user with id.
func (s *Service) GetIdentity(ctx context.Context, id ulid.ULID) (Identity, error) {
	res, err := s.users.FindByID(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	user, err := res.Require()
	if err != nil {
		return Identity{}, oops.With("user_id", id.String()).Wrap(err)
	}
	return user.Identity(), nil
}

// upgradeHash re-hashes password with the current configuration. Failure
// leaves the old digest in place; login has already succeeded.
func (s *Service) upgradeHash(ctx context.Context, id ulid.ULID, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, id, hash)
	}
	if err != nil {
		errutil.LogWarn(ctx, s.logger, "password digest upgrade failed", err, "user_id", id.String())
		return
	}
	s.logger.InfoContext(ctx, "password digest upgraded", "user_id", id.String())
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("reservd-dummy-password")
		if err != nil {
			errutil.LogWarn(context.Background(), s.logger, "dummy digest unavailable", err)
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func invalidCredentials() error {
	return oops.Code(apperr.CodeUnauthorized).Errorf("invalid credentials")
}
