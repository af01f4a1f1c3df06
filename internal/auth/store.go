// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package auth

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/repository"
)

// UserStore persists users. Lookups report absence through the Result, not
// the error.
type UserStore interface {
	// Create stores a new user. A taken e-mail fails with CONFLICT.
	Create(ctx context.Context, user User) (User, error)

	// FindByEmail looks a user up by e-mail, ignoring case.
	FindByEmail(ctx context.Context, email string) (repository.Result[User], error)

	// FindByID looks a user up by id.
	FindByID(ctx context.Context, id ulid.ULID) (repository.Result[User], error)

	// UpdatePasswordHash replaces the stored digest for id.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error
}

// RepositoryUserStore implements UserStore over a generic repository.
type RepositoryUserStore struct {
	repo repository.Repository[User]
}

// NewRepositoryUserStore creates a RepositoryUserStore.
func NewRepositoryUserStore(repo repository.Repository[User]) *RepositoryUserStore {
	return &RepositoryUserStore{repo: repo}
}

// Create stores a new user.
func (s *RepositoryUserStore) Create(ctx context.Context, user User) (User, error) {
	user.Email = NormalizeEmail(user.Email)
	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return User{}, oops.With("operation", "create user").With("email", user.Email).Wrap(err)
	}
	return created, nil
}

// FindByEmail looks a user up by e-mail.
func (s *RepositoryUserStore) FindByEmail(ctx context.Context, email string) (repository.Result[User], error) {
	res, err := s.repo.FindOne(ctx, repository.Filter{"email": NormalizeEmail(email)})
	if err != nil {
		return res, oops.With("operation", "find user by email").Wrap(err)
	}
	return res, nil
}

// FindByID looks a user up by id.
func (s *RepositoryUserStore) FindByID(ctx context.Context, id ulid.ULID) (repository.Result[User], error) {
	res, err := s.repo.FindOne(ctx, repository.Filter{"id": id.String()})
	if err != nil {
		return res, oops.With("operation", "find user by id").With("id", id.String()).Wrap(err)
	}
	return res, nil
}

// UpdatePasswordHash replaces the stored digest for id.
func (s *RepositoryUserStore) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	res, err := s.repo.FindOneAndUpdate(ctx,
		repository.Filter{"id": id.String()},
		repository.Patch{"password_hash": hash})
	if err != nil {
		return oops.With("operation", "update password hash").With("id", id.String()).Wrap(err)
	}
	if _, err := res.Require(); err != nil {
		return oops.With("id", id.String()).Wrap(err)
	}
	return nil
}

var _ UserStore = (*RepositoryUserStore)(nil)
