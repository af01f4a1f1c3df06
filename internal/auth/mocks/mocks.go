// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/repository"
	"github.com/reservd/reservd/internal/token"
)

// testingT is what the constructors need from *testing.T.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserStore is a mock of auth.UserStore.
type MockUserStore struct {
	mock.Mock
}

// NewMockUserStore creates a MockUserStore whose expectations are asserted
// when the test ends.
func NewMockUserStore(t testingT) *MockUserStore {
	m := &MockUserStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create provides a mock function.
func (m *MockUserStore) Create(ctx context.Context, user auth.User) (auth.User, error) {
	ret := m.Called(ctx, user)
	if fn, ok := ret.Get(0).(func(context.Context, auth.User) (auth.User, error)); ok {
		return fn(ctx, user)
	}
	return ret.Get(0).(auth.User), ret.Error(1)
}

// FindByEmail provides a mock function.
func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (repository.Result[auth.User], error) {
	ret := m.Called(ctx, email)
	return ret.Get(0).(repository.Result[auth.User]), ret.Error(1)
}

// FindByID provides a mock function.
func (m *MockUserStore) FindByID(ctx context.Context, id ulid.ULID) (repository.Result[auth.User], error) {
	ret := m.Called(ctx, id)
	return ret.Get(0).(repository.Result[auth.User]), ret.Error(1)
}

// UpdatePasswordHash provides a mock function.
func (m *MockUserStore) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	ret := m.Called(ctx, id, hash)
	return ret.Error(0)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash provides a mock function.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

// Verify provides a mock function.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	ret := m.Called(password, hash)
	return ret.Bool(0), ret.Error(1)
}

// NeedsUpgrade provides a mock function.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	ret := m.Called(hash)
	return ret.Bool(0)
}

// MockTokenParser is a mock of auth.TokenParser.
type MockTokenParser struct {
	mock.Mock
}

// NewMockTokenParser creates a MockTokenParser.
func NewMockTokenParser(t testingT) *MockTokenParser {
	m := &MockTokenParser{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Parse provides a mock function.
func (m *MockTokenParser) Parse(ctx context.Context, tok string) (token.Claims, error) {
	ret := m.Called(ctx, tok)
	return ret.Get(0).(token.Claims), ret.Error(1)
}

var (
	_ auth.UserStore      = (*MockUserStore)(nil)
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
	_ auth.TokenParser    = (*MockTokenParser)(nil)
)
