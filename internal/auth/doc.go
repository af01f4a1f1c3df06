// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package auth owns user credentials and identity resolution.
//
// # Domain Types
//
// A User is the stored credential record; it never leaves this package's
// callers in that form. Every representation that crosses a process or
// request boundary is an Identity, the redacted projection returned by
// User.Identity.
//
// # Services
//
//   - Service - registration, login, and identity lookup
//   - Authenticator - resolves a bearer token to the Identity it names
//
// Both are built with constructors that validate their dependencies.
// Persistence goes through UserStore, which RepositoryUserStore implements
// over any repository.Repository[User].
package auth
