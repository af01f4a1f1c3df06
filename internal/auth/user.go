// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package auth

import (
	"net/mail"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/repository"
)

// MaxEmailLength bounds the stored e-mail address.
const MaxEmailLength = 254

// User is a stored credential record.
type User struct {
	ID           ulid.ULID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the redacted form of a User.
type Identity struct {
	UserID    ulid.ULID `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity projects u onto the fields that may leave the credential store.
func (u User) Identity() Identity {
	return Identity{
		UserID:    u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// NormalizeEmail returns the canonical stored form of an e-mail address.
func NormalizeEmail(email string) string {
	return repository.NormalizeCase(email)
}

// ValidateEmail checks that email is a bare, plausible address.
func ValidateEmail(email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return oops.Code(apperr.CodeInvalidArgument).Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(apperr.CodeInvalidArgument).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code(apperr.CodeInvalidArgument).Errorf("email is not a valid address")
	}
	return nil
}

// UserCodec maps Users onto the users table.
type UserCodec struct{}

// Fields implements repository.Codec.
func (UserCodec) Fields(u User) map[string]any {
	id := ""
	if u.ID != (ulid.ULID{}) {
		id = u.ID.String()
	}
	return map[string]any{
		"id":            id,
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"created_at":    u.CreatedAt,
		"updated_at":    u.UpdatedAt,
	}
}

// FromFields implements repository.Codec.
func (UserCodec) FromFields(f map[string]any) (User, error) {
	idStr, _ := f["id"].(string)
	id, err := ulid.Parse(idStr)
	if err != nil {
		return User{}, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	u := User{ID: id}
	u.Email, _ = f["email"].(string)
	u.PasswordHash, _ = f["password_hash"].(string)
	u.CreatedAt, _ = f["created_at"].(time.Time)
	u.UpdatedAt, _ = f["updated_at"].(time.Time)
	return u, nil
}

// UserSchema describes the users table.
func UserSchema() repository.Schema[User] {
	return repository.Schema[User]{
		Table:           "users",
		Columns:         []string{"id", "email", "password_hash", "created_at", "updated_at"},
		Unique:          []string{"email"},
		CaseInsensitive: []string{"email"},
		Codec:           UserCodec{},
	}
}
