// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package auth_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservd/reservd/internal/auth"
)

func TestUser_NeverSerializesHash(t *testing.T) {
	u := auth.User{ID: ulid.Make(), Email: "a@x.com", PasswordHash: "$argon2id$secret"}
	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "argon2id")
	assert.NotContains(t, string(b), "password")
}

func TestUser_Identity(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u := auth.User{ID: ulid.Make(), Email: "a@x.com", PasswordHash: "h", CreatedAt: created}

	got := u.Identity()
	assert.Equal(t, u.ID, got.UserID)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, created, got.CreatedAt)
}

func TestValidateEmail(t *testing.T) {
	for _, ok := range []string{"a@x.com", " A@X.COM ", "first.last+tag@example.co.uk"} {
		assert.NoError(t, auth.ValidateEmail(ok), ok)
	}
	for _, bad := range []string{"", "   ", "no-at-sign", "a@", "Bob <a@x.com>"} {
		assert.Error(t, auth.ValidateEmail(bad), bad)
	}
}

func TestUserCodec_RoundTripsThroughFields(t *testing.T) {
	u := auth.User{
		ID:           ulid.Make(),
		Email:        "a@x.com",
		PasswordHash: "h",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	codec := auth.UserCodec{}
	got, err := codec.FromFields(codec.Fields(u))
	require.NoError(t, err)
	assert.Equal(t, u, got)

	assert.Empty(t, codec.Fields(auth.User{})["id"], "zero id is left for the repository to assign")

	_, err = codec.FromFields(map[string]any{"id": "nope"})
	assert.Error(t, err)
}
