// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package repositorytest provides a fixture entity and a behavioural suite
// that every repository.Repository implementation must pass.
package repositorytest

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/repository"
	"github.com/reservd/reservd/pkg/errutil"
)

// Widget is a minimal entity with one case-insensitive unique column.
type Widget struct {
	ID        string
	Name      string
	Owner     string
	Count     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WidgetCodec converts Widgets to and from column maps.
type WidgetCodec struct{}

// Fields implements repository.Codec.
func (WidgetCodec) Fields(w Widget) map[string]any {
	return map[string]any{
		"id":         w.ID,
		"name":       w.Name,
		"owner":      w.Owner,
		"count":      w.Count,
		"created_at": w.CreatedAt,
		"updated_at": w.UpdatedAt,
	}
}

// FromFields implements repository.Codec.
func (WidgetCodec) FromFields(f map[string]any) (Widget, error) {
	w := Widget{}
	w.ID, _ = f["id"].(string)
	w.Name, _ = f["name"].(string)
	w.Owner, _ = f["owner"].(string)
	switch n := f["count"].(type) {
	case int64:
		w.Count = n
	case int32:
		w.Count = int64(n)
	case int:
		w.Count = int64(n)
	}
	w.CreatedAt, _ = f["created_at"].(time.Time)
	w.UpdatedAt, _ = f["updated_at"].(time.Time)
	return w, nil
}

// WidgetSchema is the schema of the widgets table used by tests.
func WidgetSchema() repository.Schema[Widget] {
	return repository.Schema[Widget]{
		Table:           "widgets",
		Columns:         []string{"id", "name", "owner", "count", "created_at", "updated_at"},
		Unique:          []string{"name"},
		CaseInsensitive: []string{"name"},
		Codec:           WidgetCodec{},
	}
}

// CreateTableSQL creates the widgets table in PostgreSQL.
const CreateTableSQL = `
CREATE TABLE IF NOT EXISTS widgets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	owner      TEXT NOT NULL,
	count      BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// Run exercises repo against the repository contract. newRepo must return
// an empty repository each time it is called.
func Run(t *testing.T, newRepo func(t *testing.T) repository.Repository[Widget]) {
	t.Helper()
	ctx := context.Background()

	t.Run("create assigns id and timestamps", func(t *testing.T) {
		repo := newRepo(t)
		got, err := repo.Create(ctx, Widget{Name: "Sprocket", Owner: "u1"})
		require.NoError(t, err)

		_, err = ulid.Parse(got.ID)
		require.NoError(t, err, "id should be a ULID")
		assert.Equal(t, "sprocket", got.Name, "case-insensitive columns are normalized")
		assert.False(t, got.CreatedAt.IsZero())
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("create keeps caller id", func(t *testing.T) {
		repo := newRepo(t)
		id := ulid.Make().String()
		got, err := repo.Create(ctx, Widget{ID: id, Name: "gear", Owner: "u1"})
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	})

	t.Run("duplicate unique column conflicts and keeps first", func(t *testing.T) {
		repo := newRepo(t)
		first, err := repo.Create(ctx, Widget{Name: "gear", Owner: "u1"})
		require.NoError(t, err)

		_, err = repo.Create(ctx, Widget{Name: "  GEAR ", Owner: "u2"})
		require.Error(t, err)
		require.ErrorIs(t, err, repository.ErrConflict)
		errutil.AssertErrorCode(t, err, apperr.CodeConflict)

		res, err := repo.FindOne(ctx, repository.Filter{"name": "Gear"})
		require.NoError(t, err)
		got, ok := res.Get()
		require.True(t, ok)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, "u1", got.Owner)
	})

	t.Run("find one miss is not an error", func(t *testing.T) {
		repo := newRepo(t)
		res, err := repo.FindOne(ctx, repository.Filter{"name": "absent"})
		require.NoError(t, err)
		assert.False(t, res.IsFound())

		_, err = res.Require()
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("find returns matches ordered by id", func(t *testing.T) {
		repo := newRepo(t)
		a, err := repo.Create(ctx, Widget{ID: "01A", Name: "a", Owner: "u1"})
		require.NoError(t, err)
		_, err = repo.Create(ctx, Widget{ID: "01B", Name: "b", Owner: "u2"})
		require.NoError(t, err)
		c, err := repo.Create(ctx, Widget{ID: "01C", Name: "c", Owner: "u1"})
		require.NoError(t, err)

		got, err := repo.Find(ctx, repository.Filter{"owner": "u1"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, a.ID, got[0].ID)
		assert.Equal(t, c.ID, got[1].ID)

		all, err := repo.Find(ctx, repository.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := repo.Find(ctx, repository.Filter{"owner": "nobody"})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("update patches first match", func(t *testing.T) {
		repo := newRepo(t)
		w, err := repo.Create(ctx, Widget{Name: "gear", Owner: "u1", Count: 1})
		require.NoError(t, err)

		res, err := repo.FindOneAndUpdate(ctx, repository.Filter{"id": w.ID}, repository.Patch{"count": int64(5)})
		require.NoError(t, err)
		got, ok := res.Get()
		require.True(t, ok)
		assert.Equal(t, int64(5), got.Count)
		assert.Equal(t, "u1", got.Owner)
		assert.False(t, got.UpdatedAt.Before(w.UpdatedAt))

		res, err = repo.FindOneAndUpdate(ctx, repository.Filter{"id": "missing"}, repository.Patch{"count": int64(1)})
		require.NoError(t, err)
		assert.False(t, res.IsFound())
	})

	t.Run("update into a taken unique value conflicts", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, Widget{Name: "gear", Owner: "u1"})
		require.NoError(t, err)
		w, err := repo.Create(ctx, Widget{Name: "cog", Owner: "u1"})
		require.NoError(t, err)

		_, err = repo.FindOneAndUpdate(ctx, repository.Filter{"id": w.ID}, repository.Patch{"name": "GEAR"})
		require.ErrorIs(t, err, repository.ErrConflict)
	})

	t.Run("delete returns removed document", func(t *testing.T) {
		repo := newRepo(t)
		w, err := repo.Create(ctx, Widget{Name: "gear", Owner: "u1"})
		require.NoError(t, err)

		res, err := repo.FindOneAndDelete(ctx, repository.Filter{"id": w.ID})
		require.NoError(t, err)
		got, ok := res.Get()
		require.True(t, ok)
		assert.Equal(t, w.ID, got.ID)

		res, err = repo.FindOne(ctx, repository.Filter{"id": w.ID})
		require.NoError(t, err)
		assert.False(t, res.IsFound())

		res, err = repo.FindOneAndDelete(ctx, repository.Filter{"id": w.ID})
		require.NoError(t, err)
		assert.False(t, res.IsFound())
	})

	t.Run("unknown column is rejected", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindOne(ctx, repository.Filter{"colour": "red"})
		require.ErrorIs(t, err, repository.ErrInvalidField)

		_, err = repo.Find(ctx, repository.Filter{"colour": "red"})
		require.ErrorIs(t, err, repository.ErrInvalidField)

		_, err = repo.FindOneAndUpdate(ctx, repository.Filter{}, repository.Patch{"colour": "red"})
		require.ErrorIs(t, err, repository.ErrInvalidField)
	})
}
