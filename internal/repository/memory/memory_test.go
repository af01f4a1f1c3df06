// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservd/reservd/internal/repository"
	"github.com/reservd/reservd/internal/repository/memory"
	"github.com/reservd/reservd/internal/repository/repositorytest"
)

func TestRepository_Contract(t *testing.T) {
	repositorytest.Run(t, func(_ *testing.T) repository.Repository[repositorytest.Widget] {
		return memory.New(repositorytest.WidgetSchema())
	})
}

func TestRepository_ConcurrentCreateSameNameOneWins(t *testing.T) {
	repo := memory.New(repositorytest.WidgetSchema())
	ctx := context.Background()

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Create(ctx, repositorytest.Widget{Name: "gear", Owner: fmt.Sprintf("u%d", i)})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrConflict)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	all, err := repo.Find(ctx, repository.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepository_ReturnsCopies(t *testing.T) {
	repo := memory.New(repositorytest.WidgetSchema())
	ctx := context.Background()

	w, err := repo.Create(ctx, repositorytest.Widget{Name: "gear", Owner: "u1"})
	require.NoError(t, err)
	w.Owner = "mutated"

	res, err := repo.FindOne(ctx, repository.Filter{"id": w.ID})
	require.NoError(t, err)
	got, ok := res.Get()
	require.True(t, ok)
	assert.Equal(t, "u1", got.Owner)
}
