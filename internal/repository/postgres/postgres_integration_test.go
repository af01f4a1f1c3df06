// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/reservd/reservd/internal/repository"
	"github.com/reservd/reservd/internal/repository/postgres"
	"github.com/reservd/reservd/internal/repository/repositorytest"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:18-alpine",
		tcpostgres.WithDatabase("reservd_test"),
		tcpostgres.WithUsername("reservd"),
		tcpostgres.WithPassword("reservd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	testPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestRepository_ContractAgainstPostgres(t *testing.T) {
	repositorytest.Run(t, func(t *testing.T) repository.Repository[repositorytest.Widget] {
		ctx := context.Background()
		_, err := testPool.Exec(ctx, `DROP TABLE IF EXISTS widgets`)
		require.NoError(t, err)
		_, err = testPool.Exec(ctx, repositorytest.CreateTableSQL)
		require.NoError(t, err)
		return postgres.New(testPool, repositorytest.WidgetSchema())
	})
}
