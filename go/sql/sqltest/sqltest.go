// Package sqltest creates throwaway CockroachDB databases for tests.
package sqltest

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.skia.org/culprit/go/emulators"
)

// NewCockroachDBForTests creates a new temporary CockroachDB database with
// schema applied, and drops it when the test ends. The test is skipped if no
// CockroachDB emulator is configured.
//
// Each test should pass its own databaseName so that a failing test doesn't
// leave a bad state behind for the next one.
func NewCockroachDBForTests(t *testing.T, databaseName, schema string) *pgxpool.Pool {
	host := emulators.RequireEmulator(t, emulators.CockroachDB)
	ctx := context.Background()

	admin, err := pgxpool.Connect(ctx, fmt.Sprintf("postgresql://root@%s/defaultdb?sslmode=disable", host))
	require.NoError(t, err)
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", databaseName))
	require.NoError(t, err)

	db, err := pgxpool.Connect(ctx, fmt.Sprintf("postgresql://root@%s/%s?sslmode=disable", host, databaseName))
	require.NoError(t, err)
	_, err = db.Exec(ctx, schema)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		_, err := admin.Exec(context.Background(), fmt.Sprintf("DROP DATABASE %s CASCADE", databaseName))
		assert.NoError(t, err)
		admin.Close()
	})
	return db
}
