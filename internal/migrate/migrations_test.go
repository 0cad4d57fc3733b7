package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelboard/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	v, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	applied, err := Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_catalog.sql", "0002_access.sql", "0003_gantt.sql"}, applied)

	applied, err = Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, applied)

	v, err = Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	for _, table := range []string{"companies", "projects", "users", "api_keys", "events", "gantt_snapshots"} {
		var n int
		require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}
