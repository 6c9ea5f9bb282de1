package registry_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/netguardpro/netguard/internal/registry"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLatest_LexicographicallyGreatest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := registry.Create(ctx, db, registry.ToolTcpdump, base)
	require.NoError(t, err)
	_, err = registry.Create(ctx, db, registry.ToolTcpdump, base.Add(time.Hour))
	require.NoError(t, err)
	newest, err := registry.Create(ctx, db, registry.ToolTcpdump, base.Add(2*time.Hour))
	require.NoError(t, err)

	latest, err := registry.Latest(ctx, db, registry.ToolTcpdump)
	require.NoError(t, err)
	require.Equal(t, newest, latest)
}

func TestLatest_NoTablesReturnsEmpty(t *testing.T) {
	db := openTestDB(t)
	latest, err := registry.Latest(context.Background(), db, registry.ToolArgus)
	require.NoError(t, err)
	require.Empty(t, latest)
}

func TestList_ExcludesTemplate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, registry.CreateTemplates(ctx, db))

	_, err := registry.Create(ctx, db, registry.ToolP0f, time.Now())
	require.NoError(t, err)

	tables, err := registry.List(ctx, db, registry.ToolP0f)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	for _, name := range tables {
		require.NotContains(t, name, "template")
	}
}

func TestColumnNames_MatchesCreatedSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	table, err := registry.Create(ctx, db, registry.ToolArgus, time.Now())
	require.NoError(t, err)

	cols, err := registry.ColumnNames(registry.ToolArgus)
	require.NoError(t, err)
	require.NotEmpty(t, cols)

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table+" LIMIT 0")
	require.NoError(t, err)
	defer rows.Close()
	actual, err := rows.Columns()
	require.NoError(t, err)

	// actual is id, timestamp, <declared columns>, created_at.
	require.Equal(t, len(cols)+3, len(actual))
	for i, name := range cols {
		require.Equal(t, name, actual[i+2])
	}
}

func TestSuricataTool_NamesAreDistinctPerEventType(t *testing.T) {
	seen := map[registry.Tool]bool{}
	for _, et := range registry.SuricataEventTypes {
		tool := registry.SuricataTool(et)
		require.False(t, seen[tool], "duplicate tool name %s", tool)
		seen[tool] = true
	}
}
