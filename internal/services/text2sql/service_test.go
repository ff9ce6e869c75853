package text2sql

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/storage/sqlite"
)

func newTestService(t *testing.T) (*Service, *sqlite.SQLiteDB) {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := sqlite.NewSQLiteDB(filepath.Join(t.TempDir(), "admin.db"), logger, sqlite.MigrateAdmin)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	history := sqlite.NewText2SQLStorage(db, logger)
	return NewService(db.Path(), nil, history, logger), db
}

func TestValidateReadOnly(t *testing.T) {
	valid := []string{
		"SELECT * FROM jobs",
		"  select id, status\n  from jobs  ",
		"SELECT created_at FROM datasets", // created_at must not trip CREATE
	}
	for _, stmt := range valid {
		assert.NoError(t, ValidateReadOnly(stmt), stmt)
	}

	invalid := []string{
		"",
		"DELETE FROM jobs",
		"INSERT INTO jobs VALUES (1)",
		"DROP TABLE jobs",
		"SELECT * FROM jobs; DROP TABLE jobs",
		"WITH x AS (SELECT 1) SELECT * FROM x", // not a SELECT prefix
		"SELECT * FROM jobs WHERE id IN (SELECT id FROM jobs UNION SELECT 1); UPDATE jobs SET status='x'",
	}
	for _, stmt := range invalid {
		err := ValidateReadOnly(stmt)
		require.Error(t, err, stmt)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), stmt)
	}
}

func TestSchemaListsAdminTables(t *testing.T) {
	service, _ := newTestService(t)

	tables, err := service.Schema(context.Background())
	require.NoError(t, err)

	names := make(map[string][]string)
	for _, table := range tables {
		names[table.Name] = table.Columns
	}
	require.Contains(t, names, "jobs")
	require.Contains(t, names, "datasets")
	assert.NotEmpty(t, names["jobs"])
}

func TestExecuteReadOnlyQuery(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	logger := arbor.NewLogger()
	jobs := sqlite.NewJobStorage(db, logger)
	for i := 0; i < 3; i++ {
		_, err := jobs.Create(ctx, "pipeline", "{}")
		require.NoError(t, err)
	}

	result, err := service.Execute(ctx, "SELECT id, status FROM jobs ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "status"}, result.Columns)
	assert.Equal(t, 3, result.RowCount)
	assert.False(t, result.HasMore)
	assert.Equal(t, "queued", result.Rows[0]["status"])

	history := sqlite.NewText2SQLStorage(db, logger)
	entries, err := history.History(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.True(t, entries[0].Executed)
	assert.Equal(t, 3, entries[0].RowCount)
}

func TestExecuteRefusesMutations(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Execute(context.Background(), "DELETE FROM jobs")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestGenerateHeuristicFallback(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	sql, err := service.Generate(ctx, "how many datasets are there")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS count FROM datasets", sql)

	sql, err = service.Generate(ctx, "show me recent alerts")
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM alerts")

	_, err = service.Generate(ctx, "   ")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestCleanGeneratedSQL(t *testing.T) {
	assert.Equal(t, "SELECT 1", cleanGeneratedSQL("```sql\nSELECT 1\n```"))
	assert.Equal(t, "SELECT 1", cleanGeneratedSQL("  SELECT 1  "))
	assert.Equal(t, "SELECT 1", cleanGeneratedSQL("```\nSELECT 1\n```"))
}
