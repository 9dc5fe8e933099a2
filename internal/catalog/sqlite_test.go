package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestGateway(t *testing.T) *SQLiteGateway {
	t.Helper()
	gw, err := Open(context.Background(), "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func TestOpenCreatesSchema(t *testing.T) {
	gw := openTestGateway(t)
	_, err := gw.Execute(context.Background(),
		"INSERT INTO Path (PathId, Path) VALUES (1, '/')")
	assert.NoError(t, err)
}

func TestExecuteAndQueryRoundtrip(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	n, err := gw.Execute(ctx, "INSERT INTO Path (PathId, Path) VALUES (?, ?)", 1, "/")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var got string
	err = gw.Query(ctx, "SELECT Path FROM Path WHERE PathId = ?", func(r Row) error {
		return r.Scan(&got)
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "/", got)
}

func TestBeginTxCommitAndRollback(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	tx, err := gw.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.Execute(ctx, "INSERT INTO Path (PathId, Path) VALUES (1, '/')")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	// Rollback after Commit must be a safe no-op.
	assert.NoError(t, tx.Rollback())

	tx2, err := gw.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx2.Execute(ctx, "INSERT INTO Path (PathId, Path) VALUES (2, '/a/')")
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback())

	var count int
	err = gw.Query(ctx, "SELECT COUNT(*) FROM Path", func(r Row) error {
		return r.Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "rolled-back insert must not be visible")
}

func TestTemplateUnknownName(t *testing.T) {
	gw := openTestGateway(t)
	_, err := gw.Template("does-not-exist", nil)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestTemplateRendersBoundFragments(t *testing.T) {
	gw := openTestGateway(t)
	q, err := gw.Template(TmplLsSubDirs, map[string]any{
		"PPathId": 1,
		"JobIds":  "1,2,3",
		"Pattern": false,
		"Limit":   10,
		"Offset":  0,
	})
	require.NoError(t, err)
	assert.Contains(t, q, "PathHierarchy.PPathId = 1")
	assert.Contains(t, q, "JobId IN (1,2,3)")
	assert.NotContains(t, q, "LIKE")
}

func TestEscapeDoublesQuotes(t *testing.T) {
	gw := openTestGateway(t)
	assert.Equal(t, `'o''brien'`, gw.Escape("o'brien"))
}

func TestBackendKind(t *testing.T) {
	gw := openTestGateway(t)
	assert.Equal(t, BackendSQLite, gw.BackendKind())
	assert.Equal(t, "sqlite", gw.BackendKind().String())
}
