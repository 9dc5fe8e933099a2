package restore_test

import (
	"context"
	"testing"

	"github.com/bareos/bvfs/internal/browser"
	"github.com/bareos/bvfs/internal/catalog"
	"github.com/bareos/bvfs/internal/catalogtest"
	"github.com/bareos/bvfs/internal/hierarchy"
	"github.com/bareos/bvfs/internal/restore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSession(t *testing.T) (*catalog.SQLiteGateway, *browser.Session) {
	t.Helper()
	gw := catalogtest.TwoJobCorpus(t)
	ctx := context.Background()
	require.NoError(t, hierarchy.New(gw).BulkUpdate(ctx, []uint64{1, 2}))
	sess := browser.NewSession(gw)
	require.NoError(t, sess.SetJobIDs("1,2"))
	return gw, sess
}

func rowCount(t *testing.T, gw *catalog.SQLiteGateway, table string) int {
	t.Helper()
	var n int
	err := gw.Query(context.Background(), "SELECT COUNT(*) FROM "+table, func(r catalog.Row) error {
		return r.Scan(&n)
	})
	require.NoError(t, err)
	return n
}

func tableExists(t *testing.T, gw *catalog.SQLiteGateway, table string) bool {
	t.Helper()
	found := false
	err := gw.Query(context.Background(),
		"SELECT 1 FROM sqlite_master WHERE type='table' AND name = ?", func(r catalog.Row) error {
			found = true
			return nil
		}, table)
	require.NoError(t, err)
	return found
}

func TestComputeRestoreListByDirID(t *testing.T) {
	gw, sess := buildSession(t)
	ctx := context.Background()
	dirID := catalogtest.PathID(t, gw, "/a/b/")

	ok, err := restore.ComputeRestoreList(ctx, gw, sess, "", dirIDsCSV(dirID), "", "b21")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, rowCount(t, gw, "b21"), 0)
	assert.False(t, tableExists(t, gw, "btemp1"))
}

func TestComputeRestoreListMostRecentWins(t *testing.T) {
	gw, sess := buildSession(t)
	ctx := context.Background()
	dirID := catalogtest.PathID(t, gw, "/a/b/")

	ok, err := restore.ComputeRestoreList(ctx, gw, sess, "", dirIDsCSV(dirID), "", "b22")
	require.NoError(t, err)
	require.True(t, ok)

	var jobID int
	err = gw.Query(ctx, "SELECT JobId FROM b22 WHERE Name = 'x'", func(r catalog.Row) error {
		return r.Scan(&jobID)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, jobID, "the newer job2 version of x must win over job1's")
}

func TestComputeRestoreListRejectsBadToken(t *testing.T) {
	gw, sess := buildSession(t)
	ctx := context.Background()

	_, err := restore.ComputeRestoreList(ctx, gw, sess, "1", "", "", "not_a_token")
	assert.ErrorIs(t, err, catalog.ErrBadArgument)
}

func TestComputeRestoreListRequiresAtLeastOneList(t *testing.T) {
	gw, sess := buildSession(t)
	ctx := context.Background()

	_, err := restore.ComputeRestoreList(ctx, gw, sess, "", "", "", "b23")
	assert.ErrorIs(t, err, catalog.ErrBadArgument)
}

func TestComputeRestoreListRejectsOddHardlinks(t *testing.T) {
	gw, sess := buildSession(t)
	ctx := context.Background()

	_, err := restore.ComputeRestoreList(ctx, gw, sess, "", "", "1,2,3", "b24")
	assert.ErrorIs(t, err, catalog.ErrBadArgument)
}

func TestComputeRestoreListByHardlinkPair(t *testing.T) {
	gw, sess := buildSession(t)
	ctx := context.Background()

	// Job 1, FileIndex 2 is /a/b/y.
	ok, err := restore.ComputeRestoreList(ctx, gw, sess, "", "", "1,2", "b25")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, rowCount(t, gw, "b25"))

	var name string
	err = gw.Query(ctx, "SELECT Name FROM b25", func(r catalog.Row) error {
		return r.Scan(&name)
	})
	require.NoError(t, err)
	assert.Equal(t, "y", name)
}

func TestDropRestoreListValidatesToken(t *testing.T) {
	gw, _ := buildSession(t)
	ctx := context.Background()

	ok, err := restore.DropRestoreList(ctx, gw, "garbage")
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, catalog.ErrBadArgument)

	ok, err = restore.DropRestoreList(ctx, gw, "b299")
	require.NoError(t, err)
	assert.True(t, ok)
}

func dirIDsCSV(id uint64) string {
	return itoa(id)
}

func itoa(id uint64) string {
	if id == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[i:])
}
