// Package catalogtest provides an in-memory SQLite catalog pre-loaded
// with the two-job corpus used throughout the component tests (spec
// §8.4): a full backup (Job 1: /a/b/x, /a/b/y) and an incremental (Job
// 2: /a/b/x new version, /a/c/z).
package catalogtest

import (
	"context"
	"testing"

	"github.com/bareos/bvfs/internal/catalog"
	"github.com/stretchr/testify/require"
)

// TwoJobCorpus opens a fresh in-memory catalog.Gateway, seeds it with the
// Job/Path/File rows described in spec §8.4, and registers cleanup on
// t. Returned PathIds and FileIds are the ones assigned by SQLite
// AUTOINCREMENT-free ROWID allocation (i.e. insertion order, starting
// at 1), which every test scenario in this module assumes.
func TwoJobCorpus(t *testing.T) *catalog.SQLiteGateway {
	t.Helper()
	ctx := context.Background()

	gw, err := catalog.Open(ctx, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	paths := []string{"", "/", "/a/", "/a/b/", "/a/c/"}
	for _, p := range paths {
		_, err := gw.Execute(ctx, "INSERT INTO Path (Path) VALUES (?)", p)
		require.NoError(t, err)
	}

	jobs := []struct {
		id         int
		name       string
		jobType    string
		clientName string
		jobTDate   int64
	}{
		{1, "BackupJob", "B", "client-a", 1000},
		{2, "BackupJob", "B", "client-a", 2000},
	}
	for _, j := range jobs {
		_, err := gw.Execute(ctx,
			"INSERT INTO Job (JobId, Name, Type, ClientName, JobTDate, HasCache) VALUES (?, ?, ?, ?, ?, 0)",
			j.id, j.name, j.jobType, j.clientName, j.jobTDate)
		require.NoError(t, err)
	}

	pathID := func(p string) int {
		for i, q := range paths {
			if q == p {
				return i + 1
			}
		}
		t.Fatalf("unknown fixture path %q", p)
		return 0
	}

	files := []struct {
		jobID        int
		fileIndex    int
		path         string
		name         string
		lstat        string
		md5          string
		volumeName   string
		volInChanger int
	}{
		{1, 1, "/a/b/", "x", "lstat-x-v1", "md5-x-v1", "Vol-0001", 1},
		{1, 2, "/a/b/", "y", "lstat-y-v1", "md5-y-v1", "Vol-0001", 1},
		{2, 1, "/a/b/", "x", "lstat-x-v2", "md5-x-v2", "Vol-0002", 0},
		{2, 2, "/a/c/", "z", "lstat-z-v1", "md5-z-v1", "Vol-0002", 0},
	}
	for _, f := range files {
		_, err := gw.Execute(ctx,
			"INSERT INTO File (JobId, PathId, FileIndex, Name, LStat, MD5, VolumeName, VolInChanger) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			f.jobID, pathID(f.path), f.fileIndex, f.name, f.lstat, f.md5, f.volumeName, f.volInChanger)
		require.NoError(t, err)
	}

	return gw
}

// PathID looks up the PathId assigned to path in gw, failing the test if
// it is not present.
func PathID(t *testing.T, gw *catalog.SQLiteGateway, path string) uint64 {
	t.Helper()
	var id uint64
	found := false
	err := gw.Query(context.Background(), "SELECT PathId FROM Path WHERE Path = ?", func(r catalog.Row) error {
		found = true
		return r.Scan(&id)
	}, path)
	require.NoError(t, err)
	require.True(t, found, "path %q not found", path)
	return id
}
