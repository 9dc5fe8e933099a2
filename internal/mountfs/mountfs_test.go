package mountfs_test

import (
	"context"
	"os"
	"testing"

	"github.com/bareos/bvfs/internal/browser"
	"github.com/bareos/bvfs/internal/catalogtest"
	"github.com/bareos/bvfs/internal/hierarchy"
	"github.com/bareos/bvfs/internal/mountfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFS(t *testing.T) *mountfs.SessionFS {
	t.Helper()
	gw := catalogtest.TwoJobCorpus(t)
	ctx := context.Background()

	b := hierarchy.New(gw)
	require.NoError(t, b.BulkUpdate(ctx, []uint64{1, 2}))

	sess := browser.NewSession(gw)
	require.NoError(t, sess.SetJobIDs("1,2"))
	ok, err := sess.ChDir(ctx, "/")
	require.NoError(t, err)
	require.True(t, ok)

	return mountfs.New(ctx, sess)
}

func TestReadDirListsTopLevelEntry(t *testing.T) {
	fs := buildFS(t)

	infos, err := fs.ReadDir("/")
	require.NoError(t, err)

	var names []string
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	assert.Contains(t, names, "a")
}

func TestReadDirDescendsIntoSubdirectory(t *testing.T) {
	fs := buildFS(t)

	infos, err := fs.ReadDir("/a")
	require.NoError(t, err)

	var names []string
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	assert.Contains(t, names, "b")
	assert.Contains(t, names, "c")
}

func TestReadDirReturnsFilesAtLeaf(t *testing.T) {
	fs := buildFS(t)

	infos, err := fs.ReadDir("/a/b")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, fi := range infos {
		names[fi.Name()] = true
	}
	assert.True(t, names["x"])
	assert.True(t, names["y"])
}

func TestOpenReturnsMarkerContentNotRealBytes(t *testing.T) {
	fs := buildFS(t)

	f, err := fs.Open("/a/b/x")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 64)
	n, err := f.Read(buf)
	require.True(t, err == nil || n > 0)
	assert.Contains(t, string(buf[:n]), "lstat-x")
}

func TestOpenOnDirectoryFails(t *testing.T) {
	fs := buildFS(t)

	_, err := fs.Open("/a/b")
	assert.Error(t, err)
}

func TestLstatUnknownPathReturnsNotExist(t *testing.T) {
	fs := buildFS(t)

	_, err := fs.Lstat("/does/not/exist")
	require.Error(t, err)
	pathErr, ok := err.(*os.PathError)
	require.True(t, ok)
	assert.ErrorIs(t, pathErr.Err, os.ErrNotExist)
}

func TestWriteOperationsAreReadOnly(t *testing.T) {
	fs := buildFS(t)

	_, err := fs.Create("/a/newfile")
	assert.Error(t, err)

	err = fs.MkdirAll("/a/newdir", 0o755)
	assert.Error(t, err)

	err = fs.Remove("/a/b/x")
	assert.Error(t, err)
}

func TestLstatReportsDirectoryMode(t *testing.T) {
	fs := buildFS(t)

	fi, err := fs.Lstat("/a/b")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}
