package hierarchy_test

import (
	"context"
	"testing"

	"github.com/bareos/bvfs/internal/catalog"
	"github.com/bareos/bvfs/internal/catalogtest"
	"github.com/bareos/bvfs/internal/hierarchy"
	"github.com/bareos/bvfs/internal/pathcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUpdateCacheScenarioS1 is spec scenario S1: a single-job hierarchy
// build over /a/b/x, /a/b/y must populate exactly the two ancestor
// edges and mark the job HasCache=1.
func TestUpdateCacheScenarioS1(t *testing.T) {
	gw := catalogtest.TwoJobCorpus(t)
	ctx := context.Background()
	b := hierarchy.New(gw)

	status, err := b.UpdateCache(ctx, 1, pathcache.New())
	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatusOK, status)

	root := catalogtest.PathID(t, gw, "/")
	a := catalogtest.PathID(t, gw, "/a/")
	ab := catalogtest.PathID(t, gw, "/a/b/")

	edges := map[uint64]uint64{}
	err = gw.Query(ctx, "SELECT PathId, PPathId FROM PathHierarchy", func(r catalog.Row) error {
		var pid, ppid uint64
		if err := r.Scan(&pid, &ppid); err != nil {
			return err
		}
		edges[pid] = ppid
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]uint64{ab: a, a: root}, edges)

	visible := visiblePaths(t, gw, 1)
	assert.ElementsMatch(t, []uint64{root, a, ab}, visible)

	var hasCache int
	err = gw.Query(ctx, "SELECT HasCache FROM Job WHERE JobId = 1", func(r catalog.Row) error {
		return r.Scan(&hasCache)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hasCache)
}

// TestUpdateCacheAlreadyDoneIsNoOp covers §8.2: a second call on an
// already-cached job returns OK and leaves the job at HasCache=1.
func TestUpdateCacheAlreadyDoneIsNoOp(t *testing.T) {
	gw := catalogtest.TwoJobCorpus(t)
	ctx := context.Background()
	b := hierarchy.New(gw)

	_, err := b.UpdateCache(ctx, 1, pathcache.New())
	require.NoError(t, err)

	status, err := b.UpdateCache(ctx, 1, pathcache.New())
	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatusOK, status)

	var hasCache int
	err = gw.Query(ctx, "SELECT HasCache FROM Job WHERE JobId = 1", func(r catalog.Row) error {
		return r.Scan(&hasCache)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hasCache)
}

// TestBulkUpdatePurgesOrphanVisibility covers I5: after a bulk update,
// PathVisibility must not contain rows for a deleted job.
func TestBulkUpdatePurgesOrphanVisibility(t *testing.T) {
	gw := catalogtest.TwoJobCorpus(t)
	ctx := context.Background()
	b := hierarchy.New(gw)

	require.NoError(t, b.BulkUpdate(ctx, []uint64{1, 2}))

	_, err := gw.Execute(ctx, "DELETE FROM Job WHERE JobId = 2")
	require.NoError(t, err)

	require.NoError(t, b.BulkUpdate(ctx, []uint64{1}))

	var orphanCount int
	err = gw.Query(ctx, "SELECT COUNT(*) FROM PathVisibility WHERE JobId = 2", func(r catalog.Row) error {
		return r.Scan(&orphanCount)
	})
	require.NoError(t, err)
	assert.Zero(t, orphanCount)
}

// TestClearCacheResetsEverything covers §4.3.5 and the postcondition in
// §8.1: after clearCache, PathHierarchy and PathVisibility are empty and
// every job has HasCache=0.
func TestClearCacheResetsEverything(t *testing.T) {
	gw := catalogtest.TwoJobCorpus(t)
	ctx := context.Background()
	b := hierarchy.New(gw)

	require.NoError(t, b.BulkUpdate(ctx, []uint64{1, 2}))
	require.NoError(t, b.ClearCache(ctx))

	var count int
	require.NoError(t, gw.Query(ctx, "SELECT COUNT(*) FROM PathHierarchy", func(r catalog.Row) error {
		return r.Scan(&count)
	}))
	assert.Zero(t, count)

	require.NoError(t, gw.Query(ctx, "SELECT COUNT(*) FROM PathVisibility", func(r catalog.Row) error {
		return r.Scan(&count)
	}))
	assert.Zero(t, count)

	require.NoError(t, gw.Query(ctx, "SELECT COUNT(*) FROM Job WHERE HasCache != 0", func(r catalog.Row) error {
		return r.Scan(&count)
	}))
	assert.Zero(t, count)
}

func visiblePaths(t *testing.T, gw *catalog.SQLiteGateway, jobID int) []uint64 {
	t.Helper()
	var out []uint64
	err := gw.Query(context.Background(), "SELECT PathId FROM PathVisibility WHERE JobId = ?", func(r catalog.Row) error {
		var id uint64
		if err := r.Scan(&id); err != nil {
			return err
		}
		out = append(out, id)
		return nil
	}, jobID)
	require.NoError(t, err)
	return out
}
