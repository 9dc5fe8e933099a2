// Package hierarchy implements the Hierarchy Builder: the component that
// populates PathHierarchy (the PathId -> parent PathId edges) and
// PathVisibility (which paths a job touched, closed under ancestry) for
// a catalog job, and that owns the per-job HasCache state machine that
// makes the whole process idempotent and safe under concurrent callers.
package hierarchy

import (
	"context"
	"fmt"

	"github.com/bareos/bvfs/internal/catalog"
	"github.com/bareos/bvfs/internal/pathcache"
	"github.com/bareos/bvfs/internal/pathutil"
)

// Status is the outcome of a single-job cache update.
type Status int

const (
	// StatusOK means the job's hierarchy is now (or was already) fully
	// built.
	StatusOK Status = iota
	// StatusInProgress means another builder currently holds
	// HasCache=-1 for this job; the caller should retry later.
	StatusInProgress
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInProgress:
		return "in-progress"
	default:
		return "unknown"
	}
}

// includeBaseFiles selects the BaseFiles-UNION variant of step 6 and of
// the PathVisibility insert template. The repository resolves the
// open question in spec.md §9 by always including BaseFiles support: a
// restore session commonly spans a full job plus the base jobs it
// deduplicated against, and internal/restore already assumes BaseFiles
// rows participate in the same visibility relation as direct File rows.
const includeBaseFiles = true

// Builder implements the per-job and bulk cache-update protocol against
// a catalog.Gateway.
type Builder struct {
	gw catalog.Gateway
}

// New returns a Builder backed by gw.
func New(gw catalog.Gateway) *Builder {
	return &Builder{gw: gw}
}

// UpdateCache runs the 14-step per-job protocol for jobID, using cache
// to skip PathHierarchy probes for path IDs already known to have an
// ancestor edge. cache may be shared across multiple calls (see
// BulkUpdate); the set of "path IDs with a known ancestor edge" only
// grows over time, so reuse is always safe.
func (b *Builder) UpdateCache(ctx context.Context, jobID uint64, cache *pathcache.Cache) (Status, error) {
	b.gw.Lock()
	defer b.gw.Unlock()

	status, err := b.claimJob(ctx, jobID)
	if err != nil || status != StatusOK {
		return status, err
	}

	if err := b.populateDirectVisibility(ctx, jobID); err != nil {
		return StatusOK, err
	}

	unresolved, err := b.collectUnresolvedPaths(ctx, jobID)
	if err != nil {
		return StatusOK, err
	}

	// Step 8-10: the exclusive phase. The Gateway mutex held for the
	// whole call already serializes builders within this process; a
	// real multi-process deployment would additionally need the
	// backend's table-level lock here. SQLite's single-writer-
	// connection policy (see catalog.Open) makes that redundant for
	// this backend, so buildPathChain just runs under the Gateway's
	// own transaction isolation.
	if err := b.buildPathChains(ctx, unresolved, cache); err != nil {
		return StatusOK, err
	}

	if err := b.closeVisibility(ctx, jobID); err != nil {
		return StatusOK, err
	}

	if err := b.markComplete(ctx, jobID); err != nil {
		return StatusOK, err
	}

	return StatusOK, nil
}

// claimJob implements steps 1-5: it observes HasCache and, if 0,
// transitions it to -1 inside a committed transaction so a concurrent
// caller sees the in-progress marker immediately.
func (b *Builder) claimJob(ctx context.Context, jobID uint64) (Status, error) {
	tx, err := b.gw.BeginTx(ctx)
	if err != nil {
		return StatusOK, err
	}
	defer func() { _ = tx.Rollback() }()

	var hasCache int
	err = tx.Query(ctx, "SELECT HasCache FROM Job WHERE JobId = ?", func(r catalog.Row) error {
		return r.Scan(&hasCache)
	}, jobID)
	if err != nil {
		return StatusOK, err
	}

	switch hasCache {
	case 1:
		return StatusOK, tx.Commit()
	case -1:
		return StatusInProgress, tx.Commit()
	}

	if _, err := tx.Execute(ctx, "UPDATE Job SET HasCache = -1 WHERE JobId = ?", jobID); err != nil {
		return StatusOK, err
	}
	return StatusOK, tx.Commit()
}

// populateDirectVisibility implements step 6: seed PathVisibility with
// every PathId directly touched by the job's own File rows, optionally
// unioned with paths reached only through BaseFiles.
func (b *Builder) populateDirectVisibility(ctx context.Context, jobID uint64) error {
	query := "INSERT OR IGNORE INTO PathVisibility (PathId, JobId) " +
		"SELECT DISTINCT PathId, ? FROM File WHERE JobId = ?"
	if includeBaseFiles {
		query += " UNION SELECT DISTINCT File.PathId, ? FROM BaseFiles " +
			"JOIN File ON File.FileId = BaseFiles.FileId WHERE BaseFiles.JobId = ?"
		_, err := b.gw.Execute(ctx, query, jobID, jobID, jobID, jobID)
		return err
	}
	_, err := b.gw.Execute(ctx, query, jobID, jobID)
	return err
}

type unresolvedPath struct {
	pathID uint64
	path   string
}

// collectUnresolvedPaths implements step 7.
func (b *Builder) collectUnresolvedPaths(ctx context.Context, jobID uint64) ([]unresolvedPath, error) {
	var rows []unresolvedPath
	err := b.gw.Query(ctx, `
		SELECT PathVisibility.PathId, Path.Path
		FROM PathVisibility
		JOIN Path ON Path.PathId = PathVisibility.PathId
		LEFT JOIN PathHierarchy ON PathHierarchy.PathId = PathVisibility.PathId
		WHERE PathVisibility.JobId = ? AND PathHierarchy.PathId IS NULL
		ORDER BY Path.Path`, func(r catalog.Row) error {
		var p unresolvedPath
		if err := r.Scan(&p.pathID, &p.path); err != nil {
			return err
		}
		rows = append(rows, p)
		return nil
	}, jobID)
	return rows, err
}

// buildPathChains implements step 9: run buildPathChain for every
// unresolved path collected in step 7.
func (b *Builder) buildPathChains(ctx context.Context, unresolved []unresolvedPath, cache *pathcache.Cache) error {
	for _, u := range unresolved {
		if err := b.buildPathChain(ctx, u.pathID, u.path, cache); err != nil {
			return fmt.Errorf("build path chain for %q: %w", u.path, err)
		}
	}
	return nil
}

// buildPathChain walks from leafPid/leafPath upward per §4.3.2, stopping
// at the first ancestor already known (hot or cold hit) or at the root.
func (b *Builder) buildPathChain(ctx context.Context, leafPid uint64, leafPath string, cache *pathcache.Cache) error {
	pid := leafPid
	path := leafPath

	for {
		if cache.Lookup(pid) {
			return nil
		}

		known, err := b.hasHierarchyRow(ctx, pid)
		if err != nil {
			return err
		}
		if known {
			cache.Insert(pid)
			return nil
		}

		parent := pathutil.ParentDir(path)
		if parent == "" {
			return nil
		}

		ppid, err := b.lookupOrCreatePath(ctx, parent)
		if err != nil {
			return err
		}

		if _, err := b.gw.Execute(ctx,
			"INSERT OR IGNORE INTO PathHierarchy (PathId, PPathId) VALUES (?, ?)", pid, ppid); err != nil {
			return err
		}
		cache.Insert(pid)

		pid, path = ppid, parent
	}
}

func (b *Builder) hasHierarchyRow(ctx context.Context, pathID uint64) (bool, error) {
	found := false
	err := b.gw.Query(ctx, "SELECT 1 FROM PathHierarchy WHERE PathId = ?", func(r catalog.Row) error {
		found = true
		return nil
	}, pathID)
	return found, err
}

// lookupOrCreatePath returns the PathId for path, inserting a new Path
// row if one does not already exist.
func (b *Builder) lookupOrCreatePath(ctx context.Context, path string) (uint64, error) {
	var id uint64
	found := false
	err := b.gw.Query(ctx, "SELECT PathId FROM Path WHERE Path = ?", func(r catalog.Row) error {
		found = true
		return r.Scan(&id)
	}, path)
	if err != nil {
		return 0, err
	}
	if found {
		return id, nil
	}

	if _, err := b.gw.Execute(ctx, "INSERT OR IGNORE INTO Path (Path) VALUES (?)", path); err != nil {
		return 0, err
	}
	err = b.gw.Query(ctx, "SELECT PathId FROM Path WHERE Path = ?", func(r catalog.Row) error {
		return r.Scan(&id)
	}, path)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// closeVisibility implements steps 11-12: a fresh transaction running
// the fixed-point ancestor-propagation loop of §4.3.3 until a round
// inserts zero rows. When includeBaseFiles is set, each round also
// propagates visibility reached only through a BaseFiles row, so a
// restore session spanning a job and the base jobs it deduplicated
// against sees the full ancestor chain for both.
func (b *Builder) closeVisibility(ctx context.Context, jobID uint64) error {
	query, err := b.gw.Template(catalog.TmplUpdatePathVisible, map[string]any{
		"JobId":            jobID,
		"IncludeBaseFiles": includeBaseFiles,
	})
	if err != nil {
		return err
	}

	tx, err := b.gw.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for {
		n, err := tx.Execute(ctx, query)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}

	if _, err := tx.Execute(ctx, "UPDATE Job SET HasCache = 1 WHERE JobId = ?", jobID); err != nil {
		return err
	}
	return tx.Commit()
}

// markComplete is a no-op: closeVisibility already commits HasCache=1
// as part of the same transaction as the closure (step 12 and 13 share
// the transaction opened at step 11, per §4.3.1).
func (b *Builder) markComplete(ctx context.Context, jobID uint64) error {
	return nil
}

// BulkUpdate runs UpdateCache for every JobId in jobIDs in order,
// sharing one PathIdCache across the whole list (valid because the set
// of path IDs with a known ancestor edge is monotone), then purges
// PathVisibility rows whose JobId no longer exists in Job (I5). A job
// that another builder holds in progress stops the loop with an error
// wrapping catalog.ErrAlreadyInProgress.
func (b *Builder) BulkUpdate(ctx context.Context, jobIDs []uint64) error {
	cache := pathcache.New()
	for _, id := range jobIDs {
		status, err := b.UpdateCache(ctx, id, cache)
		if err != nil {
			return fmt.Errorf("update cache for job %d: %w", id, err)
		}
		if status == StatusInProgress {
			return fmt.Errorf("update cache for job %d: %w", id, catalog.ErrAlreadyInProgress)
		}
	}

	_, err := b.gw.Execute(ctx,
		"DELETE FROM PathVisibility WHERE JobId NOT IN (SELECT JobId FROM Job)")
	return err
}

// ClearCache implements §4.3.5: resets every job's HasCache to 0 and
// empties PathHierarchy and PathVisibility.
func (b *Builder) ClearCache(ctx context.Context) error {
	b.gw.Lock()
	defer b.gw.Unlock()

	tx, err := b.gw.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	clearQuery, err := b.gw.Template(catalog.TmplClearCache, nil)
	if err != nil {
		return err
	}
	if _, err := tx.Execute(ctx, clearQuery); err != nil {
		return err
	}
	if _, err := tx.Execute(ctx, "DELETE FROM PathHierarchy"); err != nil {
		return err
	}
	if _, err := tx.Execute(ctx, "DELETE FROM PathVisibility"); err != nil {
		return err
	}
	return tx.Commit()
}
